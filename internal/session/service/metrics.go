package service

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Failure reasons recorded on session.refresh_failed.
const (
	failureInvalid     = "invalid"
	failureLifetimeCap = "lifetime_cap"
	failureConflict    = "conflict"
	failureStore       = "store"
	failureEntropy     = "entropy"
	failureCollision   = "digest_collision"
)

// Metrics holds the session counters. A nil *Metrics records nothing.
type Metrics struct {
	issued        metric.Int64Counter
	rotated       metric.Int64Counter
	refreshFailed metric.Int64Counter
	revoked       metric.Int64Counter
	anomaly       metric.Int64Counter
}

// NewMetrics registers the session counters on meter. A nil meter uses a no-op meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	if meter == nil {
		meter = noop.NewMeterProvider().Meter("session")
	}
	var (
		m   Metrics
		err error
	)
	if m.issued, err = meter.Int64Counter("session.issued", metric.WithDescription("Sessions created by login.")); err != nil {
		return nil, err
	}
	if m.rotated, err = meter.Int64Counter("session.rotated", metric.WithDescription("Successful refresh-token rotations.")); err != nil {
		return nil, err
	}
	if m.refreshFailed, err = meter.Int64Counter("session.refresh_failed", metric.WithDescription("Refresh attempts that did not rotate, by reason.")); err != nil {
		return nil, err
	}
	if m.revoked, err = meter.Int64Counter("session.revoked", metric.WithDescription("Sessions revoked by logout or logout-all.")); err != nil {
		return nil, err
	}
	if m.anomaly, err = meter.Int64Counter("session.anomaly", metric.WithDescription("Refreshes whose fingerprint differed from the previous one.")); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *Metrics) recordIssued(ctx context.Context) {
	if m != nil {
		m.issued.Add(ctx, 1)
	}
}

func (m *Metrics) recordRotated(ctx context.Context) {
	if m != nil {
		m.rotated.Add(ctx, 1)
	}
}

func (m *Metrics) recordRefreshFailed(ctx context.Context, reason string) {
	if m != nil {
		m.refreshFailed.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
	}
}

func (m *Metrics) recordRevoked(ctx context.Context, n int64) {
	if m != nil && n > 0 {
		m.revoked.Add(ctx, n)
	}
}

func (m *Metrics) recordAnomaly(ctx context.Context) {
	if m != nil {
		m.anomaly.Add(ctx, 1)
	}
}
