package otel

import (
	"context"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	auditdomain "auth-session-service/internal/audit/domain"
	sessiondomain "auth-session-service/internal/session/domain"
	"auth-session-service/internal/telemetry"
)

const instrumentationName = "auth-session-service.security"

// recordEmitter is the subset of otellog.Logger the adapter needs.
type recordEmitter interface {
	Emit(ctx context.Context, rec otellog.Record)
}

// NewEventEmitter returns an EventEmitter that sends security events as OTel log records via the given LoggerProvider.
// If provider is nil, returns a no-op emitter.
func NewEventEmitter(provider *sdklog.LoggerProvider) telemetry.EventEmitter {
	if provider == nil {
		return noopEmitter{}
	}
	return &otelEmitter{logger: provider.Logger(instrumentationName)}
}

// NewEventEmitterWithLogger wraps an arbitrary record emitter (an otellog.Logger in production).
func NewEventEmitterWithLogger(logger recordEmitter) telemetry.EventEmitter {
	if logger == nil {
		return noopEmitter{}
	}
	return &otelEmitter{logger: logger}
}

type noopEmitter struct{}

func (noopEmitter) Emit(context.Context, auditdomain.SecurityEvent) error { return nil }

type otelEmitter struct {
	logger recordEmitter
}

// Emit converts the event to a log record. The body is the event kind so collectors can filter on it.
func (e *otelEmitter) Emit(ctx context.Context, event auditdomain.SecurityEvent) error {
	rec := otellog.Record{}
	ts := event.At
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	rec.SetTimestamp(ts)
	rec.SetObservedTimestamp(time.Now().UTC())
	rec.SetEventName(string(event.Kind))
	rec.SetBody(otellog.StringValue(string(event.Kind)))

	severity := event.Severity
	if severity == "" {
		severity = event.DefaultSeverity()
	}
	rec.SetSeverity(otelSeverity(severity))
	rec.SetSeverityText(string(severity))

	rec.AddAttributes(
		otellog.String("kind", string(event.Kind)),
		otellog.String("severity", string(severity)),
	)
	if event.SessionID != "" {
		rec.AddAttributes(otellog.String("session_id", event.SessionID))
	}
	if event.UserID != "" {
		rec.AddAttributes(otellog.String("user_id", event.UserID))
	}
	addFingerprint(&rec, "previous", event.Previous)
	addFingerprint(&rec, "current", event.Current)
	if event.Kind == auditdomain.KindFingerprintMismatch {
		rec.AddAttributes(
			otellog.Bool("ip_changed", event.IPChanged),
			otellog.Bool("agent_changed", event.AgentChanged),
		)
	}
	e.logger.Emit(ctx, rec)
	return nil
}

func addFingerprint(rec *otellog.Record, prefix string, fp *sessiondomain.Fingerprint) {
	if fp == nil {
		return
	}
	rec.AddAttributes(
		otellog.String(prefix+".user_agent", fp.UserAgent),
		otellog.String(prefix+".ip", fp.IP),
	)
}

func otelSeverity(s auditdomain.Severity) otellog.Severity {
	switch s {
	case auditdomain.SeverityHigh:
		return otellog.SeverityError
	case auditdomain.SeverityMedium:
		return otellog.SeverityWarn
	default:
		return otellog.SeverityInfo
	}
}
