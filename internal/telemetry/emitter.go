// Package telemetry forwards security events to external sinks (OTel logs, Kafka).
package telemetry

import (
	"context"

	auditdomain "auth-session-service/internal/audit/domain"
)

// EventEmitter emits security events to an external sink. Best-effort; callers log and ignore errors.
type EventEmitter interface {
	Emit(ctx context.Context, event auditdomain.SecurityEvent) error
}

// EmitterFunc adapts a function to EventEmitter.
type EmitterFunc func(ctx context.Context, event auditdomain.SecurityEvent) error

// Emit calls f.
func (f EmitterFunc) Emit(ctx context.Context, event auditdomain.SecurityEvent) error {
	return f(ctx, event)
}
