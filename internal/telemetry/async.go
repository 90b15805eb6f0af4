package telemetry

import (
	"context"
	"log/slog"
	"time"

	auditdomain "auth-session-service/internal/audit/domain"
)

// emitTimeout is the max time allowed for a single async emit. Used by EmitAsync and by ShutdownDrainDuration.
const emitTimeout = 5 * time.Second

// ShutdownDrainDuration is how long to wait after the HTTP server stops before shutting down
// OTel providers and Kafka writers, so in-flight async emits can finish. Must be >= emitTimeout.
const ShutdownDrainDuration = emitTimeout

// EmitAsync runs Emit in a goroutine with a short timeout so the request is not blocked.
// The goroutine keeps ctx values (trace ids) but not its cancellation, so a finished request
// does not abort an in-flight emit. A nil emitter is a no-op.
func EmitAsync(ctx context.Context, emitter EventEmitter, event auditdomain.SecurityEvent, logger *slog.Logger) {
	if emitter == nil {
		return
	}
	if logger == nil {
		logger = slog.Default()
	}
	base := context.WithoutCancel(ctx)
	go func() {
		emitCtx, cancel := context.WithTimeout(base, emitTimeout)
		defer cancel()
		if err := emitter.Emit(emitCtx, event); err != nil {
			logger.Warn("telemetry: async emit failed",
				slog.String("kind", string(event.Kind)),
				slog.String("session_id", event.SessionID),
				slog.Any("error", err),
			)
		}
	}()
}
