// Package producer publishes security events to a message broker (Kafka).
package producer

import (
	"auth-session-service/internal/telemetry"
)

// Producer emits security events. Callers use it best-effort: log and ignore errors.
type Producer interface {
	telemetry.EventEmitter
	// Close releases resources (e.g. Kafka writer). Safe to call if already closed.
	Close() error
}
