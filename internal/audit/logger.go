// Package audit records suspicious session activity: a structured log line per event plus
// best-effort fan-out to external sinks.
package audit

import (
	"context"
	"log/slog"
	"time"

	"auth-session-service/internal/audit/domain"
	"auth-session-service/internal/telemetry"
)

// Classifier assigns a severity to an event. policy/engine.OPAEvaluator implements it.
type Classifier interface {
	Classify(ctx context.Context, event domain.SecurityEvent) domain.Severity
}

// SecurityLogger is the sink the session engine reports to. Log never fails and never blocks
// on external sinks.
type SecurityLogger struct {
	logger     *slog.Logger
	classifier Classifier
	emitters   []telemetry.EventEmitter
	now        func() time.Time
}

// NewSecurityLogger returns a SecurityLogger. classifier may be nil (built-in grading is used);
// nil emitters are skipped.
func NewSecurityLogger(logger *slog.Logger, classifier Classifier, emitters ...telemetry.EventEmitter) *SecurityLogger {
	if logger == nil {
		logger = slog.Default()
	}
	l := &SecurityLogger{logger: logger, classifier: classifier, now: time.Now}
	for _, e := range emitters {
		if e != nil {
			l.emitters = append(l.emitters, e)
		}
	}
	return l
}

// Log grades the event, writes it to the structured log and forwards it to every emitter.
func (l *SecurityLogger) Log(ctx context.Context, event domain.SecurityEvent) {
	if l == nil {
		return
	}
	if event.At.IsZero() {
		event.At = l.now().UTC()
	}
	if event.Severity == "" {
		if l.classifier != nil {
			event.Severity = l.classifier.Classify(ctx, event)
		} else {
			event.Severity = event.DefaultSeverity()
		}
	}

	attrs := []slog.Attr{
		slog.String("kind", string(event.Kind)),
		slog.String("severity", string(event.Severity)),
		slog.String("session_id", event.SessionID),
		slog.String("user_id", event.UserID),
		slog.Time("at", event.At),
	}
	if event.Previous != nil {
		attrs = append(attrs, slog.Group("previous",
			slog.String("user_agent", event.Previous.UserAgent),
			slog.String("ip", event.Previous.IP)))
	}
	if event.Current != nil {
		attrs = append(attrs, slog.Group("current",
			slog.String("user_agent", event.Current.UserAgent),
			slog.String("ip", event.Current.IP)))
	}
	if event.Kind == domain.KindFingerprintMismatch {
		attrs = append(attrs,
			slog.Bool("ip_changed", event.IPChanged),
			slog.Bool("agent_changed", event.AgentChanged))
	}
	l.logger.LogAttrs(ctx, level(event.Severity), "security event", attrs...)

	for _, e := range l.emitters {
		telemetry.EmitAsync(ctx, e, event, l.logger)
	}
}

func level(s domain.Severity) slog.Level {
	switch s {
	case domain.SeverityHigh:
		return slog.LevelError
	case domain.SeverityMedium:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}
