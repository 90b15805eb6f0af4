// Package engine grades security events with an OPA Rego policy.
package engine

import (
	"context"

	auditdomain "auth-session-service/internal/audit/domain"
)

// SeverityEvaluator assigns a severity to a security event. Implementations never fail the
// caller: on evaluation errors they fall back to the event's built-in grading.
type SeverityEvaluator interface {
	Classify(ctx context.Context, event auditdomain.SecurityEvent) auditdomain.Severity
}
