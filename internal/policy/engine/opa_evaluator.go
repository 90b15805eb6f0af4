package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"

	auditdomain "auth-session-service/internal/audit/domain"
)

const severityQuery = "data.sessions.security.severity"

// DefaultPolicy grades refresh-token reuse high, presenting a revoked secret medium, and a
// fingerprint mismatch medium only when both the IP and the user agent changed.
const DefaultPolicy = `package sessions.security

default severity := "low"

severity := "high" if {
	input.kind == "refresh_token_reuse"
} else := "medium" if {
	input.kind == "refresh_token_revoked"
} else := "medium" if {
	input.kind == "fingerprint_mismatch"
	input.ip_changed
	input.agent_changed
}
`

var errNoResult = errors.New("policy query returned no result")

// OPAEvaluator evaluates the severity policy with an in-process Rego engine.
// The policy is compiled once at construction.
type OPAEvaluator struct {
	query  rego.PreparedEvalQuery
	logger *slog.Logger
}

// NewOPAEvaluator compiles policy (DefaultPolicy when empty). The policy must define
// data.sessions.security.severity as a string.
func NewOPAEvaluator(ctx context.Context, policy string, logger *slog.Logger) (*OPAEvaluator, error) {
	if policy == "" {
		policy = DefaultPolicy
	}
	if logger == nil {
		logger = slog.Default()
	}
	compiler, err := ast.CompileModules(map[string]string{"severity.rego": policy})
	if err != nil {
		return nil, fmt.Errorf("compile severity policy: %w", err)
	}
	pq, err := rego.New(
		rego.Query(severityQuery),
		rego.Compiler(compiler),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("prepare severity policy: %w", err)
	}
	return &OPAEvaluator{query: pq, logger: logger}, nil
}

// Classify returns the policy's severity for event, or event.DefaultSeverity() if evaluation fails.
func (e *OPAEvaluator) Classify(ctx context.Context, event auditdomain.SecurityEvent) auditdomain.Severity {
	sev, err := e.evaluate(ctx, buildInput(event))
	if err != nil {
		e.logger.Warn("policy: severity evaluation failed, using default",
			slog.String("kind", string(event.Kind)),
			slog.Any("error", err),
		)
		return event.DefaultSeverity()
	}
	return sev
}

// HealthCheck evaluates the compiled policy against a fixed input. Does not touch the database.
func (e *OPAEvaluator) HealthCheck(ctx context.Context) error {
	_, err := e.evaluate(ctx, buildInput(auditdomain.SecurityEvent{Kind: auditdomain.KindRefreshTokenExpired}))
	return err
}

func (e *OPAEvaluator) evaluate(ctx context.Context, input map[string]any) (auditdomain.Severity, error) {
	rs, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return "", fmt.Errorf("eval severity policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return "", errNoResult
	}
	s, ok := rs[0].Expressions[0].Value.(string)
	if !ok {
		return "", fmt.Errorf("severity policy returned %T, want string", rs[0].Expressions[0].Value)
	}
	switch sev := auditdomain.Severity(s); sev {
	case auditdomain.SeverityLow, auditdomain.SeverityMedium, auditdomain.SeverityHigh:
		return sev, nil
	default:
		return "", fmt.Errorf("severity policy returned unknown severity %q", s)
	}
}

func buildInput(event auditdomain.SecurityEvent) map[string]any {
	return map[string]any{
		"kind":          string(event.Kind),
		"session_id":    event.SessionID,
		"user_id":       event.UserID,
		"ip_changed":    event.IPChanged,
		"agent_changed": event.AgentChanged,
	}
}
