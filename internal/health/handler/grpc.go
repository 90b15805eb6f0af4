// Package handler reports readiness: the standard grpc.health.v1 service plus an HTTP probe,
// both driven by the same database and policy checks.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the grpc.health.v1 service name reported alongside the overall ("") status.
const ServiceName = "auth-session-service"

const checkTimeout = 2 * time.Second

// Pinger checks database connectivity. *pgxpool.Pool implements it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PolicyChecker checks that the severity policy still evaluates. engine.OPAEvaluator implements it.
type PolicyChecker interface {
	HealthCheck(ctx context.Context) error
}

// Server owns the grpc health server and keeps its status current.
type Server struct {
	health *health.Server
	pinger Pinger
	policy PolicyChecker
	logger *slog.Logger
}

// NewServer returns a Server. nil checkers are skipped. Status starts as NOT_SERVING until the first Refresh.
func NewServer(pinger Pinger, policy PolicyChecker, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	return &Server{health: hs, pinger: pinger, policy: policy, logger: logger}
}

// RegisterGRPC registers grpc.health.v1.Health on gs.
func (s *Server) RegisterGRPC(gs grpc.ServiceRegistrar) {
	healthpb.RegisterHealthServer(gs, s.health)
}

// Check runs the database and policy checks. A failure is logged and reported as NOT_SERVING.
func (s *Server) Check(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	if s.pinger != nil {
		if err := s.pinger.Ping(ctx); err != nil {
			s.logger.WarnContext(ctx, "health: database ping failed", slog.Any("error", err))
			return healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	if s.policy != nil {
		if err := s.policy.HealthCheck(ctx); err != nil {
			s.logger.WarnContext(ctx, "health: policy check failed", slog.Any("error", err))
			return healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	return healthpb.HealthCheckResponse_SERVING
}

// Refresh runs Check and publishes the result to the grpc health server.
func (s *Server) Refresh(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	st := s.Check(ctx)
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(ServiceName, st)
	return st
}

// Run refreshes the status every interval until ctx is done.
func (s *Server) Run(ctx context.Context, interval time.Duration) {
	s.Refresh(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Refresh(ctx)
		}
	}
}

// Shutdown marks every service NOT_SERVING so load balancers drain before the listener closes.
func (s *Server) Shutdown() {
	s.health.Shutdown()
}

// Readyz is the HTTP readiness probe: 200 when SERVING, 503 otherwise.
func (s *Server) Readyz(c *gin.Context) {
	st := s.Check(c.Request.Context())
	code := http.StatusOK
	if st != healthpb.HealthCheckResponse_SERVING {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{"status": st.String()})
}

// Livez always answers 200 while the process can serve HTTP.
func (s *Server) Livez(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
