package server

import (
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"

	healthhandler "auth-session-service/internal/health/handler"
)

// NewGRPCServer returns a gRPC server exposing only grpc.health.v1.Health, instrumented with otelgrpc.
// The session API itself is served over HTTP (see NewRouter).
func NewGRPCServer(health *healthhandler.Server) *grpc.Server {
	s := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	health.RegisterGRPC(s)
	return s
}
