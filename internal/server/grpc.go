// Package server builds the process's HTTP and gRPC listeners.
package server

import (
	"log/slog"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"expenses-tracker/backend/internal/health"
	"expenses-tracker/backend/internal/server/interceptors"
)

// healthCheckMethods are not logged; orchestrators poll them every few seconds.
var healthCheckMethods = map[string]bool{
	healthpb.Health_Check_FullMethodName: true,
	healthpb.Health_Watch_FullMethodName: true,
}

// Deps holds the gRPC handler dependencies.
type Deps struct {
	// Health backs grpc.health.v1. If nil, the health service is not registered.
	Health *health.Checker
}

// NewGRPCServer returns a gRPC server with OpenTelemetry stats and request logging, and registers services.
func NewGRPCServer(log *slog.Logger, deps Deps) *grpc.Server {
	s := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(interceptors.LoggingUnary(log, healthCheckMethods)),
	)
	RegisterServices(s, deps)
	return s
}

// RegisterServices registers the ops services with the given server.
func RegisterServices(s grpc.ServiceRegistrar, deps Deps) {
	if deps.Health != nil {
		healthpb.RegisterHealthServer(s, deps.Health.GRPCServer())
	}
}
