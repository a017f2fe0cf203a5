// Package grpcserver runs the service's gRPC listener. It exposes the
// standard health service so orchestrators can probe the process.
package grpcserver

import (
	"context"
	"log/slog"
	"net"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"chat-core/internal/observability"
)

// Checker reports whether a dependency is usable.
type Checker func(ctx context.Context) error

// Server wraps a grpc.Server with a health service.
type Server struct {
	srv    *grpc.Server
	health *health.Server
}

// New builds the server with metrics and tracing instrumentation.
func New() *Server {
	srv := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(observability.GRPCServerMetricsUnaryInterceptor()),
	)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	return &Server{srv: srv, health: hs}
}

// SetServing updates the status reported for service ("" is the whole process).
func (s *Server) SetServing(service string, serving bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(service, st)
}

// Refresh runs check and publishes the result for service.
func (s *Server) Refresh(ctx context.Context, service string, check Checker) {
	err := check(ctx)
	if err != nil {
		slog.WarnContext(ctx, "health check failed", "service", service, "error", err)
	}
	s.SetServing(service, err == nil)
}

// Serve blocks serving on lis until Stop.
func (s *Server) Serve(lis net.Listener) error {
	s.SetServing("", true)
	return s.srv.Serve(lis)
}

// Stop marks the process not serving and drains in-flight calls.
func (s *Server) Stop() {
	s.health.Shutdown()
	s.srv.GracefulStop()
}
