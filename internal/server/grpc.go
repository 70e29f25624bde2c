package server

import (
	"log/slog"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the health service name reported alongside the overall "".
const ServiceName = "searchable-pdf"

// HealthServer is the gRPC health endpoint used by orchestrators.
type HealthServer struct {
	grpc   *grpc.Server
	health *health.Server
	logger *slog.Logger
}

func NewHealthServer(logger *slog.Logger) *HealthServer {
	if logger == nil {
		logger = slog.Default()
	}
	s := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)
	// Reflection for grpcurl
	reflection.Register(s)
	return &HealthServer{grpc: s, health: hs, logger: logger}
}

// SetServing flips both the overall and the named service status.
func (h *HealthServer) SetServing(serving bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		st = healthpb.HealthCheckResponse_SERVING
	}
	h.health.SetServingStatus("", st)
	h.health.SetServingStatus(ServiceName, st)
}

// Serve blocks until Stop.
func (h *HealthServer) Serve(lis net.Listener) error {
	h.SetServing(true)
	h.logger.Info("grpc health listening", "addr", lis.Addr().String())
	return h.grpc.Serve(lis)
}

func (h *HealthServer) Stop() {
	h.SetServing(false)
	h.health.Shutdown()
	h.grpc.GracefulStop()
}
