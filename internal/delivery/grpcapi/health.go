package grpcapi

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health entry reported for the ledger as a whole.
const ServiceName = "ledger.v1.LedgerService"

// Probe reports whether a dependency is usable.
type Probe func(ctx context.Context) error

// HealthServer serves grpc.health.v1 and flips status from periodic probes.
type HealthServer struct {
	health *health.Server
	probes map[string]Probe
	logger *slog.Logger
}

func NewHealthServer(logger *slog.Logger) *HealthServer {
	return &HealthServer{
		health: health.NewServer(),
		probes: make(map[string]Probe),
		logger: logger.With("component", "grpc_health"),
	}
}

// AddProbe registers a dependency check; any failing probe marks the ledger NOT_SERVING.
func (s *HealthServer) AddProbe(name string, p Probe) {
	s.probes[name] = p
}

func (s *HealthServer) Register(server *grpc.Server) {
	healthpb.RegisterHealthServer(server, s.health)
	s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
}

// CheckOnce runs every probe and updates the reported status.
func (s *HealthServer) CheckOnce(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_SERVING
	for name, probe := range s.probes {
		if err := probe(ctx); err != nil {
			s.logger.Warn("health probe failed", "probe", name, "error", err)
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	s.health.SetServingStatus(ServiceName, status)
	s.health.SetServingStatus("", status)
	return status
}

// Watch re-runs the probes every interval until ctx is done.
func (s *HealthServer) Watch(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, interval)
			s.CheckOnce(pctx)
			cancel()
		}
	}
}

func (s *HealthServer) Shutdown() {
	s.health.Shutdown()
}
