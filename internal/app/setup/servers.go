package setup

import (
	"fmt"
	"net"
	"net/http"

	"github.com/LavaJover/shvark-ledger-service/internal/delivery/grpcapi"
	"github.com/LavaJover/shvark-ledger-service/internal/delivery/http/handlers"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
)

type Servers struct {
	HTTP   *http.Server
	GRPC   *grpc.Server
	Health *grpcapi.HealthServer
}

func InitializeServers(deps *Dependencies, uc *UseCases) *Servers {
	cfg := deps.Config

	h := handlers.NewLedgerHandler(uc.Settlement, deps.Logger)
	metricsHandler := promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{Registry: deps.Registry})
	router := handlers.NewRouter(h, metricsHandler, deps.Metrics, deps.Logger)

	httpServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.HTTPServer.Host, cfg.HTTPServer.Port),
		Handler:      router,
		ReadTimeout:  cfg.HTTPServer.ReadTimeout,
		WriteTimeout: cfg.HTTPServer.WriteTimeout,
	}

	health := grpcapi.NewHealthServer(deps.Logger)
	for name, probe := range deps.Probes {
		health.AddProbe(name, probe)
	}
	grpcServer := grpc.NewServer()
	health.Register(grpcServer)

	return &Servers{HTTP: httpServer, GRPC: grpcServer, Health: health}
}

func GRPCAddr(deps *Dependencies) string {
	return net.JoinHostPort(deps.Config.GRPCServer.Host, deps.Config.GRPCServer.Port)
}

// ListenGRPC opens the gRPC listener so a bad address fails startup before any server runs.
func ListenGRPC(deps *Dependencies) (net.Listener, error) {
	lis, err := net.Listen("tcp", GRPCAddr(deps))
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", GRPCAddr(deps), err)
	}
	return lis, nil
}
