package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/LavaJover/shvark-ledger-service/internal/app/background"
	"github.com/LavaJover/shvark-ledger-service/internal/app/setup"
	"github.com/LavaJover/shvark-ledger-service/internal/config"
	"github.com/LavaJover/shvark-ledger-service/internal/infrastructure/logger"
)

const (
	shutdownTimeout = 15 * time.Second
	healthInterval  = 30 * time.Second
)

func main() {
	// Reading config
	cfg := config.MustLoad()

	slogger, logCloser, err := logger.New(cfg.LogConfig)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logCloser.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := setup.InitializeDependencies(ctx, cfg, slogger)
	if err != nil {
		log.Fatalf("failed to init dependencies: %v", err)
	}
	defer func() {
		if err := deps.Close(); err != nil {
			slogger.Error("failed to release dependencies", "error", err)
		}
	}()

	uc, err := setup.InitializeUseCases(deps)
	if err != nil {
		log.Fatalf("failed to init use cases: %v", err)
	}
	servers := setup.InitializeServers(deps, uc)

	lis, err := setup.ListenGRPC(deps)
	if err != nil {
		log.Fatalf("%v", err)
	}

	tasks := background.NewBackgroundTasks(uc.Manager, uc.Settlement, deps.Subscriber, background.Config{
		PayinTTL:       cfg.Settlement.PayinTTL,
		ExpiryInterval: cfg.Settlement.ExpiryInterval,
		OperatorTopic:  cfg.KafkaService.OperatorTopic,
		GroupID:        cfg.KafkaService.GroupID,
	}, slogger)
	if err := tasks.StartAll(ctx); err != nil {
		log.Fatalf("failed to start background tasks: %v", err)
	}
	go servers.Health.Watch(ctx, healthInterval)

	errCh := make(chan error, 2)
	go func() {
		slogger.Info("gRPC server started", "addr", lis.Addr().String())
		errCh <- servers.GRPC.Serve(lis)
	}()
	go func() {
		slogger.Info("HTTP server started", "addr", servers.HTTP.Addr)
		if err := servers.HTTP.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		slogger.Info("shutdown signal received")
	case err := <-errCh:
		slogger.Error("server stopped", "error", err)
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	servers.Health.Shutdown()
	if err := servers.HTTP.Shutdown(shutdownCtx); err != nil {
		slogger.Error("HTTP shutdown failed", "error", err)
	}
	servers.GRPC.GracefulStop()
	tasks.Wait()
	slogger.Info("ledger service stopped")
}
