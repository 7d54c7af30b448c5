package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aretw0/autotron"
	"github.com/aretw0/autotron/internal/config"
	httpAdapter "github.com/aretw0/autotron/pkg/adapters/http"
	"github.com/aretw0/autotron/pkg/adapters/memory"
	"github.com/aretw0/autotron/pkg/adapters/process"
)

const shutdownTimeout = 5 * time.Second

// ServeOptions selects what the runtime starts with.
type ServeOptions struct {
	Config config.Config
	// GraphPath loads a document file instead of the last active graph.
	GraphPath string
	// GraphName loads a stored graph and follows its changes.
	GraphName string
	// Simulate drives an in-process device simulator instead of real devices.
	Simulate bool
	Logger   *slog.Logger
}

// Serve runs the runtime and its HTTP control surface until ctx is done.
func Serve(ctx context.Context, opts ServeOptions) error {
	logger := opts.Logger
	cfg := opts.Config

	store, err := OpenStore(ctx, cfg, logger.With("component", "store"))
	if err != nil {
		return err
	}

	svcOpts := []autotron.Option{
		autotron.WithConfig(cfg),
		autotron.WithStore(store),
		autotron.WithLogger(logger),
	}
	switch {
	case opts.Simulate:
		svcOpts = append(svcOpts, autotron.WithActuator(memory.NewDevices(
			memory.WithLatency(100*time.Millisecond),
			memory.WithDeviceLogger(logger.With("component", "simulator")),
		)))
	case cfg.Bridge.Enabled():
		logger.Info("Driving devices through bridge", "command", cfg.Bridge.Command)
		svcOpts = append(svcOpts, autotron.WithActuator(process.NewBridge(cfg.Bridge,
			process.WithLogger(logger.With("component", "bridge")),
		)))
	default:
		logger.Warn("No actuation boundary configured, device commands are recorded but not delivered")
	}

	svc, err := autotron.New(svcOpts...)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.Warn("Close failed", "err", err)
		}
	}()

	if err := loadInitial(ctx, svc, opts); err != nil {
		return err
	}
	if err := svc.Start(ctx); err != nil {
		logger.Warn("Runtime not started", "err", err)
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpAdapter.NewHandler(svc, httpAdapter.WithLogger(logger.With("component", "http"))),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("Control surface listening", "addr", srv.Addr)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Graceful shutdown did not complete", "timeout", shutdownTimeout, "err", err)
		_ = srv.Close()
	}
	return nil
}

func loadInitial(ctx context.Context, svc *autotron.Service, opts ServeOptions) error {
	switch {
	case opts.GraphPath != "":
		if err := svc.LoadPath(ctx, opts.GraphPath); err != nil {
			return fmt.Errorf("failed to load %s: %w", opts.GraphPath, err)
		}
	case opts.GraphName != "":
		if err := svc.LoadNamed(ctx, opts.GraphName); err != nil {
			return fmt.Errorf("failed to load graph %s: %w", opts.GraphName, err)
		}
	default:
		found, err := svc.Restore(ctx)
		if err != nil {
			return fmt.Errorf("failed to restore last active graph: %w", err)
		}
		if !found {
			opts.Logger.Info("No last active graph, waiting for one to be loaded")
		}
	}
	return nil
}
