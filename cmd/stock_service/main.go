// Package main runs the stock allocation and pricing service.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	_ "net/http/pprof"

	"github.com/abgdnv/shelfstock/internal/app"
	"github.com/abgdnv/shelfstock/internal/config"
	"github.com/abgdnv/shelfstock/pkg/bootstrap"
	"github.com/abgdnv/shelfstock/pkg/config/configloader"
	"github.com/abgdnv/shelfstock/pkg/telemetry"
	"golang.org/x/sync/errgroup"
)

const serviceName = "stock"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Printf("application run failed: %v", err)
		os.Exit(1)
	}
	log.Println("application stopped gracefully")
}

// run loads the configuration, connects the infrastructure and serves HTTP, gRPC and pprof until ctx is done.
func run(ctx context.Context) error {
	cfg, cfgErr := configloader.Load[*config.Config](serviceName)
	if cfgErr != nil {
		return fmt.Errorf("failed to load configuration: %w", cfgErr)
	}
	log.Printf("Configuration loaded: %v", cfg)

	logger := bootstrap.NewLogger(cfg.Log)
	slog.SetDefault(logger)

	shutdownTelemetry, metricsHandler, err := setupTelemetry(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer shutdownTelemetry()

	st, closeStore, err := app.NewStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	cache, closeCache, err := app.NewDiscountCache(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeCache()

	publisher, closePublisher, err := app.NewEventPublisher(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closePublisher()

	deps, err := app.SetupDependencies(app.Infrastructure{
		Store:     st,
		Redis:     cache,
		Publisher: publisher,
		Metrics:   metricsHandler,
	}, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to set up dependencies: %w", err)
	}

	httpServer := app.SetupHttpServer(deps, cfg)
	grpcServer := app.SetupGrpcServer(deps, cfg.GRPC.ReflectionEnabled)

	g, gCtx := errgroup.WithContext(ctx)

	// drained is closed once the health service has reported NOT_SERVING for the drain delay
	drained := make(chan struct{})
	g.Go(func() error {
		return deps.Health.Run(gCtx)
	})
	g.Go(func() error {
		<-gCtx.Done()
		deps.Health.Shutdown()
		logger.Info("Health set to NOT_SERVING, draining", slog.Duration("delay", cfg.Shutdown.DrainDelay))
		time.Sleep(cfg.Shutdown.DrainDelay)
		close(drained)
		return nil
	})

	// Start the HTTP server
	g.Go(func() error {
		logger.Info("HTTP server listening", slog.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})
	// gracefully shutdown HTTP server after draining
	g.Go(func() error {
		<-drained
		logger.Info("Shutting down HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Shutdown.Timeout-cfg.Shutdown.DrainDelay)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	// Start the gRPC server
	g.Go(func() error {
		grpcAddr := ":" + cfg.GRPC.Port
		lis, err := net.Listen("tcp", grpcAddr)
		if err != nil {
			return fmt.Errorf("failed to listen on gRPC port: %w", err)
		}
		logger.Info("gRPC server listening", slog.String("addr", grpcAddr))
		return grpcServer.Serve(lis)
	})
	// gracefully shutdown gRPC server after draining
	g.Go(func() error {
		<-drained
		logger.Info("Shutting down gRPC server...")
		stopped := make(chan struct{})
		go func() {
			grpcServer.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
			logger.Info("gRPC server stopped gracefully.")
			return nil
		case <-time.After(cfg.Shutdown.Timeout - cfg.Shutdown.DrainDelay):
			logger.Warn("gRPC server graceful stop timed out. Forcing stop.")
			grpcServer.Stop()
			return fmt.Errorf("grpc server graceful stop timed out")
		}
	})

	// Start the pprof server if enabled
	if cfg.PProf.Enabled {
		runtime.SetBlockProfileRate(cfg.PProf.BlockProfileRate)
		runtime.SetMutexProfileFraction(cfg.PProf.MutexProfileFraction)
		pprofServer := &http.Server{
			Addr:              cfg.PProf.Addr,
			ReadHeaderTimeout: cfg.HTTPServer.Timeout.ReadHeader,
		}
		g.Go(func() error {
			logger.Info("Pprof server listening", slog.String("addr", pprofServer.Addr))
			if err := pprofServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("pprof server failed: %w", err)
			}
			return nil
		})
		// gracefully shutdown pprof server on context cancellation
		g.Go(func() error {
			<-gCtx.Done()
			logger.Info("Shutting down pprof server...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Shutdown.Timeout)
			defer cancel()
			return pprofServer.Shutdown(shutdownCtx)
		})
	}
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("errgroup encountered an error: %w", err)
	}
	return nil
}

// setupTelemetry installs the tracer and meter providers that are enabled. The returned func flushes them.
func setupTelemetry(ctx context.Context, cfg *config.Config, logger *slog.Logger) (func(), http.Handler, error) {
	var shutdowns []func(context.Context) error
	var metricsHandler http.Handler

	if cfg.Telemetry.Traces.Enabled {
		tp, err := telemetry.NewTracerProvider(ctx, serviceName, cfg.Telemetry)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create tracer provider: %w", err)
		}
		shutdowns = append(shutdowns, tp.Shutdown)
		logger.Info("Tracing enabled", slog.String("endpoint", cfg.Telemetry.Traces.OtlpHttp.Endpoint))
	}
	if cfg.Telemetry.Metrics.Enabled {
		mp, handler, err := telemetry.NewMeterProvider(serviceName)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create meter provider: %w", err)
		}
		shutdowns = append(shutdowns, mp.Shutdown)
		metricsHandler = handler
		logger.Info("Metrics enabled", slog.String("path", cfg.Telemetry.Metrics.Path))
	}

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Shutdown.Timeout)
		defer cancel()
		for _, shutdown := range shutdowns {
			if err := shutdown(shutdownCtx); err != nil {
				logger.Error("Failed to shut down telemetry provider", "error", err)
			}
		}
	}, metricsHandler, nil
}
