// Package grpc exposes the standard gRPC health service of the stock service.
package grpc

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health service name reported next to the overall ("") status.
const ServiceName = "shelfstock.StockService"

// Pinger reports whether the storage backing the service is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthReporter keeps the health status in line with storage reachability.
type HealthReporter struct {
	server   *health.Server
	pinger   Pinger
	interval time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	serving bool
}

func NewHealthReporter(pinger Pinger, interval time.Duration, logger *slog.Logger) *HealthReporter {
	return &HealthReporter{
		server:   health.NewServer(),
		pinger:   pinger,
		interval: interval,
		logger:   logger.With("component", "health"),
		serving:  true,
	}
}

// Register adds the health service to s. It matches server.RegistrationFunc.
func (h *HealthReporter) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, h.server)
}

// Run checks storage right away and then every interval until ctx is done.
func (h *HealthReporter) Run(ctx context.Context) error {
	h.check(ctx)
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			h.check(ctx)
		}
	}
}

// Shutdown reports NOT_SERVING from now on, so load balancers drain the instance.
func (h *HealthReporter) Shutdown() {
	h.server.Shutdown()
}

func (h *HealthReporter) check(ctx context.Context) {
	pingCtx, cancel := context.WithTimeout(ctx, h.interval)
	defer cancel()
	err := h.pinger.Ping(pingCtx)

	status := healthpb.HealthCheckResponse_SERVING
	if err != nil {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	h.server.SetServingStatus("", status)
	h.server.SetServingStatus(ServiceName, status)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.serving && err != nil {
		h.logger.WarnContext(ctx, "Storage unreachable, reporting NOT_SERVING", "error", err)
	} else if !h.serving && err == nil {
		h.logger.InfoContext(ctx, "Storage reachable again, reporting SERVING")
	}
	h.serving = err == nil
}
