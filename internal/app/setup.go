// Package app wires the stock service together.
package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/abgdnv/shelfstock/internal/allocation"
	"github.com/abgdnv/shelfstock/internal/config"
	"github.com/abgdnv/shelfstock/internal/inventory"
	"github.com/abgdnv/shelfstock/internal/model"
	"github.com/abgdnv/shelfstock/internal/notify"
	"github.com/abgdnv/shelfstock/internal/pricing"
	"github.com/abgdnv/shelfstock/internal/service"
	"github.com/abgdnv/shelfstock/internal/store"
	grpcImpl "github.com/abgdnv/shelfstock/internal/transport/grpc"
	"github.com/abgdnv/shelfstock/internal/transport/rest"
	"github.com/abgdnv/shelfstock/pkg/messaging"
	"github.com/abgdnv/shelfstock/pkg/server"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"
)

const serviceName = "stock-service"

// Infrastructure holds the connections made at startup. Redis, Publisher and Metrics are optional.
type Infrastructure struct {
	Store     store.Store
	Redis     redis.Cmdable
	Publisher messaging.Publisher
	Metrics   http.Handler
	Clock     model.Clock
}

type Dependencies struct {
	StockService service.StockService
	Health       *grpcImpl.HealthReporter
	Metrics      http.Handler
	MetricsPath  string
	MaxBodyBytes int64
	Logger       *slog.Logger
}

// SetupDependencies builds the coordinator, pricing and service on top of infra.
func SetupDependencies(infra Infrastructure, cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	clock := infra.Clock
	if clock == nil {
		clock = model.SystemClock
	}
	strategy, err := allocation.Parse(cfg.Inventory.Strategy, clock, cfg.Inventory.SafetyHorizon)
	if err != nil {
		return nil, err
	}
	mode, err := inventory.ParseNotifyMode(cfg.Inventory.NotifyMode)
	if err != nil {
		return nil, err
	}

	var discounts store.DiscountStore = infra.Store
	if infra.Redis != nil {
		discounts = store.NewCachedDiscountStore(infra.Store, infra.Redis, cfg.Cache.TTL, logger)
	}

	observers := []inventory.StockObserver{notify.NewLogObserver(logger)}
	if infra.Publisher != nil {
		observers = append(observers,
			notify.NewPublishingObserver(infra.Publisher, cfg.Inventory.LowStockThreshold, cfg.Events.PublishTimeout, logger))
	}

	coordinator := inventory.NewCoordinator(infra.Store, strategy, inventory.Config{
		LowStockThreshold: cfg.Inventory.LowStockThreshold,
		NotifyMode:        mode,
	}, logger, observers...)
	pricer := pricing.NewBestDiscount(infra.Store, discounts, clock, cfg.Inventory.MinPricingQuantity, logger)
	stockService := service.NewService(catalog{Store: infra.Store, discounts: discounts}, coordinator, pricer, clock, logger)

	logger.Info("Stock service wired",
		"strategy", strategy.Name(),
		"notify_mode", string(mode),
		"discount_cache", infra.Redis != nil,
		"events", infra.Publisher != nil)

	return &Dependencies{
		StockService: stockService,
		Health:       grpcImpl.NewHealthReporter(infra.Store, cfg.GRPC.HealthInterval, logger),
		Metrics:      infra.Metrics,
		MetricsPath:  cfg.Telemetry.Metrics.Path,
		MaxBodyBytes: cfg.HTTPServer.MaxBodyBytes,
		Logger:       logger,
	}, nil
}

// catalog routes discount reads and writes through the optional cache.
type catalog struct {
	store.Store
	discounts store.DiscountStore
}

func (c catalog) CreateDiscount(ctx context.Context, d model.Discount) (model.Discount, error) {
	return c.discounts.CreateDiscount(ctx, d)
}

func (c catalog) FindActiveDiscounts(ctx context.Context, productCode string, date time.Time) ([]model.Discount, error) {
	return c.discounts.FindActiveDiscounts(ctx, productCode, date)
}

// SetupHttpHandler builds the router with the API routes and, if enabled, the metrics endpoint.
// Used by E2E tests to set up the HTTP server with the necessary routes and middleware.
func SetupHttpHandler(deps *Dependencies) http.Handler {
	mux := server.NewChiRouter(serviceName, deps.Logger)
	wireRoutes(mux, deps)
	return mux
}

func wireRoutes(mux *chi.Mux, deps *Dependencies) {
	rest.NewHandler(deps.StockService, deps.MaxBodyBytes, deps.Logger).RegisterRoutes(mux)
	if deps.Metrics != nil {
		mux.Method(http.MethodGet, deps.MetricsPath, deps.Metrics)
	}
}

func SetupHttpServer(deps *Dependencies, cfg *config.Config) *http.Server {
	return server.NewHTTPServer(cfg.HTTPServer, SetupHttpHandler(deps))
}

// SetupGrpcServer creates the gRPC server that carries the health service.
func SetupGrpcServer(deps *Dependencies, reflectionEnabled bool) *grpc.Server {
	return server.NewGRPCServer(deps.Logger, reflectionEnabled, deps.Health.Register)
}
