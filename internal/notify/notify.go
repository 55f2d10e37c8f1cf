// Package notify contains the stock observers that report low shelf stock outside the coordinator.
package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/abgdnv/shelfstock/internal/inventory"
	"github.com/abgdnv/shelfstock/pkg/messaging"
	"github.com/abgdnv/shelfstock/pkg/messaging/events"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// LogObserver writes every low-stock alert to the log.
type LogObserver struct {
	logger *slog.Logger
}

var _ inventory.StockObserver = (*LogObserver)(nil)

func NewLogObserver(logger *slog.Logger) *LogObserver {
	return &LogObserver{logger: logger.With("component", "notify")}
}

func (o *LogObserver) OnStockLow(ctx context.Context, productCode string, remaining int) {
	o.logger.WarnContext(ctx, "Low stock alert", "product_code", productCode, "remaining", remaining)
}

// PublishingObserver turns low-stock alerts into StockLowEvents. Publish failures are logged and dropped.
type PublishingObserver struct {
	publisher messaging.Publisher
	threshold int
	timeout   time.Duration
	clock     func() time.Time
	logger    *slog.Logger
}

var _ inventory.StockObserver = (*PublishingObserver)(nil)

// NewPublishingObserver creates the observer. threshold is copied into each event; timeout bounds one publish.
func NewPublishingObserver(publisher messaging.Publisher, threshold int, timeout time.Duration, logger *slog.Logger) *PublishingObserver {
	return &PublishingObserver{
		publisher: publisher,
		threshold: threshold,
		timeout:   timeout,
		clock:     time.Now,
		logger:    logger.With("component", "notify"),
	}
}

func (o *PublishingObserver) OnStockLow(ctx context.Context, productCode string, remaining int) {
	carrier := make(propagation.MapCarrier)
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	event := events.StockLowEvent{
		Carrier:     carrier,
		EventID:     uuid.New(),
		ProductCode: productCode,
		Remaining:   remaining,
		Threshold:   o.threshold,
		OccurredAt:  o.clock().UTC(),
	}

	// the request may finish before the broker answers
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.timeout)
	defer cancel()
	if err := o.publisher.Publish(pubCtx, event); err != nil {
		o.logger.ErrorContext(ctx, "Failed to publish StockLowEvent", "product_code", productCode, "event_id", event.EventID, "error", err)
		return
	}
	o.logger.DebugContext(ctx, "StockLowEvent published", "product_code", productCode, "event_id", event.EventID)
}
