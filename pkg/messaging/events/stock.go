package events

import (
	"encoding/json"
	"time"

	"github.com/abgdnv/shelfstock/pkg/messaging"
	"github.com/google/uuid"
)

// StockLowEvent tells subscribers that a product's shelf stock fell below the alert threshold.
type StockLowEvent struct {
	Carrier     map[string]string `json:"carrier,omitempty"`
	EventID     uuid.UUID         `json:"event_id"`
	ProductCode string            `json:"product_code"`
	Remaining   int               `json:"remaining"`
	Threshold   int               `json:"threshold"`
	OccurredAt  time.Time         `json:"occurred_at"`
}

func (e StockLowEvent) Subject() string {
	return messaging.StockLowSubject + "." + e.ProductCode
}

func (e StockLowEvent) ID() string {
	return e.EventID.String()
}

func (e StockLowEvent) Key() string {
	return e.ProductCode
}

func (e StockLowEvent) Payload() ([]byte, error) {
	return json.Marshal(e)
}
