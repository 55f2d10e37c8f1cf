// Package messaging defines the events the service emits and the publisher abstraction that carries them.
package messaging

import (
	"context"
	"errors"
)

// StockLowSubject is the subject of low-stock alerts. The product code is appended as the last token.
const StockLowSubject = "stock.low"

// ErrMalformedEvent is returned when an event cannot be serialized. Retrying does not help.
var ErrMalformedEvent = errors.New("malformed event")

// Event is a message with a routing subject and a serialized body.
type Event interface {
	Subject() string
	Payload() ([]byte, error)
}

// Keyed is implemented by events that should be partitioned by key, e.g. per product.
type Keyed interface {
	Key() string
}

// Publisher sends events to a broker.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// NopPublisher drops every event. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
