package nats

import (
	"context"
	"fmt"

	"github.com/abgdnv/shelfstock/pkg/messaging"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// streamPublisher is the part of jetstream.JetStream the publisher needs.
type streamPublisher interface {
	PublishMsg(ctx context.Context, msg *nats.Msg, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

type NatsPublisher struct {
	js streamPublisher
}

var _ messaging.Publisher = (*NatsPublisher)(nil)

func NewNatsPublisher(js jetstream.JetStream) *NatsPublisher {
	return &NatsPublisher{js: js}
}

// Publish sends the event and waits for the stream to acknowledge it.
// Events that expose an ID carry it in the Nats-Msg-Id header, which lets JetStream drop duplicates.
func (p *NatsPublisher) Publish(ctx context.Context, event messaging.Event) error {
	data, err := event.Payload()
	if err != nil {
		return fmt.Errorf("%w: %w", messaging.ErrMalformedEvent, err)
	}
	msg := nats.NewMsg(event.Subject())
	msg.Data = data
	var opts []jetstream.PublishOpt
	if id, ok := event.(interface{ ID() string }); ok {
		opts = append(opts, jetstream.WithMsgID(id.ID()))
	}
	if _, err := p.js.PublishMsg(ctx, msg, opts...); err != nil {
		return fmt.Errorf("failed to publish %s: %w", event.Subject(), err)
	}
	return nil
}
