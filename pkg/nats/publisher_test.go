package nats

import (
	"context"
	"errors"
	"testing"

	"github.com/abgdnv/shelfstock/pkg/messaging"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStream struct {
	msgs  []*nats.Msg
	opts  int
	error error
}

func (f *fakeStream) PublishMsg(_ context.Context, msg *nats.Msg, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error) {
	if f.error != nil {
		return nil, f.error
	}
	f.msgs = append(f.msgs, msg)
	f.opts = len(opts)
	return &jetstream.PubAck{Stream: "STOCK"}, nil
}

type testEvent struct {
	id      string
	payload []byte
	err     error
}

func (e testEvent) Subject() string { return "stock.low.P1" }

func (e testEvent) Payload() ([]byte, error) { return e.payload, e.err }

type identifiedEvent struct{ testEvent }

func (e identifiedEvent) ID() string { return e.id }

func Test_NatsPublisher_Publish(t *testing.T) {
	errBroker := errors.New("no responders")
	errPayload := errors.New("bad payload")

	testCases := []struct {
		name         string
		stream       *fakeStream
		event        messaging.Event
		expectedErr  error
		expectedOpts int
	}{
		{name: "plain event", stream: &fakeStream{}, event: testEvent{payload: []byte(`{}`)}},
		{name: "event with id is deduplicated", stream: &fakeStream{}, event: identifiedEvent{testEvent{id: "e-1", payload: []byte(`{}`)}}, expectedOpts: 1},
		{name: "payload failure", stream: &fakeStream{}, event: testEvent{err: errPayload}, expectedErr: errPayload},
		{name: "broker failure", stream: &fakeStream{error: errBroker}, event: testEvent{payload: []byte(`{}`)}, expectedErr: errBroker},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// given
			p := &NatsPublisher{js: tc.stream}

			// when
			err := p.Publish(context.Background(), tc.event)

			// then
			if tc.expectedErr != nil {
				require.ErrorIs(t, err, tc.expectedErr)
				assert.Empty(t, tc.stream.msgs)
				return
			}
			require.NoError(t, err)
			require.Len(t, tc.stream.msgs, 1)
			assert.Equal(t, "stock.low.P1", tc.stream.msgs[0].Subject)
			assert.Equal(t, []byte(`{}`), tc.stream.msgs[0].Data)
			assert.Equal(t, tc.expectedOpts, tc.stream.opts)
		})
	}
}
