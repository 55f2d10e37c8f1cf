package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockWriter struct {
	mock.Mock
}

func (m *mockWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	args := m.Called(ctx, msgs)
	return args.Error(0)
}

func (m *mockWriter) Close() error {
	return m.Called().Error(0)
}

type keyedEvent struct{}

func (keyedEvent) Subject() string          { return "stock.low.P1" }
func (keyedEvent) Payload() ([]byte, error) { return []byte(`{"product_code":"P1"}`), nil }
func (keyedEvent) Key() string              { return "P1" }

type plainEvent struct{}

func (plainEvent) Subject() string          { return "stock.low.P2" }
func (plainEvent) Payload() ([]byte, error) { return []byte(`{}`), nil }

func Test_Producer_Publish_KeyedEvent(t *testing.T) {
	// given
	w := &mockWriter{}
	w.On("WriteMessages", mock.Anything, mock.MatchedBy(func(msgs []kafka.Message) bool {
		return len(msgs) == 1 &&
			string(msgs[0].Key) == "P1" &&
			string(msgs[0].Value) == `{"product_code":"P1"}` &&
			string(msgs[0].Headers[0].Value) == "stock.low.P1"
	})).Return(nil).Once()
	p := &Producer{w: w}

	// when
	err := p.Publish(context.Background(), keyedEvent{})

	// then
	require.NoError(t, err)
	w.AssertExpectations(t)
}

func Test_Producer_Publish_UnkeyedEvent(t *testing.T) {
	// given
	w := &mockWriter{}
	w.On("WriteMessages", mock.Anything, mock.MatchedBy(func(msgs []kafka.Message) bool {
		return len(msgs) == 1 && msgs[0].Key == nil
	})).Return(nil).Once()
	p := &Producer{w: w}

	// when
	err := p.Publish(context.Background(), plainEvent{})

	// then
	require.NoError(t, err)
	w.AssertExpectations(t)
}

func Test_Producer_Publish_WriteError(t *testing.T) {
	// given
	errLeader := errors.New("leader not available")
	w := &mockWriter{}
	w.On("WriteMessages", mock.Anything, mock.Anything).Return(errLeader)
	w.On("Close").Return(nil)
	p := &Producer{w: w}

	// when
	err := p.Publish(context.Background(), keyedEvent{})

	// then
	require.ErrorIs(t, err, errLeader)
	assert.NoError(t, p.Close())
}
