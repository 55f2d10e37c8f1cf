package resilience

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/abgdnv/shelfstock/pkg/config"
	"github.com/abgdnv/shelfstock/pkg/messaging"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/require"
)

var errBroker = errors.New("broker unavailable")

// scriptedPublisher returns the queued errors one per call and nil once the queue is empty.
// Not thread-safe, should be used in sequential tests only.
type scriptedPublisher struct {
	calls     int
	responses []error
}

func (p *scriptedPublisher) Publish(context.Context, messaging.Event) error {
	p.calls++
	if len(p.responses) == 0 {
		return nil
	}
	err := p.responses[0]
	p.responses = p.responses[1:]
	return err
}

type testEvent struct{}

func (testEvent) Subject() string          { return "stock.low.P1" }
func (testEvent) Payload() ([]byte, error) { return []byte(`{}`), nil }

func setup(responses ...error) (*Publisher, *scriptedPublisher) {
	next := &scriptedPublisher{responses: responses}
	breaker := NewCircuitBreaker("test", config.CircuitBreakerConfig{
		ConsecutiveFailures: 5,
		ErrorRatePercent:    60,
		OpenTimeout:         5 * time.Second,
	}, slog.New(slog.DiscardHandler))
	retry := config.RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond}
	return NewPublisher(next, breaker, retry), next
}

func TestPublisher_HappyPath(t *testing.T) {
	// given
	p, next := setup()

	// when
	err := p.Publish(context.Background(), testEvent{})

	// then
	require.NoError(t, err)
	require.Equal(t, 1, next.calls)
}

func TestPublisher_RetryOnTransientError(t *testing.T) {
	// given
	p, next := setup(errBroker, errBroker)

	// when
	err := p.Publish(context.Background(), testEvent{})

	// then
	require.NoError(t, err)
	require.Equal(t, 3, next.calls, "publisher should be called 3 times due to retries")
}

func TestPublisher_NoRetryOnMalformedEvent(t *testing.T) {
	// given
	p, next := setup(messaging.ErrMalformedEvent)

	// when
	err := p.Publish(context.Background(), testEvent{})

	// then
	require.ErrorIs(t, err, messaging.ErrMalformedEvent)
	require.Equal(t, 1, next.calls)
}

func TestPublisher_GivesUpAfterMaxAttempts(t *testing.T) {
	// given
	p, next := setup(errBroker, errBroker, errBroker, errBroker)

	// when
	err := p.Publish(context.Background(), testEvent{})

	// then
	require.ErrorIs(t, err, errBroker)
	require.Equal(t, 3, next.calls)
}

func TestPublisher_CircuitBreakerOpens(t *testing.T) {
	// given
	// ConsecutiveFailures > 5 needs 6 failed attempts, i.e. two publishes of 3 attempts each.
	p, next := setup(errBroker, errBroker, errBroker, errBroker, errBroker, errBroker)

	require.Error(t, p.Publish(context.Background(), testEvent{}))
	require.Error(t, p.Publish(context.Background(), testEvent{}))
	require.Equal(t, 6, next.calls)

	// when
	err := p.Publish(context.Background(), testEvent{})

	// then
	require.ErrorIs(t, err, gobreaker.ErrOpenState)
	require.Equal(t, 6, next.calls, "open breaker should block the call")
}

func TestPublisher_CircuitBreakerIgnoresMalformedEvents(t *testing.T) {
	// given
	responses := make([]error, 10)
	for i := range responses {
		responses[i] = messaging.ErrMalformedEvent
	}
	p, next := setup(responses...)

	// when
	for range 10 {
		err := p.Publish(context.Background(), testEvent{})
		// then
		require.ErrorIs(t, err, messaging.ErrMalformedEvent)
	}

	// then
	require.Equal(t, 10, next.calls)
}
