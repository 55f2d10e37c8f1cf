// Package resilience guards outbound calls with retries and a circuit breaker.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/abgdnv/shelfstock/pkg/config"
	"github.com/abgdnv/shelfstock/pkg/messaging"
	"github.com/cenkalti/backoff/v5"
	"github.com/sony/gobreaker/v2"
)

// NewCircuitBreaker builds a breaker that trips on consecutive failures or when the error rate
// exceeds the configured percentage. Malformed events and cancelled contexts are not counted as failures.
func NewCircuitBreaker(name string, cfg config.CircuitBreakerConfig, logger *slog.Logger) *gobreaker.CircuitBreaker[struct{}] {
	st := gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			total := counts.TotalSuccesses + counts.TotalFailures
			return counts.ConsecutiveFailures > cfg.ConsecutiveFailures ||
				(total > cfg.ConsecutiveFailures &&
					float64(counts.TotalFailures)/float64(total)*100 > float64(cfg.ErrorRatePercent))
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !isTransient(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	}
	return gobreaker.NewCircuitBreaker[struct{}](st)
}

// Publisher retries transient publish failures with exponential backoff. Every attempt goes through the breaker;
// once it is open the remaining attempts are skipped.
type Publisher struct {
	next    messaging.Publisher
	breaker *gobreaker.CircuitBreaker[struct{}]
	retry   config.RetryConfig
}

var _ messaging.Publisher = (*Publisher)(nil)

func NewPublisher(next messaging.Publisher, breaker *gobreaker.CircuitBreaker[struct{}], retry config.RetryConfig) *Publisher {
	return &Publisher{next: next, breaker: breaker, retry: retry}
}

func (p *Publisher) Publish(ctx context.Context, event messaging.Event) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.retry.InitialBackoff
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		_, err := p.breaker.Execute(func() (struct{}, error) {
			return struct{}{}, p.next.Publish(ctx, event)
		})
		if err != nil && !isTransient(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(p.retry.MaxAttempts))
	if err != nil {
		return fmt.Errorf("publish %s: %w", event.Subject(), err)
	}
	return nil
}

func isTransient(err error) bool {
	switch {
	case errors.Is(err, messaging.ErrMalformedEvent),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, gobreaker.ErrOpenState),
		errors.Is(err, gobreaker.ErrTooManyRequests):
		return false
	default:
		return true
	}
}
