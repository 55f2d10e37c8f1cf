package inventory

import (
	"context"
	"fmt"
)

// StockObserver is told when a product's shelf quantity drops below the low-stock threshold.
// Implementations deal with their own failures; nothing is reported back to the coordinator.
type StockObserver interface {
	OnStockLow(ctx context.Context, productCode string, remaining int)
}

// ObserverFunc adapts a function to StockObserver.
type ObserverFunc func(ctx context.Context, productCode string, remaining int)

func (f ObserverFunc) OnStockLow(ctx context.Context, productCode string, remaining int) {
	f(ctx, productCode, remaining)
}

// NotifyMode selects which deductions raise a low-stock alert.
type NotifyMode string

const (
	// NotifyEvery alerts on every deduction that leaves the shelf below the threshold.
	NotifyEvery NotifyMode = "every"
	// NotifyCrossing alerts only on the deduction that takes the shelf from at or above the threshold to below it.
	NotifyCrossing NotifyMode = "crossing"
)

// ParseNotifyMode accepts "every", "crossing" or "" (every).
func ParseNotifyMode(s string) (NotifyMode, error) {
	switch NotifyMode(s) {
	case "", NotifyEvery:
		return NotifyEvery, nil
	case NotifyCrossing:
		return NotifyCrossing, nil
	default:
		return "", fmt.Errorf("unknown notify mode %q", s)
	}
}

func (m NotifyMode) shouldNotify(before, after, threshold int) bool {
	if after >= threshold {
		return false
	}
	if m == NotifyCrossing {
		return before >= threshold
	}
	return true
}
