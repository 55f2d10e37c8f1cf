package model

import (
	"fmt"
	"time"

	perrors "github.com/abgdnv/shelfstock/internal/errors"
)

// Day truncates t to its calendar date, expressed as midnight UTC.
// All entity dates are kept in this form so that comparisons ignore clock time.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// MustParseDay parses a YYYY-MM-DD date and panics on malformed input. Intended for tests and fixtures.
func MustParseDay(s string) time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return t
}

// ParseDay parses a YYYY-MM-DD date.
func ParseDay(s string) (time.Time, error) {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q is not a YYYY-MM-DD date", perrors.ErrInvalidArgument, s)
	}
	return t, nil
}
