package web

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
)

// ParamValidator is a function type that validates a parameter.
type ParamValidator func(valueToTest int64) bool

func newComparisonValidator(valueInClosure int64, compareFn func(argValue, closedValue int64) bool) ParamValidator {
	return func(argValue int64) bool {
		return compareFn(argValue, valueInClosure)
	}
}

// between returns a ParamValidator that checks lo <= argument <= hi.
func between(lo, hi int64) ParamValidator {
	return func(argValue int64) bool {
		return argValue >= lo && argValue <= hi
	}
}

// gte returns a ParamValidator that checks if the argument is greater than or equal to the value captured in the closure.
func gte(valToCompareAgainst int64) ParamValidator {
	return newComparisonValidator(valToCompareAgainst, func(argValue, closedValue int64) bool {
		return argValue >= closedValue
	})
}

// ParseValidateGte reads an optional integer query parameter that must be >= value. A missing parameter yields def.
func ParseValidateGte(r *http.Request, w http.ResponseWriter, logger *slog.Logger, key string, value, def int64) (int, bool) {
	return parseValidate(r, w, logger, key, def, gte(value))
}

// ParseValidateBetween reads an optional integer query parameter that must lie in [lo, hi]. A missing parameter yields def.
func ParseValidateBetween(r *http.Request, w http.ResponseWriter, logger *slog.Logger, key string, lo, hi, def int64) (int, bool) {
	return parseValidate(r, w, logger, key, def, between(lo, hi))
}

func parseValidate(r *http.Request, w http.ResponseWriter, logger *slog.Logger, key string, def int64, pValidator ParamValidator) (int, bool) {
	value := r.URL.Query().Get(key)
	if value == "" {
		return int(def), true
	}
	intValue, err := strconv.ParseInt(value, 10, 32)
	if err != nil || !pValidator(intValue) {
		RespondError(w, logger, http.StatusBadRequest, fmt.Sprintf("Invalid %s number: %s", key, value))
		return 0, false
	}
	return int(intValue), true
}
