// Package timeframe parses the candle timeframe grammar used by the
// ingestor (chunk stepping and gap detection).
package timeframe

import (
	"fmt"
	"strconv"
	"time"
)

const (
	minute = int64(time.Minute / time.Millisecond)
	hour   = int64(time.Hour / time.Millisecond)
	day    = 24 * hour
	week   = 7 * day
	month  = 30 * day // spec: the month unit is approximated as 30 days
)

// ParseMillis parses a timeframe string of the form "{integer}{m|h|d|w|M}"
// into its duration in milliseconds.
func ParseMillis(tf string) (int64, error) {
	if len(tf) < 2 {
		return 0, fmt.Errorf("timeframe: %q too short", tf)
	}
	unit := tf[len(tf)-1]
	numPart := tf[:len(tf)-1]
	n, err := strconv.ParseInt(numPart, 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("timeframe: invalid numeric part in %q", tf)
	}

	switch unit {
	case 'm':
		return n * minute, nil
	case 'h':
		return n * hour, nil
	case 'd':
		return n * day, nil
	case 'w':
		return n * week, nil
	case 'M':
		return n * month, nil
	default:
		return 0, fmt.Errorf("timeframe: unknown unit %q in %q", string(unit), tf)
	}
}

// MustParseMillis panics on invalid input; only used for compile-time known
// constant timeframes (e.g. in tests and defaults).
func MustParseMillis(tf string) int64 {
	ms, err := ParseMillis(tf)
	if err != nil {
		panic(err)
	}
	return ms
}
