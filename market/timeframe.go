package market

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

// ErrInvalidTimeframe reports an unparseable timeframe label. Labels are
// a positive integer plus a unit suffix: m, h, d or w.
var ErrInvalidTimeframe = errors.New("invalid timeframe")

// ParseTimeframe converts a label such as "5m", "4h" or "1d" into a
// bucket duration.
func ParseTimeframe(label string) (time.Duration, error) {
	if len(label) < 2 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimeframe, label)
	}
	value, err := strconv.Atoi(label[:len(label)-1])
	if err != nil || value <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimeframe, label)
	}
	switch label[len(label)-1] {
	case 'm':
		return time.Duration(value) * time.Minute, nil
	case 'h':
		return time.Duration(value) * time.Hour, nil
	case 'd':
		return time.Duration(value) * 24 * time.Hour, nil
	case 'w':
		return time.Duration(value) * 7 * 24 * time.Hour, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidTimeframe, label)
}
