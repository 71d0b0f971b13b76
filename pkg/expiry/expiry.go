// Package expiry maps a user-selected duration option to an absolute
// deadline. The option set is fixed; the clock always comes from the caller.
package expiry

import (
	"strconv"
	"time"

	"linkdump/pkg/domain"
)

const Never = "never"

// DefaultOption applies when the request omits an expiry.
const DefaultOption = "10"

var presetMinutes = []int{1, 5, 10, 60, 1440, 10080}

type Option struct {
	minutes int
	never   bool
}

// ParseOption accepts a minute count from the preset set, the sentinel
// "never", or the empty string (default). Anything else is ErrInvalidExpiry.
func ParseOption(s string) (Option, error) {
	if s == "" {
		s = DefaultOption
	}
	if s == Never {
		return Option{never: true}, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return Option{}, domain.ErrInvalidExpiry
	}
	for _, m := range presetMinutes {
		if n == m {
			return Option{minutes: n}, nil
		}
	}
	return Option{}, domain.ErrInvalidExpiry
}

// Resolve returns now plus the selected duration, or nil for "never".
func (o Option) Resolve(now time.Time) *time.Time {
	if o.never {
		return nil
	}
	t := now.Add(time.Duration(o.minutes) * time.Minute)
	return &t
}

func (o Option) String() string {
	if o.never {
		return Never
	}
	return strconv.Itoa(o.minutes)
}

// Options lists every accepted option value, shortest-lived first.
func Options() []string {
	out := make([]string, 0, len(presetMinutes)+1)
	for _, m := range presetMinutes {
		out = append(out, strconv.Itoa(m))
	}
	return append(out, Never)
}
