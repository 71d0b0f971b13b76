package domain

import (
	"time"
)

type Dump struct {
	Slug      string     `json:"slug"`
	Items     Items      `json:"items"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at"`
	ClientID  string     `json:"-"`
}

type CreateParams struct {
	Text         string
	ExpiryOption string
	ClientID     string
}

// Expired reports logical expiry against the supplied clock; a nil deadline
// never expires.
func (d *Dump) Expired(now time.Time) bool {
	if d.ExpiresAt == nil {
		return false
	}
	return now.After(*d.ExpiresAt)
}

// Remaining returns the time left before expiry, zero when already expired,
// and false when the dump never expires.
func (d *Dump) Remaining(now time.Time) (time.Duration, bool) {
	if d.ExpiresAt == nil {
		return 0, false
	}
	left := d.ExpiresAt.Sub(now)
	if left < 0 {
		left = 0
	}
	return left, true
}
