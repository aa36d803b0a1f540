// Package policy implements the gates applied before and during streaming:
// link expiry, the monthly bandwidth ceiling, CORS, and per-client rate
// limiting.
package policy

import (
	"errors"
	"time"
)

var (
	ErrExpired            = errors.New("policy: link expired")
	ErrBandwidthExhausted = errors.New("policy: monthly bandwidth ceiling reached")
	ErrRateLimited        = errors.New("policy: rate limited")
)

// ExpiryGate enforces spec.md §4.8's link-expiry rule. A zero Seconds
// disables the check entirely.
type ExpiryGate struct {
	Seconds int64
}

// Check returns ErrExpired if messageTime + Seconds is not after now. A zero
// messageTime (send date unknown) is not checked.
func (g ExpiryGate) Check(messageTime time.Time) error {
	if g.Seconds <= 0 || messageTime.IsZero() {
		return nil
	}
	deadline := messageTime.Add(time.Duration(g.Seconds) * time.Second)
	if !deadline.After(time.Now()) {
		return ErrExpired
	}
	return nil
}
