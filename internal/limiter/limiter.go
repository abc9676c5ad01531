// Package limiter throttles offer creation per maker pubkey.
package limiter

import (
	"context"
	"time"
)

// Limiter gates how fast a single maker pubkey may open new offers.
type Limiter interface {
	// Reserve records a creation attempt and reports whether it is allowed,
	// with a retry-after hint when it is not.
	Reserve(ctx context.Context, pubkey string) (bool, time.Duration, error)
}

// Unlimited is a Limiter that always allows. Used in tests and when the
// window is configured off.
type Unlimited struct{}

// Reserve always allows.
func (Unlimited) Reserve(context.Context, string) (bool, time.Duration, error) {
	return true, 0, nil
}
