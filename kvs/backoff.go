package kvs

import (
	"context"
	"math/rand"
	"time"
)

const (
	backoffBase = 5 * time.Millisecond
	backoffMax  = time.Second
)

// backoff produces randomized exponentially growing delays
type backoff struct {
	next time.Duration
}

func newBackoff() *backoff {
	return &backoff{next: backoffBase}
}

// wait sleeps for the next delay or until ctx is done
func (b *backoff) wait(ctx context.Context) error {
	// full jitter: uniformly in [0, next)
	delay := time.Duration(rand.Int63n(int64(b.next)))

	if b.next *= 2; b.next > backoffMax {
		b.next = backoffMax
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
