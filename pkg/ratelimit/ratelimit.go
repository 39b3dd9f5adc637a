package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Lock serializes outbound calls to a rate limited service and enforces a
// minimum wait between consecutive calls.
type Lock interface {
	Lock(ctx context.Context) (unlock func())
}

type lock struct {
	lck  sync.Mutex
	wait time.Duration
	last time.Time
}

func New(wait time.Duration) Lock {
	return &lock{
		wait: wait,
	}
}

func (l *lock) Lock(ctx context.Context) func() {
	l.lck.Lock()
	if d := l.wait - time.Since(l.last); d > 0 {
		t := time.NewTimer(d)
		select {
		case <-ctx.Done():
			t.Stop()
		case <-t.C:
		}
	}
	return func() {
		l.last = time.Now()
		l.lck.Unlock()
	}
}
