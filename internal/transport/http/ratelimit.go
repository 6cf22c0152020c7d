package http

import (
	"sync"
	"time"
)

// frameLimitWindow is how often a connection's frame budget is refilled.
const frameLimitWindow = time.Minute

// frameLimiter caps the inbound frames of one WebSocket connection per window.
// A zero limit disables it.
type frameLimiter struct {
	mu     sync.Mutex
	limit  int
	used   int
	window time.Duration
}

func newFrameLimiter(limit int, window time.Duration) *frameLimiter {
	if window <= 0 {
		window = frameLimitWindow
	}
	return &frameLimiter{limit: limit, window: window}
}

// allow spends one frame of the budget and reports whether it was available.
func (l *frameLimiter) allow() bool {
	if l == nil || l.limit <= 0 {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.used >= l.limit {
		return false
	}
	l.used++
	return true
}

// run refills the budget every window until done is closed. done is the
// connection context's Done channel, so the goroutine ends with the stream.
func (l *frameLimiter) run(done <-chan struct{}) {
	if l == nil || l.limit <= 0 {
		return
	}
	ticker := time.NewTicker(l.window)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				l.mu.Lock()
				l.used = 0
				l.mu.Unlock()
			case <-done:
				return
			}
		}
	}()
}
