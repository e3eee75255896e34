package classifier

import (
	"sync"
	"time"
)

// slidingWindowLimiter tracks model calls per requester over a one-minute
// sliding window. It only guards the LLM call path, so the requester set is
// small and a mutex-guarded map is enough.
type slidingWindowLimiter struct {
	mu         sync.Mutex
	perMin     int
	window     time.Duration
	now        func() time.Time
	attempts   map[string][]time.Time
	sweepEvery time.Duration
	lastSweep  time.Time
}

func newSlidingWindowLimiter(perMinute int, now func() time.Time) *slidingWindowLimiter {
	if now == nil {
		now = time.Now
	}

	return &slidingWindowLimiter{
		perMin:     perMinute,
		window:     time.Minute,
		now:        now,
		attempts:   make(map[string][]time.Time),
		sweepEvery: 5 * time.Minute,
		lastSweep:  now(),
	}
}

// Allow records an attempt for requesterID and reports whether it is within
// the per-minute budget. Attempts older than the window are discarded.
func (l *slidingWindowLimiter) Allow(requesterID string) bool {
	if l.perMin <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)

	// Idle requesters never trim themselves, so sweep the whole map once in
	// a while to keep it bounded by the active set.
	if now.Sub(l.lastSweep) > l.sweepEvery {
		l.sweep(cutoff)
		l.lastSweep = now
	}

	kept := l.attempts[requesterID][:0]
	for _, t := range l.attempts[requesterID] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}

	if len(kept) >= l.perMin {
		l.attempts[requesterID] = kept

		return false
	}

	l.attempts[requesterID] = append(kept, now)

	return true
}

// sweep drops attempts older than the window for every requester and deletes
// requesters with none left. Caller holds the mutex.
func (l *slidingWindowLimiter) sweep(cutoff time.Time) {
	for id, attempts := range l.attempts {
		kept := attempts[:0]
		for _, t := range attempts {
			if t.After(cutoff) {
				kept = append(kept, t)
			}
		}

		if len(kept) == 0 {
			delete(l.attempts, id)
		} else {
			l.attempts[id] = kept
		}
	}
}
