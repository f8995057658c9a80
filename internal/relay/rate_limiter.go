package relay

import (
	"sync"
	"time"
)

// MemberRateLimiter is a sliding-window limiter keyed by member id. The
// relay uses it to keep one member from flooding a room with chat.
type MemberRateLimiter struct {
	mu       sync.Mutex
	history  map[string][]time.Time
	limit    int
	interval time.Duration
}

func NewMemberRateLimiter(limit int, interval time.Duration) *MemberRateLimiter {
	return &MemberRateLimiter{
		history:  make(map[string][]time.Time),
		limit:    limit,
		interval: interval,
	}
}

func (rl *MemberRateLimiter) Allow(sid string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-rl.interval)

	attempts := rl.history[sid]

	fresh := make([]time.Time, 0, len(attempts))
	for _, t := range attempts {
		if t.After(windowStart) {
			fresh = append(fresh, t)
		}
	}

	if len(fresh) >= rl.limit {
		return false
	}

	fresh = append(fresh, now)
	rl.history[sid] = fresh

	return true
}

func (rl *MemberRateLimiter) Forget(sid string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.history, sid)
}
