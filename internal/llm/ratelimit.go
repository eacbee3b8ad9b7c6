package llm

import (
	"sync"
	"time"
)

// RateLimitTracker is the shared mapping "full_model_name -> last 429
// timestamp" consulted and updated by the Retry/Fallback Engine (spec.md
// §4.4). Safe for concurrent use; last-write-wins on concurrent
// RecordRateLimit calls is acceptable (spec.md §5).
type RateLimitTracker struct {
	mu       sync.RWMutex
	lastSeen map[string]time.Time
}

// NewRateLimitTracker returns an empty tracker.
func NewRateLimitTracker() *RateLimitTracker {
	return &RateLimitTracker{lastSeen: make(map[string]time.Time)}
}

// IsRateLimited reports whether model has been rate-limited within the last
// cooldownSecs seconds. An entry older than the cooldown is equivalent to
// absence.
func (t *RateLimitTracker) IsRateLimited(model string, cooldownSecs int) bool {
	t.mu.RLock()
	ts, ok := t.lastSeen[model]
	t.mu.RUnlock()
	if !ok {
		return false
	}
	return time.Since(ts) < time.Duration(cooldownSecs)*time.Second
}

// RecordRateLimit unconditionally overwrites model's timestamp with now.
func (t *RateLimitTracker) RecordRateLimit(model string) {
	t.mu.Lock()
	t.lastSeen[model] = time.Now()
	t.mu.Unlock()
}
