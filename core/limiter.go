package core

import "sync"

// ResultLimiter enforces a maximum number of events handed out by one
// composition engine call.
type ResultLimiter struct {
	max   int
	count int
	mu    sync.Mutex
}

// NewResultLimiter creates a new limiter with a max number of events.
// If max == 0, unlimited results are allowed.
func NewResultLimiter(max int) *ResultLimiter {
	return &ResultLimiter{max: max}
}

// Add accounts for n more events and returns an error if the limit is exceeded.
// Events of a rejected batch are not counted.
func (rl *ResultLimiter) Add(n int) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if rl.max > 0 && rl.count+n > rl.max {
		return NewError(ErrResultTooLarge, "result exceeds %d events", rl.max)
	}

	rl.count += n

	return nil
}

// Count returns the current number of events accounted for.
func (rl *ResultLimiter) Count() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	return rl.count
}

// Remaining returns how many events are left before hitting the limit.
func (rl *ResultLimiter) Remaining() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if rl.max == 0 {
		return -1 // unlimited
	}

	return rl.max - rl.count
}
