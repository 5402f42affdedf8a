package service

import (
	"sync"
	"time"
)

// Retention holds the current pruning limits. The daemon updates it when the
// config file changes. A zero value disables the corresponding limit.
type Retention struct {
	mu       sync.RWMutex
	maxAge   time.Duration
	maxCount int
}

// NewRetention returns limits of maxAge and maxCount.
func NewRetention(maxAge time.Duration, maxCount int) *Retention {
	return &Retention{maxAge: maxAge, maxCount: maxCount}
}

// Get returns the current limits.
func (r *Retention) Get() (maxAge time.Duration, maxCount int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.maxAge, r.maxCount
}

// Set replaces the limits.
func (r *Retention) Set(maxAge time.Duration, maxCount int) {
	r.mu.Lock()
	r.maxAge, r.maxCount = maxAge, maxCount
	r.mu.Unlock()
}
