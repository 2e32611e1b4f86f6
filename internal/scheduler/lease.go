package scheduler

import (
	"sync"
	"time"
)

// RunLease is the single-flight guard around reconciliation runs. A
// lease that is never released expires after its TTL so a crashed run
// cannot block sync forever.
type RunLease struct {
	ttl time.Duration
	now func() time.Time

	mu        sync.Mutex
	expiresAt time.Time
}

// NewRunLease creates a lease with the given TTL
func NewRunLease(ttl time.Duration) *RunLease {
	return &RunLease{ttl: ttl, now: time.Now}
}

// TryAcquire takes the lease if it is free or expired. The returned
// release function is safe to call once, typically deferred.
func (l *RunLease) TryAcquire() (release func(), ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if l.expiresAt.After(now) {
		return nil, false
	}
	l.expiresAt = now.Add(l.ttl)

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			l.expiresAt = time.Time{}
			l.mu.Unlock()
		})
	}, true
}

// Held reports whether an unexpired lease is outstanding
func (l *RunLease) Held() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.expiresAt.After(l.now())
}
