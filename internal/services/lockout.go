package services

import (
	"sync"
	"time"
)

// Lockout counts failed logins per key. After maxFailures failures inside
// the window the key is locked for the lock duration. State is in memory
// and resets on restart.
type Lockout struct {
	maxFailures int
	window      time.Duration
	lockFor     time.Duration
	now         func() time.Time

	mu      sync.Mutex
	entries map[string]*lockoutEntry
}

type lockoutEntry struct {
	failures    int
	firstAt     time.Time
	lockedUntil time.Time
}

func NewLockout(maxFailures int, lockFor time.Duration) *Lockout {
	if maxFailures <= 0 {
		maxFailures = 5
	}
	if lockFor <= 0 {
		lockFor = 15 * time.Minute
	}
	return &Lockout{
		maxFailures: maxFailures,
		window:      lockFor,
		lockFor:     lockFor,
		now:         time.Now,
		entries:     make(map[string]*lockoutEntry),
	}
}

// Locked reports whether key is locked and for how much longer.
func (l *Lockout) Locked(key string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[key]
	if !ok {
		return false, 0
	}
	now := l.now()
	if now.Before(e.lockedUntil) {
		return true, e.lockedUntil.Sub(now)
	}
	if !e.lockedUntil.IsZero() {
		delete(l.entries, key)
	}
	return false, 0
}

// RecordFailure counts a failed attempt and reports whether key is now locked.
func (l *Lockout) RecordFailure(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	e, ok := l.entries[key]
	if !ok || now.Sub(e.firstAt) > l.window || (!e.lockedUntil.IsZero() && !now.Before(e.lockedUntil)) {
		e = &lockoutEntry{firstAt: now}
		l.entries[key] = e
	}
	e.failures++
	if e.failures >= l.maxFailures {
		e.lockedUntil = now.Add(l.lockFor)
		return true
	}
	return false
}

func (l *Lockout) Reset(key string) {
	l.mu.Lock()
	delete(l.entries, key)
	l.mu.Unlock()
}
