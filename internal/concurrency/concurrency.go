// Package concurrency provides the shared-state primitives the rest of
// the gateway uses to enforce ordering guarantees: per-user
// debit serialization, per-key counter mutation, and per-upstream
// backpressure semaphores. Grounded on a keyed-mutex/semaphore pattern,
// pulled out of the HTTP middleware layer so the Quota Ledger, Key
// Store, and adapter clients can all use them directly.
package concurrency

import (
	"sync"
	"sync/atomic"
	"time"
)

// KeyedMutex serializes access to a shared resource identified by a
// string key (e.g. a user id or a provider-key id) without a single
// global lock.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyEntry
}

type keyEntry struct {
	mu      sync.Mutex
	waiters int32
}

// NewKeyedMutex creates a new per-key mutex manager.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*keyEntry)}
}

// Lock acquires the lock for key and returns an unlock function.
func (km *KeyedMutex) Lock(key string) func() {
	km.mu.Lock()
	entry, ok := km.locks[key]
	if !ok {
		entry = &keyEntry{}
		km.locks[key] = entry
	}
	atomic.AddInt32(&entry.waiters, 1)
	km.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()
		km.mu.Lock()
		if atomic.AddInt32(&entry.waiters, -1) == 0 {
			delete(km.locks, key)
		}
		km.mu.Unlock()
	}
}

// Semaphore provides bounded concurrency per key (e.g. per upstream
// provider), used to enforce backpressure ceilings.
type Semaphore struct {
	mu    sync.Mutex
	semas map[string]chan struct{}
	limit int
}

// NewSemaphore creates a semaphore with the given per-key concurrency limit.
func NewSemaphore(limit int) *Semaphore {
	if limit <= 0 {
		limit = 100
	}
	return &Semaphore{semas: make(map[string]chan struct{}), limit: limit}
}

// Acquire attempts to take a slot for key, waiting up to timeout.
// Returns false (never acquired) if the timeout elapses first — the
// caller should treat this as a BUSY condition.
func (s *Semaphore) Acquire(key string, timeout time.Duration) bool {
	s.mu.Lock()
	ch, ok := s.semas[key]
	if !ok {
		ch = make(chan struct{}, s.limit)
		s.semas[key] = ch
	}
	s.mu.Unlock()

	select {
	case ch <- struct{}{}:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Release gives back a slot for key.
func (s *Semaphore) Release(key string) {
	s.mu.Lock()
	ch, ok := s.semas[key]
	s.mu.Unlock()
	if ok {
		select {
		case <-ch:
		default:
		}
	}
}

// ActiveCount returns the number of slots currently held for key.
func (s *Semaphore) ActiveCount(key string) int {
	s.mu.Lock()
	ch, ok := s.semas[key]
	s.mu.Unlock()
	if !ok {
		return 0
	}
	return len(ch)
}
