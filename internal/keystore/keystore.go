// Package keystore implements the Key Store: the set
// of LLM-provider credentials grouped by provider, with per-key daily
// request counters, cooldown, and day rollover. Grounded on an
// explicit New/shutdown connection-pool lifecycle (no ambient
// singleton), generalized here to credential lifecycle instead of
// HTTP client lifecycle.
package keystore

import (
	"sync"
	"time"

	"github.com/nocturnal-archive/gateway/internal/concurrency"
	"github.com/nocturnal-archive/gateway/internal/model"
)

// Store owns all ProviderKeys for the process. The LLM Router borrows
// a key for the duration of one outbound call and reports the outcome
// back via MarkSuccess/MarkRateLimited/MarkCooldown.
type Store struct {
	mu    sync.Mutex
	byKey map[string]*model.ProviderKey   // keyMaterial -> key
	order map[string][]string             // provider -> ordered keyMaterial list (rotation order)
	cur   map[string]int                  // provider -> index of last-used key
	locks *concurrency.KeyedMutex         // per-key serialization for rollover/mutation
	now   func() time.Time
}

// New constructs an empty Store.
func New() *Store {
	return &Store{
		byKey: make(map[string]*model.ProviderKey),
		order: make(map[string][]string),
		cur:   make(map[string]int),
		locks: concurrency.NewKeyedMutex(),
		now:   time.Now,
	}
}

// Register adds a ProviderKey to the store. Intended to be called once
// at startup per configured credential; not safe to call concurrently
// with selection.
func (s *Store) Register(k model.ProviderKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := k
	s.byKey[k.KeyMaterial] = &stored
	s.order[k.Provider] = append(s.order[k.Provider], k.KeyMaterial)
}

// NextEligible returns the next eligible key for provider in
// round-robin order starting after the key it last handed out (whether
// or not that call succeeded), or
// false if none are eligible. Performs day rollover for every key of
// provider before selecting.
func (s *Store) NextEligible(provider string) (*model.ProviderKey, bool) {
	s.mu.Lock()
	keys := s.order[provider]
	start := s.cur[provider]
	s.mu.Unlock()

	if len(keys) == 0 {
		return nil, false
	}

	now := s.now()
	for i := 0; i < len(keys); i++ {
		idx := (start + 1 + i) % len(keys)
		keyMaterial := keys[idx]

		k := s.rollover(keyMaterial, now)
		if k.Eligible(now) {
			s.mu.Lock()
			s.cur[provider] = idx
			s.mu.Unlock()
			cp := *k
			return &cp, true
		}
	}
	return nil, false
}

// HasEligible reports whether provider has at least one eligible key,
// without mutating rotation state. Used to pick the first priority
// provider with ≥1 eligible key.
func (s *Store) HasEligible(provider string) bool {
	s.mu.Lock()
	keys := append([]string(nil), s.order[provider]...)
	s.mu.Unlock()

	now := s.now()
	for _, keyMaterial := range keys {
		if s.rollover(keyMaterial, now).Eligible(now) {
			return true
		}
	}
	return false
}

// rollover resets requests_today if last_reset_utc_date differs from
// today, under a per-key lock, and returns the live key.
func (s *Store) rollover(keyMaterial string, now time.Time) *model.ProviderKey {
	unlock := s.locks.Lock(keyMaterial)
	defer unlock()

	s.mu.Lock()
	k := s.byKey[keyMaterial]
	s.mu.Unlock()

	today := now.UTC().Format("2006-01-02")
	if k.LastResetUTCDate != today {
		k.RequestsToday = 0
		k.IneligibleToday = false
		k.LastResetUTCDate = today
	}
	return k
}

// MarkSuccess increments the key's daily request counter after a
// successful outbound call.
func (s *Store) MarkSuccess(keyMaterial string) {
	unlock := s.locks.Lock(keyMaterial)
	defer unlock()
	s.mu.Lock()
	k := s.byKey[keyMaterial]
	s.mu.Unlock()
	k.RequestsToday++
}

// MarkIneligible marks the key ineligible for the rest of the UTC day,
// used on RATE_LIMITED (429) or AUTH (401/403) failures.
func (s *Store) MarkIneligible(keyMaterial string) {
	unlock := s.locks.Lock(keyMaterial)
	defer unlock()
	s.mu.Lock()
	k := s.byKey[keyMaterial]
	s.mu.Unlock()
	k.IneligibleToday = true
}

// MarkCooldown places the key in cooldown until now+d, used on TIMEOUT
// or 5xx failures.
func (s *Store) MarkCooldown(keyMaterial string, d time.Duration) {
	unlock := s.locks.Lock(keyMaterial)
	defer unlock()
	s.mu.Lock()
	k := s.byKey[keyMaterial]
	s.mu.Unlock()
	k.CooldownUntil = s.now().Add(d)
}

// Snapshot returns a copy of every key's current state, keyed by
// provider, for the GET /v1/providers/health observability endpoint.
func (s *Store) Snapshot() map[string][]model.ProviderKey {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string][]model.ProviderKey, len(s.order))
	for provider, keys := range s.order {
		for _, km := range keys {
			out[provider] = append(out[provider], *s.byKey[km])
		}
	}
	return out
}
