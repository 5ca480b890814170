// Package factsstore implements the Facts Store: an
// in-process TTL cache over normalized financial facts, single-writer
// per (ticker, concept) via singleflight, with a duration
// band filter as the sole correctness gate on what can ever be
// returned as "latest". Grounded on an accession-number-keyed,
// RWMutex-guarded map with per-entry TTLs, adapted from a DB+file
// hybrid cache into a pure in-process one backed by a pluggable
// upstream source.
package factsstore

import (
	"context"
	"regexp"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/nocturnal-archive/gateway/internal/apperr"
	"github.com/nocturnal-archive/gateway/internal/model"
	"github.com/nocturnal-archive/gateway/internal/symbolmap"
	"golang.org/x/sync/singleflight"
)

// Source fetches raw facts for one concept from an upstream structured
// provider (SEC EDGAR XBRL in production). Implementations return
// facts already attributed with accession_id and source (invariant
// F2); duration-band filtering (F1) is applied by the Store itself so
// it has exactly one owner regardless of how many sources exist.
type Source interface {
	FetchConcept(ctx context.Context, cik, concept string) ([]model.Fact, error)
}

type cacheEntry struct {
	facts     []model.Fact
	fetchedAt time.Time
}

// Store is the single owner of Fact lifetimes.
type Store struct {
	source  Source
	symbols *symbolmap.Map
	ttl     time.Duration
	bandQ   [2]int
	bandA   [2]int
	now     func() time.Time

	mu    sync.RWMutex
	cache map[string]cacheEntry // "ticker|concept" -> entry

	group singleflight.Group
}

// New constructs a Facts Store over source, resolving tickers through
// symbols, caching entries for ttl, and filtering facts into the given
// quarterly/annual duration bands (both [min,max] in days).
func New(source Source, symbols *symbolmap.Map, ttl time.Duration, bandQ, bandA [2]int) *Store {
	return &Store{
		source:  source,
		symbols: symbols,
		ttl:     ttl,
		bandQ:   bandQ,
		bandA:   bandA,
		now:     time.Now,
		cache:   make(map[string]cacheEntry),
	}
}

// GetFact resolves ticker via the Symbol Map, loads (and filters) all
// cached facts for (ticker, concept), and returns the fact matching
// period and freq, or apperr UnknownTicker/NoDataAvailable on failure.
func (s *Store) GetFact(ctx context.Context, ticker, concept, period string, freq model.Frequency) (model.Fact, error) {
	cik, ok := s.symbols.Resolve(ticker)
	if !ok {
		return model.Fact{}, apperr.New(apperr.UnknownTicker, "no known CIK for ticker "+ticker)
	}

	facts, err := s.loadFiltered(ctx, cik, ticker, concept, freq)
	if err != nil {
		return model.Fact{}, err
	}
	if len(facts) == 0 {
		return model.Fact{}, apperr.New(apperr.NoDataAvailable, "no facts for "+ticker+" "+concept)
	}

	if period == "latest" || period == "" {
		sort.Slice(facts, func(i, j int) bool { return facts[i].PeriodEnd.After(facts[j].PeriodEnd) })
		best := facts[0]
		if s.now().Sub(best.PeriodEnd) > 2*365*24*time.Hour {
			best.QualityFlags = appendFlag(best.QualityFlags, model.FlagOldData)
		}
		return best, nil
	}

	return s.bestMatch(facts, period)
}

var (
	quarterPeriodRe = regexp.MustCompile(`^(\d{4})-Q([1-4])$`)
	annualPeriodRe  = regexp.MustCompile(`^(\d{4})$`)
)

// canonicalRange returns the canonical calendar [start, end] for a
// period label like "2025-Q2" or "2025", or ok=false if period isn't
// in either recognized format.
func canonicalRange(period string) (start, end time.Time, ok bool) {
	if m := quarterPeriodRe.FindStringSubmatch(period); m != nil {
		year, _ := strconv.Atoi(m[1])
		q, _ := strconv.Atoi(m[2])
		startMonth := time.Month((q-1)*3 + 1)
		start = time.Date(year, startMonth, 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, 3, 0).Add(-time.Nanosecond), true
	}
	if m := annualPeriodRe.FindStringSubmatch(period); m != nil {
		year, _ := strconv.Atoi(m[1])
		start = time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(1, 0, 0).Add(-time.Nanosecond), true
	}
	return time.Time{}, time.Time{}, false
}

// bestMatch returns the fact whose (period_start, period_end) best
// matches period's canonical calendar range, preferring an exact
// label match first. period formats that don't parse into a canonical
// range (anything but "YYYY-Qn" or "YYYY") fall back to label equality
// only.
func (s *Store) bestMatch(facts []model.Fact, period string) (model.Fact, error) {
	for _, f := range facts {
		if f.PeriodLabel == period {
			return f, nil
		}
	}

	start, end, ok := canonicalRange(period)
	if !ok {
		return model.Fact{}, apperr.New(apperr.NoDataAvailable, "no fact for period "+period)
	}

	var best model.Fact
	var bestDiff time.Duration
	found := false
	for _, f := range facts {
		diff := absDuration(f.PeriodStart.Sub(start)) + absDuration(f.PeriodEnd.Sub(end))
		if !found || diff < bestDiff {
			best, bestDiff, found = f, diff, true
		}
	}
	if !found {
		return model.Fact{}, apperr.New(apperr.NoDataAvailable, "no fact for period "+period)
	}
	return best, nil
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

// loadFiltered returns cached-or-fetched facts for (ticker, concept)
// restricted to freq and passing the duration band filter.
func (s *Store) loadFiltered(ctx context.Context, cik, ticker, concept string, freq model.Frequency) ([]model.Fact, error) {
	all, err := s.load(ctx, cik, ticker, concept)
	if err != nil {
		return nil, err
	}
	band := s.bandQ
	if freq == model.Annual {
		band = s.bandA
	}
	out := make([]model.Fact, 0, len(all))
	for _, f := range all {
		if f.Freq != freq {
			continue
		}
		d := f.DurationDays()
		if d < band[0] || d > band[1] {
			continue
		}
		out = append(out, f)
	}
	return out, nil
}

// load returns every surviving (post-F1) fact for (ticker, concept),
// serving from cache within TTL and collapsing concurrent misses for
// the same key into one upstream fetch.
func (s *Store) load(ctx context.Context, cik, ticker, concept string) ([]model.Fact, error) {
	key := ticker + "|" + concept

	s.mu.RLock()
	entry, ok := s.cache[key]
	s.mu.RUnlock()
	if ok && s.now().Sub(entry.fetchedAt) < s.ttl {
		return entry.facts, nil
	}

	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		raw, err := s.source.FetchConcept(ctx, cik, concept)
		if err != nil {
			return nil, err
		}
		filtered := filterDurationBand(raw, s.bandQ, s.bandA)
		s.mu.Lock()
		s.cache[key] = cacheEntry{facts: filtered, fetchedAt: s.now()}
		s.mu.Unlock()
		return filtered, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]model.Fact), nil
}

// filterDurationBand filters at ingest: any fact whose
// computed duration falls outside its frequency's band is discarded
// before ever entering the cache.
func filterDurationBand(facts []model.Fact, bandQ, bandA [2]int) []model.Fact {
	out := make([]model.Fact, 0, len(facts))
	for _, f := range facts {
		d := f.DurationDays()
		switch f.Freq {
		case model.Quarterly:
			if d < bandQ[0] || d > bandQ[1] {
				continue
			}
		case model.Annual:
			if d < bandA[0] || d > bandA[1] {
				continue
			}
		}
		out = append(out, f)
	}
	return out
}

func appendFlag(flags []string, flag string) []string {
	for _, f := range flags {
		if f == flag {
			return flags
		}
	}
	return append(flags, flag)
}
