package factsstore

import (
	"context"
	"testing"
	"time"

	"github.com/nocturnal-archive/gateway/internal/apperr"
	"github.com/nocturnal-archive/gateway/internal/model"
	"github.com/nocturnal-archive/gateway/internal/symbolmap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	facts map[string][]model.Fact // cik|concept -> facts
	calls int
}

func (f *fakeSource) FetchConcept(ctx context.Context, cik, concept string) ([]model.Fact, error) {
	f.calls++
	return f.facts[cik+"|"+concept], nil
}

func testSymbols() *symbolmap.Map {
	return symbolmap.New([]symbolmap.Entry{{Ticker: "AAPL", CIK: "0000320193"}})
}

func quarterlyFact(label string, end time.Time, value float64) model.Fact {
	return model.Fact{
		Concept:     "Revenues",
		Value:       value,
		Unit:        "USD",
		Freq:        model.Quarterly,
		PeriodLabel: label,
		PeriodStart: end.AddDate(0, 0, -90),
		PeriodEnd:   end,
		AccessionID: "acc-" + label,
	}
}

func TestGetFactUnknownTicker(t *testing.T) {
	src := &fakeSource{}
	s := New(src, testSymbols(), time.Minute, [2]int{60, 120}, [2]int{300, 400})

	_, err := s.GetFact(context.Background(), "NOPE", "Revenues", "latest", model.Quarterly)
	require.Error(t, err)
	ae, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.UnknownTicker, ae.Kind)
}

func TestGetFactLatestPicksMostRecentPeriod(t *testing.T) {
	now := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)
	older := quarterlyFact("2025-Q1", now.AddDate(0, -9, 0), 100)
	newer := quarterlyFact("2025-Q3", now.AddDate(0, -3, 0), 200)

	src := &fakeSource{facts: map[string][]model.Fact{
		"0000320193|Revenues": {older, newer},
	}}
	s := New(src, testSymbols(), time.Minute, [2]int{60, 120}, [2]int{300, 400})
	s.now = func() time.Time { return now }

	fact, err := s.GetFact(context.Background(), "AAPL", "Revenues", "latest", model.Quarterly)
	require.NoError(t, err)
	assert.Equal(t, 200.0, fact.Value)
}

func TestGetFactFiltersOutsideDurationBand(t *testing.T) {
	now := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)
	badDuration := model.Fact{
		Concept: "Revenues", Value: 999, Unit: "USD", Freq: model.Quarterly,
		PeriodLabel: "weird", PeriodStart: now.AddDate(0, 0, -10), PeriodEnd: now,
	}
	src := &fakeSource{facts: map[string][]model.Fact{
		"0000320193|Revenues": {badDuration},
	}}
	s := New(src, testSymbols(), time.Minute, [2]int{60, 120}, [2]int{300, 400})
	s.now = func() time.Time { return now }

	_, err := s.GetFact(context.Background(), "AAPL", "Revenues", "latest", model.Quarterly)
	require.Error(t, err)
	ae, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.NoDataAvailable, ae.Kind)
}

func TestGetFactExactPeriodLabelMatch(t *testing.T) {
	now := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)
	q1 := quarterlyFact("2025-Q1", now.AddDate(0, -9, 0), 100)
	q3 := quarterlyFact("2025-Q3", now.AddDate(0, -3, 0), 200)

	src := &fakeSource{facts: map[string][]model.Fact{
		"0000320193|Revenues": {q1, q3},
	}}
	s := New(src, testSymbols(), time.Minute, [2]int{60, 120}, [2]int{300, 400})
	s.now = func() time.Time { return now }

	fact, err := s.GetFact(context.Background(), "AAPL", "Revenues", "2025-Q1", model.Quarterly)
	require.NoError(t, err)
	assert.Equal(t, 100.0, fact.Value)
}

func annualFact(label string, end time.Time, value float64) model.Fact {
	return model.Fact{
		Concept:     "Revenues",
		Value:       value,
		Unit:        "USD",
		Freq:        model.Annual,
		PeriodLabel: label,
		PeriodStart: end.AddDate(0, 0, -365),
		PeriodEnd:   end,
		AccessionID: "acc-" + label,
	}
}

func TestGetFactAnnualPeriodMatchesCanonicalYearRange(t *testing.T) {
	now := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)
	fy2024 := annualFact("2024-FY", time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC), 900)
	fy2023 := annualFact("2023-FY", time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC), 800)

	src := &fakeSource{facts: map[string][]model.Fact{
		"0000320193|Revenues": {fy2024, fy2023},
	}}
	s := New(src, testSymbols(), time.Minute, [2]int{60, 120}, [2]int{300, 400})
	s.now = func() time.Time { return now }

	fact, err := s.GetFact(context.Background(), "AAPL", "Revenues", "2024", model.Annual)
	require.NoError(t, err)
	assert.Equal(t, 900.0, fact.Value, "bare YYYY period should resolve against the FY-labeled annual fact whose range it covers")
}

func TestGetFactQuarterlyPeriodMatchesCanonicalRangeWithoutExactLabel(t *testing.T) {
	now := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)
	fact := model.Fact{
		Concept: "Revenues", Value: 555, Unit: "USD", Freq: model.Quarterly,
		PeriodLabel: "Q2-25", // non-canonical label shape, doesn't byte-match "2025-Q2"
		PeriodStart: time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:   time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC),
	}
	src := &fakeSource{facts: map[string][]model.Fact{"0000320193|Revenues": {fact}}}
	s := New(src, testSymbols(), time.Minute, [2]int{60, 120}, [2]int{300, 400})
	s.now = func() time.Time { return now }

	got, err := s.GetFact(context.Background(), "AAPL", "Revenues", "2025-Q2", model.Quarterly)
	require.NoError(t, err)
	assert.Equal(t, 555.0, got.Value)
}

func TestGetFactCachesWithinTTL(t *testing.T) {
	now := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)
	fact := quarterlyFact("2025-Q3", now.AddDate(0, -3, 0), 200)
	src := &fakeSource{facts: map[string][]model.Fact{"0000320193|Revenues": {fact}}}
	s := New(src, testSymbols(), time.Hour, [2]int{60, 120}, [2]int{300, 400})
	s.now = func() time.Time { return now }

	_, err := s.GetFact(context.Background(), "AAPL", "Revenues", "latest", model.Quarterly)
	require.NoError(t, err)
	_, err = s.GetFact(context.Background(), "AAPL", "Revenues", "latest", model.Quarterly)
	require.NoError(t, err)

	assert.Equal(t, 1, src.calls, "second call within ttl should be served from cache")
}

func TestGetFactRefetchesAfterTTLExpires(t *testing.T) {
	now := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)
	fact := quarterlyFact("2025-Q3", now.AddDate(0, -3, 0), 200)
	src := &fakeSource{facts: map[string][]model.Fact{"0000320193|Revenues": {fact}}}
	s := New(src, testSymbols(), time.Minute, [2]int{60, 120}, [2]int{300, 400})
	s.now = func() time.Time { return now }

	_, err := s.GetFact(context.Background(), "AAPL", "Revenues", "latest", model.Quarterly)
	require.NoError(t, err)

	s.now = func() time.Time { return now.Add(2 * time.Minute) }
	_, err = s.GetFact(context.Background(), "AAPL", "Revenues", "latest", model.Quarterly)
	require.NoError(t, err)

	assert.Equal(t, 2, src.calls)
}
