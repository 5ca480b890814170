// Package symbolmap implements the Symbol Map: a
// load-once, runtime-immutable mapping from user-supplied company
// identifiers (ticker or common name) to the canonical upstream
// identifier (SEC CIK) the Facts Store uses to query EDGAR. Grounded
// on a small static lookup table
// table keyed by normalized input, generalized from model-name
// detection to ticker/CIK resolution.
package symbolmap

import "strings"

// Map is an immutable ticker/name → CIK lookup, safe for unsynchronized
// concurrent reads once built.
type Map struct {
	byTicker map[string]string
	byName   map[string]string
}

// Entry is one seed row used to build a Map.
type Entry struct {
	Ticker string
	Name   string
	CIK    string
}

// New builds an immutable Map from entries. Intended to be called
// once at startup from a static seed list or a loaded reference file;
// never mutated afterward.
func New(entries []Entry) *Map {
	m := &Map{
		byTicker: make(map[string]string, len(entries)),
		byName:   make(map[string]string, len(entries)),
	}
	for _, e := range entries {
		if e.Ticker != "" {
			m.byTicker[normalize(e.Ticker)] = e.CIK
		}
		if e.Name != "" {
			m.byName[normalize(e.Name)] = e.CIK
		}
	}
	return m
}

// Resolve returns the canonical CIK for a ticker or company name, and
// whether it was found. Lookup tries ticker first, then common name.
func (m *Map) Resolve(identifier string) (cik string, ok bool) {
	key := normalize(identifier)
	if cik, ok := m.byTicker[key]; ok {
		return cik, true
	}
	if cik, ok := m.byName[key]; ok {
		return cik, true
	}
	return "", false
}

func normalize(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// DefaultSeed is a small bootstrap set of five tickers. The gateway's
// main loads it as its whole mapping, so any other ticker resolves as
// unknown.
var DefaultSeed = []Entry{
	{Ticker: "AAPL", Name: "Apple Inc", CIK: "0000320193"},
	{Ticker: "MSFT", Name: "Microsoft Corp", CIK: "0000789019"},
	{Ticker: "GOOGL", Name: "Alphabet Inc", CIK: "0001652044"},
	{Ticker: "AMZN", Name: "Amazon.com Inc", CIK: "0001018724"},
	{Ticker: "NVDA", Name: "Nvidia Corp", CIK: "0001045810"},
}
