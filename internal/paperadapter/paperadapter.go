// Package paperadapter implements the Paper Adapter:
// concurrent multi-source academic paper search, validity
// filtering, cross-source dedup, and relevance-ranked merge. Grounded
// on a golang.org/x/sync/errgroup fan-out pattern, generalized from a
// single concurrent task group into a per-source bounded dispatch with
// individual timeouts.
package paperadapter

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/nocturnal-archive/gateway/internal/model"
	"golang.org/x/sync/errgroup"
)

// Source is one academic-paper provider (e.g. OpenAlex, Semantic
// Scholar). Implementations return raw, unvalidated records; the
// Adapter owns P1 validation and dedup.
type Source interface {
	Name() string
	Search(ctx context.Context, query string, limit int) ([]model.Paper, error)
}

// RetryableSource is implemented by sources that can retry once with a
// reduced parameter set after a client-side validation failure (422).
type RetryableSource interface {
	Source
	SearchReduced(ctx context.Context, query string, limit int) ([]model.Paper, error)
}

// ValidationError marks a source failure as a client-side validation
// rejection (e.g. upstream HTTP 422), eligible for the one-shot
// reduced-parameter retry.
type ValidationError struct{ Err error }

func (e *ValidationError) Error() string { return e.Err.Error() }
func (e *ValidationError) Unwrap() error { return e.Err }

// Adapter dispatches to every configured source concurrently.
type Adapter struct {
	sources []Source
}

// New constructs an Adapter over the given sources, in priority order
// for merge tie-breaking.
func New(sources []Source) *Adapter {
	return &Adapter{sources: sources}
}

// sourceResult carries one source's validated output.
type sourceResult struct {
	papers []model.Paper
}

// SearchPapers dispatches query to every source concurrently with the
// per-call deadline already bound into ctx, normalizes and validates
// results (P1), deduplicates across sources, and returns up to limit
// papers ranked by relevance.
func (a *Adapter) SearchPapers(ctx context.Context, query string, limit int, only []string) ([]model.Paper, bool, error) {
	selected := a.selectSources(only)
	if len(selected) == 0 {
		return nil, true, nil
	}

	results := make([]sourceResult, len(selected))
	g, gctx := errgroup.WithContext(ctx)
	var mu sync.Mutex

	for i, src := range selected {
		i, src := i, src
		g.Go(func() error {
			papers, err := src.Search(gctx, query, limit)
			if isValidationFailure(err) {
				if retryable, ok := src.(RetryableSource); ok {
					papers, err = retryable.SearchReduced(gctx, query, limit)
				}
			}
			if err != nil {
				// Adapter failures are recoverable; this
				// source contributes nothing rather than failing the request.
				return nil
			}
			mu.Lock()
			results[i] = sourceResult{papers: validate(papers)}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait() // individual source errors are already absorbed above

	merged := dedupe(flatten(results))
	ranked := rank(merged)
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}

	return ranked, len(ranked) == 0, nil
}

func (a *Adapter) selectSources(only []string) []Source {
	if len(only) == 0 {
		return a.sources
	}
	want := make(map[string]bool, len(only))
	for _, n := range only {
		want[n] = true
	}
	var out []Source
	for _, s := range a.sources {
		if want[s.Name()] {
			out = append(out, s)
		}
	}
	return out
}

func isValidationFailure(err error) bool {
	var ve *ValidationError
	for e := err; e != nil; {
		if v, ok := e.(*ValidationError); ok {
			ve = v
			break
		}
		u, ok := e.(interface{ Unwrap() error })
		if !ok {
			break
		}
		e = u.Unwrap()
	}
	return ve != nil
}

// validate drops records with an empty title or missing year.
func validate(papers []model.Paper) []model.Paper {
	out := make([]model.Paper, 0, len(papers))
	for _, p := range papers {
		if p.Valid() {
			out = append(out, p)
		}
	}
	return out
}

func flatten(results []sourceResult) []model.Paper {
	var out []model.Paper
	for _, r := range results {
		out = append(out, r.papers...)
	}
	return out
}

// dedupe collapses duplicate papers across sources: by DOI when
// present, else by normalized (title, year, first_author).
func dedupe(papers []model.Paper) []model.Paper {
	seen := make(map[string]bool, len(papers))
	out := make([]model.Paper, 0, len(papers))
	for _, p := range papers {
		key := dedupeKey(p)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, p)
	}
	return out
}

func dedupeKey(p model.Paper) string {
	if p.DOI != "" {
		return "doi:" + strings.ToLower(strings.TrimSpace(p.DOI))
	}
	firstAuthor := ""
	if len(p.Authors) > 0 {
		firstAuthor = strings.ToLower(strings.TrimSpace(p.Authors[0]))
	}
	return strings.Join([]string{
		strings.ToLower(strings.TrimSpace(p.Title)),
		strconv.Itoa(p.Year),
		firstAuthor,
	}, "|")
}

// rank orders papers by source-supplied relevance descending; papers
// without a score (HasScore == false) are appended last, in their
// original order.
func rank(papers []model.Paper) []model.Paper {
	scored := make([]model.Paper, 0, len(papers))
	unscored := make([]model.Paper, 0, len(papers))
	for _, p := range papers {
		if p.HasScore {
			scored = append(scored, p)
		} else {
			unscored = append(unscored, p)
		}
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Relevance > scored[j].Relevance })
	return append(scored, unscored...)
}
