// Package websearch implements the Web Search Adapter:
// last-resort free-text retrieval for data the structured Paper and
// Finance adapters can't answer. Grounded on the
// RealAlexandreAI/json-repair pack's general "scrape and normalize"
// shape and on goquery-based HTML parsing used elsewhere in the
// corpus, since no search provider in this environment offers a
// structured JSON API without a paid key.
package websearch

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Result is one free-text search hit.
type Result struct {
	Title   string
	URL     string
	Snippet string
}

// Adapter performs last-resort web lookups via HTML scraping of a
// search engine's results page. There is no authenticated API to call
// for this fallback tier, so the adapter parses the rendered results
// page directly with goquery rather than a JSON endpoint.
type Adapter struct {
	client  *http.Client
	baseURL string
}

// New constructs an Adapter with the given per-call timeout.
func New(timeout time.Duration) *Adapter {
	return &Adapter{
		client:  &http.Client{Timeout: timeout},
		baseURL: "https://html.duckduckgo.com/html/",
	}
}

// Search performs a free-text lookup, returning up to limit results.
// Adapter failures (network errors, empty pages) return an empty
// slice rather than an error — adapter failures are
// recoverable and must not fail the whole request.
func (a *Adapter) Search(ctx context.Context, query string, limit int) []Result {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"?q="+url.QueryEscape(query), nil)
	if err != nil {
		return nil
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; nocturnal-archive-gateway/1.0)")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil
	}

	var out []Result
	doc.Find(".result").Each(func(_ int, sel *goquery.Selection) {
		if len(out) >= limit {
			return
		}
		titleEl := sel.Find(".result__a")
		title := strings.TrimSpace(titleEl.Text())
		href, _ := titleEl.Attr("href")
		snippet := strings.TrimSpace(sel.Find(".result__snippet").Text())
		if title == "" || href == "" {
			return
		}
		out = append(out, Result{Title: title, URL: href, Snippet: snippet})
	})
	return out
}

// Summarize renders results as a compact text block for inclusion in
// the synthesis prompt's context section.
func Summarize(results []Result) string {
	var b strings.Builder
	for i, r := range results {
		fmt.Fprintf(&b, "%d. %s (%s)\n%s\n\n", i+1, r.Title, r.URL, r.Snippet)
	}
	return b.String()
}
