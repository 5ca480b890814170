package paperadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/nocturnal-archive/gateway/internal/model"
)

// OpenAlexSource queries the OpenAlex works API, the Paper Adapter's
// default source.
type OpenAlexSource struct {
	client  *http.Client
	baseURL string
}

// NewOpenAlexSource constructs an OpenAlexSource with the given
// per-call timeout.
func NewOpenAlexSource(timeout time.Duration) *OpenAlexSource {
	return &OpenAlexSource{
		client:  &http.Client{Timeout: timeout},
		baseURL: "https://api.openalex.org/works",
	}
}

func (s *OpenAlexSource) Name() string { return "openalex" }

type openAlexResponse struct {
	Results []struct {
		ID              string `json:"id"`
		DOI             string `json:"doi"`
		Title           string `json:"title"`
		PublicationYear int    `json:"publication_year"`
		Abstract        string `json:"abstract,omitempty"`
		Authorships     []struct {
			Author struct {
				DisplayName string `json:"display_name"`
			} `json:"author"`
		} `json:"authorships"`
		PrimaryLocation struct {
			Source struct {
				DisplayName string `json:"display_name"`
			} `json:"source"`
		} `json:"primary_location"`
		RelevanceScore float64 `json:"relevance_score"`
	} `json:"results"`
}

func (s *OpenAlexSource) Search(ctx context.Context, query string, limit int) ([]model.Paper, error) {
	return s.search(ctx, query, limit)
}

// SearchReduced retries with a smaller per_page value and no extra
// filters, OpenAlex's most common source of a 422 being an
// out-of-range per_page parameter.
func (s *OpenAlexSource) SearchReduced(ctx context.Context, query string, limit int) ([]model.Paper, error) {
	reduced := limit
	if reduced > 25 {
		reduced = 25
	}
	return s.search(ctx, query, reduced)
}

func (s *OpenAlexSource) search(ctx context.Context, query string, limit int) ([]model.Paper, error) {
	u := fmt.Sprintf("%s?search=%s&per_page=%d", s.baseURL, url.QueryEscape(query), limit)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openalex: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnprocessableEntity {
		return nil, &ValidationError{Err: fmt.Errorf("openalex: 422 for query %q", query)}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("openalex: unexpected status %d", resp.StatusCode)
	}

	var parsed openAlexResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("openalex: decode: %w", err)
	}

	out := make([]model.Paper, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		authors := make([]string, 0, len(r.Authorships))
		for _, a := range r.Authorships {
			authors = append(authors, a.Author.DisplayName)
		}
		out = append(out, model.Paper{
			PaperID:   r.ID,
			Title:     r.Title,
			Authors:   authors,
			Year:      r.PublicationYear,
			Venue:     r.PrimaryLocation.Source.DisplayName,
			DOI:       r.DOI,
			Abstract:  r.Abstract,
			Source:    s.Name(),
			Relevance: r.RelevanceScore,
			HasScore:  r.RelevanceScore != 0,
		})
	}
	return out, nil
}
