package factsstore

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/nocturnal-archive/gateway/internal/model"
)

// EdgarSource fetches XBRL company-concept facts from SEC EDGAR's
// public data API (data.sec.gov/api/xbrl/companyconcept), carrying an
// identifying User-Agent on every request as SEC's access policy
// requires.
type EdgarSource struct {
	client    *http.Client
	baseURL   string
	userAgent string
}

// NewEdgarSource constructs an EdgarSource. userAgent must identify the
// requesting application and a contact address per SEC's fair-access
// policy.
func NewEdgarSource(userAgent string) *EdgarSource {
	return &EdgarSource{
		client:    &http.Client{Timeout: 10 * time.Second},
		baseURL:   "https://data.sec.gov/api/xbrl/companyconcept",
		userAgent: userAgent,
	}
}

type companyConceptResponse struct {
	CIK   int    `json:"cik"`
	Tag   string `json:"tag"`
	Units map[string][]struct {
		Val   float64 `json:"val"`
		Unit  string  `json:"-"`
		Start string  `json:"start"`
		End   string  `json:"end"`
		Accn  string  `json:"accn"`
		FY    int     `json:"fy"`
		FP    string  `json:"fp"`
		Form  string  `json:"form"`
		Frame string  `json:"frame,omitempty"`
	} `json:"units"`
}

// FetchConcept retrieves every reported observation of concept for
// cik and normalizes each into a Fact. Observations missing a "start"
// date (instantaneous balance-sheet tags) are skipped — duration
// filtering only applies to flow concepts, and a point-in-time value
// has no (period_start, period_end) to validate.
func (s *EdgarSource) FetchConcept(ctx context.Context, cik, concept string) ([]model.Fact, error) {
	url := fmt.Sprintf("%s/CIK%s/us-gaap/%s.json", s.baseURL, cik, concept)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", s.userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("edgar: fetch %s/%s: %w", cik, concept, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("edgar: unexpected status %d for %s/%s", resp.StatusCode, cik, concept)
	}

	var parsed companyConceptResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("edgar: decode %s/%s: %w", cik, concept, err)
	}

	var out []model.Fact
	for unit, observations := range parsed.Units {
		for _, o := range observations {
			if o.Start == "" || o.Accn == "" {
				continue
			}
			start, err := time.Parse("2006-01-02", o.Start)
			if err != nil {
				continue
			}
			end, err := time.Parse("2006-01-02", o.End)
			if err != nil {
				continue
			}
			out = append(out, model.Fact{
				Ticker:      cik,
				Concept:     concept,
				Value:       o.Val,
				Unit:        unit,
				PeriodLabel: fmt.Sprintf("%d-%s", o.FY, o.FP),
				PeriodStart: start,
				PeriodEnd:   end,
				AccessionID: o.Accn,
				Source:      "sec-edgar",
				Freq:        frequencyOf(o.FP),
			})
		}
	}
	return out, nil
}

func frequencyOf(fp string) model.Frequency {
	if fp == "FY" {
		return model.Annual
	}
	return model.Quarterly
}
