package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/nocturnal-archive/gateway/internal/financeadapter"
	"github.com/nocturnal-archive/gateway/internal/model"
	"github.com/rs/zerolog"
)

type financeHandler struct {
	finance *financeadapter.Adapter
	logger  zerolog.Logger
}

type citationDTO struct {
	AccessionID string `json:"accession_id"`
	Source      string `json:"source"`
	Start       string `json:"start"`
	End         string `json:"end"`
}

type calcResponseDTO struct {
	Ticker       string               `json:"ticker"`
	Metric       string               `json:"metric"`
	Period       string               `json:"period"`
	Value        float64              `json:"value"`
	Unit         string               `json:"unit"`
	Inputs       map[string]model.Fact `json:"inputs"`
	Citation     citationDTO          `json:"citation"`
	QualityFlags []string             `json:"quality_flags"`
}

func (h *financeHandler) Calc(w http.ResponseWriter, r *http.Request) {
	ticker := chi.URLParam(r, "ticker")
	metric := chi.URLParam(r, "metric")
	period := r.URL.Query().Get("period")
	if period == "" {
		period = "latest"
	}

	freq := financeadapter.FrequencyForPeriod(period)
	result, err := h.finance.Calc(r.Context(), ticker, metric, period, freq)
	if err != nil {
		writeProblem(w, err)
		return
	}

	var cite citationDTO
	for _, f := range result.Inputs {
		cite = citationDTO{
			AccessionID: f.AccessionID,
			Source:      f.Source,
			Start:       f.PeriodStart.Format("2006-01-02"),
			End:         f.PeriodEnd.Format("2006-01-02"),
		}
		break
	}

	flags := result.QualityFlags
	if flags == nil {
		flags = []string{}
	}

	writeJSON(w, http.StatusOK, calcResponseDTO{
		Ticker:       result.Ticker,
		Metric:       result.Metric,
		Period:       result.Period,
		Value:        result.Value,
		Unit:         result.Unit,
		Inputs:       result.Inputs,
		Citation:     cite,
		QualityFlags: flags,
	})
}
