package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/nocturnal-archive/gateway/internal/apperr"
	"github.com/nocturnal-archive/gateway/internal/model"
	"github.com/nocturnal-archive/gateway/internal/paperadapter"
	"github.com/nocturnal-archive/gateway/internal/papercache"
	"github.com/rs/zerolog"
)

type searchHandler struct {
	papers *paperadapter.Adapter
	cache  *papercache.Cache
	logger zerolog.Logger
}

type searchRequest struct {
	Query   string   `json:"query"`
	Limit   int      `json:"limit"`
	Sources []string `json:"sources"`
}

type searchResponseDTO struct {
	Papers       []model.Paper `json:"papers"`
	EmptyResults bool          `json:"empty_results"`
}

func (h *searchHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, apperr.New(apperr.InvalidRequest, "malformed request body"))
		return
	}
	if req.Query == "" {
		writeProblem(w, apperr.New(apperr.InvalidRequest, "query is required"))
		return
	}
	if req.Limit <= 0 {
		req.Limit = 10
	}

	papers, empty, err := h.papers.SearchPapers(r.Context(), req.Query, req.Limit, req.Sources)
	if err != nil {
		writeProblem(w, err)
		return
	}

	h.cache.Put(papers)

	if papers == nil {
		papers = []model.Paper{}
	}

	writeJSON(w, http.StatusOK, searchResponseDTO{Papers: papers, EmptyResults: empty})
}
