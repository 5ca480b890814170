package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/nocturnal-archive/gateway/internal/apperr"
	"github.com/nocturnal-archive/gateway/internal/llmrouter"
	"github.com/nocturnal-archive/gateway/internal/model"
	"github.com/nocturnal-archive/gateway/internal/papercache"
)

type synthesizeHandler struct {
	cache  *papercache.Cache
	router *llmrouter.Router
}

type synthesizeRequest struct {
	PaperIDs []string `json:"paper_ids"`
	Style    string   `json:"style"`
	Focus    string   `json:"focus"`
}

type synthesizeResponseDTO struct {
	Summary    string `json:"summary"`
	Model      string `json:"model"`
	TokensUsed int    `json:"tokens_used"`
}

func (h *synthesizeHandler) Synthesize(w http.ResponseWriter, r *http.Request) {
	var req synthesizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, apperr.New(apperr.InvalidRequest, "malformed request body"))
		return
	}
	if len(req.PaperIDs) == 0 {
		writeProblem(w, apperr.New(apperr.InvalidRequest, "paper_ids is required"))
		return
	}

	papers := make([]model.Paper, 0, len(req.PaperIDs))
	for _, id := range req.PaperIDs {
		p, ok := h.cache.Get(id)
		if !ok {
			writeProblem(w, apperr.New(apperr.NotFound, fmt.Sprintf("unknown paper id %q", id)))
			return
		}
		papers = append(papers, p)
	}

	messages := []llmrouter.Message{
		{Role: "system", Content: synthesisInstruction(req.Style, req.Focus)},
		{Role: "user", Content: renderPapers(papers)},
	}

	result, err := h.router.Route(r.Context(), messages)
	if err != nil {
		writeProblem(w, apperr.Wrap(apperr.LLMError, "llm router call failed", err))
		return
	}

	writeJSON(w, http.StatusOK, synthesizeResponseDTO{
		Summary:    result.Text,
		Model:      result.Model,
		TokensUsed: result.TokensUsed,
	})
}

func synthesisInstruction(style, focus string) string {
	var b strings.Builder
	b.WriteString("You are a citation-grounded research assistant. Summarize only the papers listed below; never invent papers or claims not present in them.")
	if style != "" {
		fmt.Fprintf(&b, " Style: %s.", style)
	}
	if focus != "" {
		fmt.Fprintf(&b, " Focus: %s.", focus)
	}
	return b.String()
}

func renderPapers(papers []model.Paper) string {
	var b strings.Builder
	for _, p := range papers {
		fmt.Fprintf(&b, "- [%s] %q (%d) authors=%v doi=%s\n  abstract: %s\n", p.PaperID, p.Title, p.Year, p.Authors, p.DOI, p.Abstract)
	}
	return b.String()
}
