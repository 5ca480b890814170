package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/nocturnal-archive/gateway/internal/apperr"
	"github.com/nocturnal-archive/gateway/internal/middleware"
	"github.com/nocturnal-archive/gateway/internal/model"
	"github.com/nocturnal-archive/gateway/internal/pipeline"
	"github.com/rs/zerolog"
)

type queryHandler struct {
	pipeline *pipeline.Pipeline
	logger   zerolog.Logger
}

type exchangeDTO struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type queryRequest struct {
	Question           string        `json:"question"`
	ConversationHistory []exchangeDTO `json:"conversation_history"`
	APIContext          interface{}   `json:"api_context"`
}

type queryResponseDTO struct {
	AnswerText    string            `json:"answer_text"`
	Citations     []model.Citation  `json:"citations"`
	ToolsUsed     []string          `json:"tools_used"`
	QualityFlags  []string          `json:"quality_flags"`
	TokensCharged int               `json:"tokens_charged"`
}

func (h *queryHandler) Handle(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, apperr.New(apperr.InvalidRequest, "malformed request body"))
		return
	}
	if req.Question == "" {
		writeProblem(w, apperr.New(apperr.InvalidRequest, "question is required"))
		return
	}

	userID := middleware.GetUserID(r.Context())

	history := make([]pipeline.Exchange, 0, len(req.ConversationHistory)/2)
	for i := 0; i+1 < len(req.ConversationHistory); i += 2 {
		history = append(history, pipeline.Exchange{
			Question: req.ConversationHistory[i].Content,
			Answer:   req.ConversationHistory[i+1].Content,
		})
	}

	resp, err := h.pipeline.Handle(r.Context(), userID, req.Question, history)
	if err != nil {
		writeProblem(w, err)
		return
	}

	citations := resp.Citations
	if citations == nil {
		citations = []model.Citation{}
	}

	writeJSON(w, http.StatusOK, queryResponseDTO{
		AnswerText:    resp.AnswerText,
		Citations:     citations,
		ToolsUsed:     nonNil(resp.ToolsUsed),
		QualityFlags:  nonNil(resp.QualityFlags),
		TokensCharged: resp.TokensCharged,
	})
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
