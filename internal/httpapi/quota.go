package httpapi

import (
	"net/http"

	"github.com/nocturnal-archive/gateway/internal/middleware"
	"github.com/nocturnal-archive/gateway/internal/quota"
)

type quotaHandler struct {
	ledger *quota.Ledger
}

type quotaResponseDTO struct {
	DailyCeiling   int64 `json:"daily_ceiling"`
	TokensConsumed int64 `json:"tokens_consumed"`
	Remaining      int64 `json:"remaining"`
}

func (h *quotaHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	remaining, err := h.ledger.Remaining(r.Context(), userID)
	if err != nil {
		writeProblem(w, err)
		return
	}

	writeJSON(w, http.StatusOK, quotaResponseDTO{
		DailyCeiling:   h.ledger.Ceiling(),
		TokensConsumed: h.ledger.Ceiling() - remaining,
		Remaining:      remaining,
	})
}
