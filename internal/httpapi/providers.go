package httpapi

import (
	"net/http"
	"time"

	"github.com/nocturnal-archive/gateway/internal/keystore"
)

type providersHandler struct {
	keys *keystore.Store
}

type keyHealthDTO struct {
	RequestsToday   int    `json:"requests_today"`
	DailyLimit      int    `json:"daily_request_limit"`
	Eligible        bool   `json:"eligible"`
	CooldownUntil   string `json:"cooldown_until,omitempty"`
	IneligibleToday bool   `json:"ineligible_today"`
}

type providerHealthDTO struct {
	Provider     string         `json:"provider"`
	EligibleKeys int            `json:"eligible_keys"`
	Keys         []keyHealthDTO `json:"keys"`
}

func (h *providersHandler) Health(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	snapshot := h.keys.Snapshot()

	out := make([]providerHealthDTO, 0, len(snapshot))
	for provider, keys := range snapshot {
		dto := providerHealthDTO{Provider: provider, Keys: make([]keyHealthDTO, 0, len(keys))}
		for _, k := range keys {
			eligible := k.Eligible(now)
			if eligible {
				dto.EligibleKeys++
			}
			cooldown := ""
			if !k.CooldownUntil.IsZero() && k.CooldownUntil.After(now) {
				cooldown = k.CooldownUntil.UTC().Format(time.RFC3339)
			}
			dto.Keys = append(dto.Keys, keyHealthDTO{
				RequestsToday:   k.RequestsToday,
				DailyLimit:      k.DailyRequestLimit,
				Eligible:        eligible,
				CooldownUntil:   cooldown,
				IneligibleToday: k.IneligibleToday,
			})
		}
		out = append(out, dto)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"providers": out})
}
