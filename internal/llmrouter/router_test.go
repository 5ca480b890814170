package llmrouter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nocturnal-archive/gateway/internal/keystore"
	"github.com/nocturnal-archive/gateway/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okServer(t *testing.T, content string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"role": "assistant", "content": content}},
			},
			"usage": map[string]int{"total_tokens": 10},
		})
	}))
}

func statusServer(t *testing.T, status int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
}

func newTestKeyStore(providerKeys map[string][]string) *keystore.Store {
	ks := keystore.New()
	for provider, keys := range providerKeys {
		for _, k := range keys {
			ks.Register(model.ProviderKey{Provider: provider, KeyMaterial: k, DailyRequestLimit: 1000})
		}
	}
	return ks
}

func TestRouteSucceedsOnFirstProvider(t *testing.T) {
	srv := okServer(t, "answer")
	defer srv.Close()

	keys := newTestKeyStore(map[string][]string{"groq": {"groq-key-1"}})
	r := New([]string{"groq"}, []ProviderConfig{{Name: "groq", BaseURL: srv.URL, Model: "llama-3"}}, keys, 4, time.Second, time.Minute, 5)

	result, err := r.Route(context.Background(), []Message{{Role: "user", Content: "hi"}})
	require.NoError(t, err)
	assert.Equal(t, "answer", result.Text)
	assert.Equal(t, "groq", result.Provider)
	assert.Equal(t, "llama-3", result.Model)
}

func TestRouteFailsOverToSecondProviderOnRateLimit(t *testing.T) {
	rateLimited := statusServer(t, http.StatusTooManyRequests)
	defer rateLimited.Close()
	healthy := okServer(t, "from cerebras")
	defer healthy.Close()

	keys := newTestKeyStore(map[string][]string{
		"groq":     {"groq-key-1"},
		"cerebras": {"cerebras-key-1"},
	})
	providers := []ProviderConfig{
		{Name: "groq", BaseURL: rateLimited.URL, Model: "llama-3"},
		{Name: "cerebras", BaseURL: healthy.URL, Model: "llama-3.1"},
	}
	r := New([]string{"groq", "cerebras"}, providers, keys, 4, time.Second, time.Minute, 5)

	result, err := r.Route(context.Background(), []Message{{Role: "user", Content: "hi"}})
	require.NoError(t, err)
	assert.Equal(t, "from cerebras", result.Text)
	assert.Equal(t, "cerebras", result.Provider)
}

func TestRouteExcludesProviderAfterConsecutiveTransientFailures(t *testing.T) {
	down := statusServer(t, http.StatusInternalServerError)
	defer down.Close()
	healthy := okServer(t, "from cloudflare")
	defer healthy.Close()

	keys := newTestKeyStore(map[string][]string{
		"groq":       {"groq-key-1", "groq-key-2"},
		"cloudflare": {"cf-key-1"},
	})
	providers := []ProviderConfig{
		{Name: "groq", BaseURL: down.URL, Model: "llama-3"},
		{Name: "cloudflare", BaseURL: healthy.URL, Model: "llama-3.1"},
	}
	r := New([]string{"groq", "cloudflare"}, providers, keys, 4, time.Second, time.Minute, 6)

	result, err := r.Route(context.Background(), []Message{{Role: "user", Content: "hi"}})
	require.NoError(t, err)
	assert.Equal(t, "from cloudflare", result.Text)
}

func TestRouteReturnsNoCapacityWhenNoEligibleProvider(t *testing.T) {
	keys := keystore.New()
	r := New([]string{"groq"}, []ProviderConfig{{Name: "groq", BaseURL: "http://unused", Model: "m"}}, keys, 4, time.Second, time.Minute, 5)

	_, err := r.Route(context.Background(), []Message{{Role: "user", Content: "hi"}})
	require.Error(t, err)
}
