package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/nocturnal-archive/gateway/internal/apperr"
	"github.com/nocturnal-archive/gateway/internal/financeadapter"
	"github.com/nocturnal-archive/gateway/internal/keystore"
	"github.com/nocturnal-archive/gateway/internal/llmrouter"
	"github.com/nocturnal-archive/gateway/internal/model"
	"github.com/nocturnal-archive/gateway/internal/paperadapter"
	"github.com/nocturnal-archive/gateway/internal/papercache"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() zerolog.Logger { return zerolog.New(io.Discard) }

func TestHealthHandlerReportsOK(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rw := httptest.NewRecorder()
	healthHandler(rw, req)

	assert.Equal(t, http.StatusOK, rw.Result().StatusCode)
	var body map[string]string
	require.NoError(t, json.NewDecoder(rw.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func TestWriteProblemRendersApperrShape(t *testing.T) {
	rw := httptest.NewRecorder()
	writeProblem(rw, apperr.New(apperr.QuotaExceeded, "over budget").WithHint("wait until tomorrow"))

	assert.Equal(t, http.StatusTooManyRequests, rw.Result().StatusCode)
	assert.Equal(t, "application/problem+json", rw.Header().Get("Content-Type"))

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(rw.Body).Decode(&body))
	assert.Equal(t, "QUOTA_EXCEEDED", body["type"])
	assert.Equal(t, "over budget", body["detail"])
	assert.Equal(t, "wait until tomorrow", body["hint"])
}

func TestWriteProblemDefaultsToInternalForUnclassifiedError(t *testing.T) {
	rw := httptest.NewRecorder()
	writeProblem(rw, io.ErrUnexpectedEOF)

	assert.Equal(t, http.StatusInternalServerError, rw.Result().StatusCode)
}

func TestMaxBodySizeWrapsRequestBody(t *testing.T) {
	wrapped := maxBodySize(10)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, err := io.ReadAll(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusRequestEntityTooLarge)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(make([]byte, 100)))
	rw := httptest.NewRecorder()
	wrapped.ServeHTTP(rw, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rw.Result().StatusCode)
}

type fakeFactGetter struct {
	fact model.Fact
	err  error
}

func (f *fakeFactGetter) GetFact(ctx context.Context, ticker, concept, period string, freq model.Frequency) (model.Fact, error) {
	return f.fact, f.err
}

func TestFinanceHandlerCalc(t *testing.T) {
	finance := financeadapter.New(&fakeFactGetter{fact: model.Fact{
		Ticker: "AAPL", Concept: "Revenues", Value: 1000, Unit: "USD",
	}}, nil)
	h := &financeHandler{finance: finance, logger: discardLogger()}

	r := chi.NewRouter()
	r.Get("/v1/finance/calc/{ticker}/{metric}", h.Calc)

	req := httptest.NewRequest(http.MethodGet, "/v1/finance/calc/AAPL/revenue", nil)
	rw := httptest.NewRecorder()
	r.ServeHTTP(rw, req)

	require.Equal(t, http.StatusOK, rw.Result().StatusCode)
	var body calcResponseDTO
	require.NoError(t, json.NewDecoder(rw.Body).Decode(&body))
	assert.Equal(t, 1000.0, body.Value)
}

func TestFinanceHandlerUnknownMetricReturnsProblem(t *testing.T) {
	finance := financeadapter.New(&fakeFactGetter{}, nil)
	h := &financeHandler{finance: finance, logger: discardLogger()}

	r := chi.NewRouter()
	r.Get("/v1/finance/calc/{ticker}/{metric}", h.Calc)

	req := httptest.NewRequest(http.MethodGet, "/v1/finance/calc/AAPL/notarealmetric", nil)
	rw := httptest.NewRecorder()
	r.ServeHTTP(rw, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rw.Result().StatusCode)
}

type fakeSource struct {
	name   string
	papers []model.Paper
}

func (f *fakeSource) Name() string { return f.name }
func (f *fakeSource) Search(ctx context.Context, query string, limit int) ([]model.Paper, error) {
	return f.papers, nil
}

func TestSearchHandlerReturnsPapersAndPopulatesCache(t *testing.T) {
	papers := paperadapter.New([]paperadapter.Source{
		&fakeSource{name: "openalex", papers: []model.Paper{{PaperID: "p1", Title: "A Paper", Year: 2021}}},
	})
	cache := papercache.New(time.Minute)
	h := &searchHandler{papers: papers, cache: cache, logger: discardLogger()}

	body, _ := json.Marshal(searchRequest{Query: "attention"})
	req := httptest.NewRequest(http.MethodPost, "/api/search", bytes.NewReader(body))
	rw := httptest.NewRecorder()
	h.Search(rw, req)

	require.Equal(t, http.StatusOK, rw.Result().StatusCode)
	var resp searchResponseDTO
	require.NoError(t, json.NewDecoder(rw.Body).Decode(&resp))
	require.Len(t, resp.Papers, 1)

	_, ok := cache.Get("p1")
	assert.True(t, ok, "search should populate the paper cache for later synthesis lookups")
}

func TestSearchHandlerRejectsEmptyQuery(t *testing.T) {
	papers := paperadapter.New(nil)
	h := &searchHandler{papers: papers, cache: papercache.New(time.Minute), logger: discardLogger()}

	body, _ := json.Marshal(searchRequest{Query: ""})
	req := httptest.NewRequest(http.MethodPost, "/api/search", bytes.NewReader(body))
	rw := httptest.NewRecorder()
	h.Search(rw, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rw.Result().StatusCode)
}

func TestSynthesizeHandlerRejectsUnknownPaperID(t *testing.T) {
	h := &synthesizeHandler{cache: papercache.New(time.Minute), router: nil}

	body, _ := json.Marshal(synthesizeRequest{PaperIDs: []string{"never-cached"}})
	req := httptest.NewRequest(http.MethodPost, "/api/synthesize", bytes.NewReader(body))
	rw := httptest.NewRecorder()
	h.Synthesize(rw, req)

	assert.Equal(t, http.StatusNotFound, rw.Result().StatusCode)
}

func TestSynthesizeHandlerRejectsEmptyPaperIDs(t *testing.T) {
	h := &synthesizeHandler{cache: papercache.New(time.Minute), router: nil}

	body, _ := json.Marshal(synthesizeRequest{})
	req := httptest.NewRequest(http.MethodPost, "/api/synthesize", bytes.NewReader(body))
	rw := httptest.NewRecorder()
	h.Synthesize(rw, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rw.Result().StatusCode)
}

func TestSynthesizeHandlerCallsRouterWithCachedPapers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"role": "assistant", "content": "a synthesized summary"}},
			},
			"usage": map[string]int{"total_tokens": 55},
		})
	}))
	defer srv.Close()

	keys := keystore.New()
	keys.Register(model.ProviderKey{Provider: "groq", KeyMaterial: "k1", DailyRequestLimit: 10})
	router := llmrouter.New([]string{"groq"}, []llmrouter.ProviderConfig{{Name: "groq", BaseURL: srv.URL, Model: "llama-3"}}, keys, 4, time.Second, time.Minute, 5)

	cache := papercache.New(time.Minute)
	cache.Put([]model.Paper{{PaperID: "p1", Title: "A Paper", Year: 2021}})
	h := &synthesizeHandler{cache: cache, router: router}

	body, _ := json.Marshal(synthesizeRequest{PaperIDs: []string{"p1"}})
	req := httptest.NewRequest(http.MethodPost, "/api/synthesize", bytes.NewReader(body))
	rw := httptest.NewRecorder()
	h.Synthesize(rw, req)

	require.Equal(t, http.StatusOK, rw.Result().StatusCode)
	var resp synthesizeResponseDTO
	require.NoError(t, json.NewDecoder(rw.Body).Decode(&resp))
	assert.Equal(t, "a synthesized summary", resp.Summary)
	assert.Equal(t, 55, resp.TokensUsed)
}

func TestAuthHandlerRegisterRejectsMalformedBody(t *testing.T) {
	h := &authHandler{logger: discardLogger()}
	req := httptest.NewRequest(http.MethodPost, "/api/auth/register", bytes.NewReader([]byte("{not json")))
	rw := httptest.NewRecorder()
	h.Register(rw, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rw.Result().StatusCode)
}

func TestAuthHandlerLoginRejectsMalformedBody(t *testing.T) {
	h := &authHandler{logger: discardLogger()}
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader([]byte("{not json")))
	rw := httptest.NewRecorder()
	h.Login(rw, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rw.Result().StatusCode)
}

func TestProvidersHandlerHealthReflectsKeyState(t *testing.T) {
	keys := keystore.New()
	keys.Register(model.ProviderKey{Provider: "groq", KeyMaterial: "k1", DailyRequestLimit: 10})
	h := &providersHandler{keys: keys}

	req := httptest.NewRequest(http.MethodGet, "/v1/providers/health", nil)
	rw := httptest.NewRecorder()
	h.Health(rw, req)

	require.Equal(t, http.StatusOK, rw.Result().StatusCode)
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(rw.Body).Decode(&body))
	providers := body["providers"].([]interface{})
	require.Len(t, providers, 1)
}
