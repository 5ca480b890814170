// Package llmrouter implements the LLM Router: provider
// and key selection by priority and eligibility, per-request
// failover, and the MAX_ATTEMPTS-bounded retry loop. Grounded on a
// name-keyed provider registry, generalized from a model-name-detecting
// registry into a priority-ordered failover router over the Key Store.
package llmrouter

import (
	"context"
	"time"

	"github.com/nocturnal-archive/gateway/internal/apperr"
	"github.com/nocturnal-archive/gateway/internal/concurrency"
	"github.com/nocturnal-archive/gateway/internal/keystore"
)

// ProviderConfig names one configured upstream: its OpenAI-compatible
// base URL and the model to request.
type ProviderConfig struct {
	Name    string
	BaseURL string
	Model   string
}

// Result is the outcome of one successful Route call.
type Result struct {
	Text       string
	TokensUsed int
	Provider   string
	Model      string
}

// Message is a single role/content turn, mirrored from the pipeline's
// assembled prompt.
type Message struct {
	Role    string
	Content string
}

// Router selects a provider+key and performs per-request
// failover across keys and providers.
type Router struct {
	priority    []string
	connectors  map[string]*connector
	keys        *keystore.Store
	sem         *concurrency.Semaphore
	tLLM        time.Duration
	tCool       time.Duration
	maxAttempts int
}

// New constructs a Router over the given priority-ordered provider
// configs and the shared Key Store.
func New(priority []string, providers []ProviderConfig, keys *keystore.Store, maxConcurrentPerProvider int, tLLM, tCool time.Duration, maxAttempts int) *Router {
	pool := newConnectionPool()
	connectors := make(map[string]*connector, len(providers))
	for _, p := range providers {
		connectors[p.Name] = newConnector(p.Name, p.BaseURL, p.Model, pool.clientFor(p.Name, tLLM))
	}
	return &Router{
		priority:    priority,
		connectors:  connectors,
		keys:        keys,
		sem:         concurrency.NewSemaphore(maxConcurrentPerProvider),
		tLLM:        tLLM,
		tCool:       tCool,
		maxAttempts: maxAttempts,
	}
}

// Route performs one outbound LLM request, implementing the full
// call algorithm: provider priority selection, key
// rotation, failure classification, cooldown/ineligibility, and
// provider exclusion after repeated transient failures.
func (r *Router) Route(ctx context.Context, messages []Message) (Result, error) {
	excluded := make(map[string]bool)
	chatMsgs := toChatMessages(messages)

	attempts := 0
	for attempts < r.maxAttempts {
		provider, ok := r.selectProvider(excluded)
		if !ok {
			return Result{}, apperr.New(apperr.NoCapacity, "no eligible provider with available key")
		}

		consecutiveTransient := 0
		for {
			key, ok := r.keys.NextEligible(provider)
			if !ok {
				break // no eligible key left on this provider; reselect
			}

			attempts++
			if attempts > r.maxAttempts {
				return Result{}, apperr.New(apperr.LLMError, "max attempts exceeded")
			}

			result, outcome, err := r.attempt(ctx, provider, key.KeyMaterial, chatMsgs)
			switch outcome {
			case outcomeSuccess:
				r.keys.MarkSuccess(key.KeyMaterial)
				return result, nil
			case outcomeRateLimited, outcomeAuth:
				r.keys.MarkIneligible(key.KeyMaterial)
				continue
			case outcomeTimeout, outcomeServerError:
				r.keys.MarkCooldown(key.KeyMaterial, r.tCool)
				consecutiveTransient++
				if consecutiveTransient >= 2 {
					excluded[provider] = true
					break
				}
				continue
			default:
				return Result{}, apperr.Wrap(apperr.LLMError, "provider call failed", err)
			}
			if excluded[provider] {
				break
			}
		}
	}

	return Result{}, apperr.New(apperr.LLMError, "max attempts exceeded")
}

func (r *Router) selectProvider(excluded map[string]bool) (string, bool) {
	for _, p := range r.priority {
		if excluded[p] {
			continue
		}
		if r.keys.HasEligible(p) {
			return p, true
		}
	}
	return "", false
}

func (r *Router) attempt(ctx context.Context, provider, apiKey string, messages []chatMessage) (Result, callOutcome, error) {
	if !r.sem.Acquire(provider, r.tLLM) {
		return Result{}, outcomeServerError, apperr.New(apperr.Busy, "provider at concurrency ceiling")
	}
	defer r.sem.Release(provider)

	callCtx, cancel := context.WithTimeout(ctx, r.tLLM)
	defer cancel()

	conn := r.connectors[provider]
	text, tokens, outcome, err := conn.call(callCtx, apiKey, messages)
	if outcome != outcomeSuccess {
		return Result{}, outcome, err
	}
	return Result{Text: text, TokensUsed: tokens, Provider: provider, Model: conn.Model()}, outcome, nil
}

func toChatMessages(messages []Message) []chatMessage {
	out := make([]chatMessage, len(messages))
	for i, m := range messages {
		out[i] = chatMessage{Role: m.Role, Content: m.Content}
	}
	return out
}
