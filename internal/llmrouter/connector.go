package llmrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// chatRequest is the OpenAI-compatible request body shared by every
// configured provider (cerebras, groq, cloudflare, and any other
// drop-in endpoint) — grounded on a minimal chat-completion request/response shape,
// trimmed to the fields the Query Pipeline actually populates.
type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// connector is an OpenAI-compatible endpoint for one provider. All
// three default providers (cerebras, groq, cloudflare) speak this
// protocol; a provider needing a bespoke wire format would get its own
// connector type.
type connector struct {
	providerName string
	baseURL      string
	model        string
	client       *http.Client
}

func newConnector(providerName, baseURL, model string, client *http.Client) *connector {
	return &connector{providerName: providerName, baseURL: baseURL, model: model, client: client}
}

// callOutcome classifies a completed or failed call.
type callOutcome int

const (
	outcomeSuccess callOutcome = iota
	outcomeRateLimited
	outcomeAuth
	outcomeTimeout
	outcomeServerError
	outcomeOther
)

// Model returns the upstream model name this connector requests.
func (c *connector) Model() string { return c.model }

// call performs one chat completion against the provider's
// OpenAI-compatible endpoint, authenticated with apiKey.
func (c *connector) call(ctx context.Context, apiKey string, messages []chatMessage) (text string, tokensUsed int, outcome callOutcome, err error) {
	body, mErr := json.Marshal(chatRequest{Model: c.model, Messages: messages})
	if mErr != nil {
		return "", 0, outcomeOther, fmt.Errorf("%s: marshal request: %w", c.providerName, mErr)
	}

	req, rErr := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if rErr != nil {
		return "", 0, outcomeOther, fmt.Errorf("%s: build request: %w", c.providerName, rErr)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, dErr := c.client.Do(req)
	if dErr != nil {
		if ctx.Err() != nil {
			return "", 0, outcomeTimeout, fmt.Errorf("%s: %w", c.providerName, ctx.Err())
		}
		return "", 0, outcomeTimeout, fmt.Errorf("%s: request failed: %w", c.providerName, dErr)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", 0, outcomeRateLimited, fmt.Errorf("%s: rate limited", c.providerName)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", 0, outcomeAuth, fmt.Errorf("%s: auth rejected", c.providerName)
	case resp.StatusCode >= 500:
		return "", 0, outcomeServerError, fmt.Errorf("%s: server error %d", c.providerName, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		respBody, _ := io.ReadAll(resp.Body)
		return "", 0, outcomeOther, fmt.Errorf("%s: unexpected status %d: %s", c.providerName, resp.StatusCode, string(respBody))
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", 0, outcomeOther, fmt.Errorf("%s: decode response: %w", c.providerName, err)
	}
	if len(out.Choices) == 0 {
		return "", 0, outcomeOther, fmt.Errorf("%s: empty choices", c.providerName)
	}
	return out.Choices[0].Message.Content, out.Usage.TotalTokens, outcomeSuccess, nil
}
