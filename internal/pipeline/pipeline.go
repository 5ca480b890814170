// Package pipeline implements the Query Pipeline: the
// top-level request handler that classifies a question, fans out to
// adapters under a wall-clock budget, assembles a synthesis prompt,
// calls the LLM Router, attaches citations, and debits the Quota
// Ledger. Grounded on this gateway's "continue
// without a failed dependency" philosophy (main.go's Redis-optional
// startup) generalized to per-adapter fan-out resilience.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	jsonrepair "github.com/RealAlexandreAI/json-repair"
	"github.com/nocturnal-archive/gateway/internal/apperr"
	"github.com/nocturnal-archive/gateway/internal/financeadapter"
	"github.com/nocturnal-archive/gateway/internal/llmrouter"
	"github.com/nocturnal-archive/gateway/internal/model"
	"github.com/nocturnal-archive/gateway/internal/paperadapter"
	"github.com/nocturnal-archive/gateway/internal/quota"
	"github.com/nocturnal-archive/gateway/internal/websearch"
	"github.com/rs/zerolog"
)

// Pipeline wires every adapter, the LLM Router, and the Quota Ledger
// behind the single handle() entry point.
type Pipeline struct {
	papers  *paperadapter.Adapter
	finance *financeadapter.Adapter
	web     *websearch.Adapter
	router  *llmrouter.Router
	ledger  *quota.Ledger

	tFanout time.Duration
	logger  zerolog.Logger
}

// New constructs a Pipeline from its already-wired dependencies.
func New(papers *paperadapter.Adapter, finance *financeadapter.Adapter, web *websearch.Adapter, router *llmrouter.Router, ledger *quota.Ledger, tFanout time.Duration, logger zerolog.Logger) *Pipeline {
	return &Pipeline{papers: papers, finance: finance, web: web, router: router, ledger: ledger, tFanout: tFanout, logger: logger}
}

// estimatedCostTokens is the rough prompt-size estimate used for the
// pre-dispatch quota check (policy: check before dispatch,
// debit after response using the real provider-reported count).
const estimatedCostTokens = 500

// Handle implements handle(user_id, question, conversation_history?) → QueryResponse.
func (p *Pipeline) Handle(ctx context.Context, userID, question string, history []Exchange) (model.QueryResponse, error) {
	if err := p.ledger.Check(ctx, userID, estimatedCostTokens); err != nil {
		return model.QueryResponse{}, err
	}

	intents := classify(question)
	ctxBlock, citations, toolsUsed := p.fanOut(ctx, question, intents)

	messages := buildMessages(question, history, ctxBlock)

	result, err := p.router.Route(ctx, messages)
	if err != nil {
		return model.QueryResponse{}, apperr.Wrap(apperr.LLMError, "llm router call failed", err)
	}

	answerText := extractAnswer(result.Text)

	resp := model.QueryResponse{
		AnswerText:    answerText,
		Citations:     citations,
		ToolsUsed:     toolsUsed,
		TokensCharged: result.TokensUsed,
	}
	if ctxBlock.papersEmpty {
		resp.QualityFlags = append(resp.QualityFlags, model.FlagEmptyResults)
	}
	if ctxBlock.calc != nil {
		resp.QualityFlags = append(resp.QualityFlags, ctxBlock.calc.QualityFlags...)
	}

	if _, err := p.ledger.Debit(ctx, userID, int64(result.TokensUsed)); err != nil {
		// Post-hoc debit failure: the work is already done and the
		// response has been produced, so it is still returned;
		// only a warning is logged.
		p.logger.Warn().Err(err).Str("user_id", userID).Msg("post-hoc quota debit failed")
	}

	return resp, nil
}

// fanOut dispatches to every adapter implied by intents concurrently,
// bounded by tFanout overall. An adapter that doesn't finish within
// the budget contributes an empty, EMPTY_RESULTS-marked slot rather
// than failing the request.
func (p *Pipeline) fanOut(ctx context.Context, question string, intents []model.Intent) (contextBlock, []model.Citation, []string) {
	fanoutCtx, cancel := context.WithTimeout(ctx, p.tFanout)
	defer cancel()

	var block contextBlock
	block.papersEmpty = true
	block.calcEmpty = true
	block.webEmpty = true

	var toolsUsed []string
	var citations []model.Citation
	var mu sync.Mutex
	var wg sync.WaitGroup

	if hasIntent(intents, model.IntentPaperSearch) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			papers, empty, err := p.papers.SearchPapers(fanoutCtx, question, 10, nil)
			if err != nil {
				p.logger.Warn().Err(err).Msg("paper adapter fan-out failed")
				return
			}
			mu.Lock()
			block.papers, block.papersEmpty = papers, empty
			for _, paper := range papers {
				citations = append(citations, model.Citation{Type: "paper", ID: paper.PaperID, Source: paper.Source, Title: paper.Title})
			}
			if !empty {
				toolsUsed = append(toolsUsed, "paper_adapter")
			}
			mu.Unlock()
		}()
	}

	if hasIntent(intents, model.IntentFinanceFact) {
		if ticker := extractTicker(question); ticker != "" {
			wg.Add(1)
			go func() {
				defer wg.Done()
				result, err := p.finance.Calc(fanoutCtx, ticker, "revenue", "latest", financeadapter.FrequencyForPeriod("latest"))
				if err != nil {
					p.logger.Warn().Err(err).Str("ticker", ticker).Msg("finance adapter fan-out failed")
					return
				}
				mu.Lock()
				block.calc, block.calcEmpty = &result, false
				for name, fact := range result.Inputs {
					citations = append(citations, model.Citation{
						Type: "fact", ID: fmt.Sprintf("%s:%s:%s", result.Ticker, name, fact.AccessionID),
						Source: fact.Source, AccessionID: fact.AccessionID,
					})
				}
				toolsUsed = append(toolsUsed, "finance_adapter")
				mu.Unlock()
			}()
		}
	}

	if hasIntent(intents, model.IntentWebLookup) || hasIntent(intents, model.IntentGeneral) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results := p.web.Search(fanoutCtx, question, 5)
			if len(results) == 0 {
				return
			}
			mu.Lock()
			block.webSummary, block.webEmpty = websearch.Summarize(results), false
			toolsUsed = append(toolsUsed, "web_search")
			mu.Unlock()
		}()
	}

	wg.Wait()
	return block, citations, toolsUsed
}

// llmDiagnostic is the optional trailing JSON block some providers
// append summarizing which context entries they actually drew on.
// Parsed leniently via json-repair since providers frequently emit
// near-miss JSON (trailing commas, unescaped quotes). The parsed block
// is only used to recognize it and is then discarded; a parse failure
// is not fatal, it just leaves the raw response unchanged.
type llmDiagnostic struct {
	UsedCitations []string `json:"used_citations"`
}

// extractAnswer strips a trailing diagnostic JSON block from the raw
// LLM response, if present, returning just the prose answer.
func extractAnswer(raw string) string {
	idx := findJSONBlockStart(raw)
	if idx < 0 {
		return raw
	}
	prose, jsonPart := raw[:idx], raw[idx:]
	repaired, err := jsonrepair.RepairJSON(jsonPart)
	if err != nil {
		return raw
	}
	var diag llmDiagnostic
	if err := json.Unmarshal([]byte(repaired), &diag); err != nil {
		return raw
	}
	_ = diag
	return prose
}

// findJSONBlockStart locates the opening brace of a brace-balanced
// JSON object trailing s (allowing trailing whitespace after the
// closing brace), or -1 if s doesn't end in one.
func findJSONBlockStart(s string) int {
	trimmed := strings.TrimRight(s, " \n\t")
	if len(trimmed) == 0 || trimmed[len(trimmed)-1] != '}' {
		return -1
	}
	depth := 0
	for i := len(trimmed) - 1; i >= 0; i-- {
		switch trimmed[i] {
		case '}':
			depth++
		case '{':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
