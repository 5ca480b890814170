package pipeline

import (
	"regexp"
	"strings"

	"github.com/nocturnal-archive/gateway/internal/model"
)

var (
	financeKeywords = regexp.MustCompile(`(?i)\b(revenue|earnings|profit|margin|income|eps|valuation|stock price|ticker|quarter|fiscal)\b`)
	paperKeywords    = regexp.MustCompile(`(?i)\b(paper|study|research|publication|cite|citation|journal|arxiv|doi)\b`)
	webKeywords      = regexp.MustCompile(`(?i)\b(latest news|recent|today|current events|who is|what happened)\b`)
)

// classify assigns zero or more intents to question via cheap keyword
// heuristics. Classification never fails; a
// question matching nothing still fans out under GENERAL.
func classify(question string) []model.Intent {
	var intents []model.Intent
	if financeKeywords.MatchString(question) {
		intents = append(intents, model.IntentFinanceFact)
	}
	if paperKeywords.MatchString(question) {
		intents = append(intents, model.IntentPaperSearch)
	}
	if webKeywords.MatchString(question) {
		intents = append(intents, model.IntentWebLookup)
	}
	if len(intents) == 0 {
		intents = append(intents, model.IntentGeneral)
	}
	return intents
}

func hasIntent(intents []model.Intent, want model.Intent) bool {
	for _, i := range intents {
		if i == want {
			return true
		}
	}
	return false
}

// extractTicker pulls a best-effort uppercase ticker candidate out of
// a finance-intent question (e.g. "AAPL", "$MSFT"). Returns "" if none
// found; the caller treats that as insufficient context to dispatch
// the Finance Adapter rather than guessing.
func extractTicker(question string) string {
	matches := tickerPattern.FindStringSubmatch(question)
	if len(matches) < 2 {
		return ""
	}
	return strings.ToUpper(matches[1])
}

var tickerPattern = regexp.MustCompile(`\$?\b([A-Z]{2,5})\b`)
