package pipeline

import (
	"fmt"
	"strings"

	"github.com/nocturnal-archive/gateway/internal/llmrouter"
	"github.com/nocturnal-archive/gateway/internal/model"
)

// Exchange is one prior question/answer turn, supplied by the client
// as optional conversation_history.
type Exchange struct {
	Question string
	Answer   string
}

const maxHistoryExchanges = 3

// contextBlock holds the fanned-out adapter results for one request, each
// slot explicitly present-or-empty so prompt assembly can mark empty
// slots rather than silently omitting them.
type contextBlock struct {
	papers      []model.Paper
	papersEmpty bool

	calc      *model.CalcResult
	calcEmpty bool

	webSummary string
	webEmpty   bool
}

// buildMessages assembles the synthesis prompt: a system instruction,
// a compact history summary, and the structured context block, per
// Empty slots are marked EMPTY_RESULTS=true with an
// explicit no-fabrication directive.
func buildMessages(question string, history []Exchange, ctxBlock contextBlock) []llmrouter.Message {
	var sys strings.Builder
	sys.WriteString("You are a citation-grounded research assistant. Only state facts and papers present in the CONTEXT block below. ")
	sys.WriteString("Any context slot marked EMPTY_RESULTS=true means no data was retrieved for that category — do not invent an answer for it.\n\n")
	sys.WriteString(renderContext(ctxBlock))

	messages := []llmrouter.Message{{Role: "system", Content: sys.String()}}

	if len(history) > 0 {
		messages = append(messages, llmrouter.Message{Role: "system", Content: renderHistory(history)})
	}

	messages = append(messages, llmrouter.Message{Role: "user", Content: question})
	return messages
}

func renderHistory(history []Exchange) string {
	start := 0
	if len(history) > maxHistoryExchanges {
		start = len(history) - maxHistoryExchanges
	}
	var b strings.Builder
	b.WriteString("Recent conversation:\n")
	for _, ex := range history[start:] {
		fmt.Fprintf(&b, "Q: %s\nA: %s\n", ex.Question, ex.Answer)
	}
	return b.String()
}

func renderContext(c contextBlock) string {
	var b strings.Builder
	b.WriteString("CONTEXT:\n")

	b.WriteString("papers: ")
	if c.papersEmpty {
		b.WriteString("EMPTY_RESULTS=true\n")
	} else {
		b.WriteString("\n")
		for _, p := range c.papers {
			fmt.Fprintf(&b, "  - [%s] %q (%d) doi=%s source=%s\n", p.PaperID, p.Title, p.Year, p.DOI, p.Source)
		}
	}

	b.WriteString("finance: ")
	if c.calcEmpty || c.calc == nil {
		b.WriteString("EMPTY_RESULTS=true\n")
	} else {
		fmt.Fprintf(&b, "\n  - %s.%s period=%s value=%v %s quality_flags=%v\n",
			c.calc.Ticker, c.calc.Metric, c.calc.Period, c.calc.Value, c.calc.Unit, c.calc.QualityFlags)
	}

	b.WriteString("web: ")
	if c.webEmpty {
		b.WriteString("EMPTY_RESULTS=true\n")
	} else {
		fmt.Fprintf(&b, "\n%s\n", c.webSummary)
	}

	return b.String()
}
