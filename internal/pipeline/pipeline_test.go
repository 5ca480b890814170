package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractAnswerStripsTrailingDiagnosticJSON(t *testing.T) {
	raw := `The company grew revenue by 12% year over year.

{"used_citations": ["fact:AAPL:Revenues"]}`

	got := extractAnswer(raw)
	assert.Equal(t, "The company grew revenue by 12% year over year.\n\n", got)
}

func TestExtractAnswerReturnsProseUnchangedWithoutJSONBlock(t *testing.T) {
	raw := `Plain prose answer with no diagnostic block.`

	got := extractAnswer(raw)
	assert.Equal(t, raw, got)
}

func TestExtractAnswerRepairsNearMissJSON(t *testing.T) {
	raw := `Here is the answer.

{"used_citations": ["a", "b",]}`

	got := extractAnswer(raw)
	assert.Equal(t, "Here is the answer.\n\n", got)
}

func TestFindJSONBlockStartFindsTrailingBrace(t *testing.T) {
	assert.Equal(t, 6, findJSONBlockStart("prose {\"a\":1}"))
}

func TestFindJSONBlockStartReturnsNegativeOneWhenNoTrailingBlock(t *testing.T) {
	assert.Equal(t, -1, findJSONBlockStart("just prose, no json here"))
}

func TestFindJSONBlockStartIgnoresTrailingWhitespace(t *testing.T) {
	idx := findJSONBlockStart("prose {\"a\":1}\n\n  ")
	assert.Equal(t, 6, idx)
}
