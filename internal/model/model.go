// Package model holds the data types shared across the gateway's components.
package model

import "time"

// User is created by the Auth Service on registration and never mutated
// except on password reset.
type User struct {
	UserID            string
	Email             string
	PasswordVerifier  string // salted bcrypt hash; never the raw password
	CreatedAt         time.Time
}

// Token is a self-contained signed value; validation does not require a
// storage round-trip. Expiry is a fixed window from issuance, set by
// TOKEN_TTL_DAYS (default 30 days).
type Token struct {
	TokenID   string
	UserID    string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Raw       string // the signed JWT string handed to the client
}

// DailyQuota tracks a user's token consumption for one UTC calendar day.
// Created lazily on first debit of a given day.
type DailyQuota struct {
	UserID         string
	UTCDate        string // YYYY-MM-DD
	TokensConsumed int64
}

// ProviderKey is one LLM-provider credential with its own daily request
// budget. Belongs to exactly one provider.
type ProviderKey struct {
	Provider          string
	KeyMaterial       string
	DailyRequestLimit int
	RequestsToday     int
	LastResetUTCDate  string
	CooldownUntil     time.Time // zero value means not in cooldown
	IneligibleToday   bool      // set on RATE_LIMITED/AUTH failure, cleared at day rollover
}

// Eligible reports whether the key can be used right now.
func (k *ProviderKey) Eligible(now time.Time) bool {
	if k.IneligibleToday {
		return false
	}
	if k.RequestsToday >= k.DailyRequestLimit {
		return false
	}
	if !k.CooldownUntil.IsZero() && now.Before(k.CooldownUntil) {
		return false
	}
	return true
}

// Frequency distinguishes quarterly from annual financial facts for the
// purpose of the duration-band filter.
type Frequency string

const (
	Quarterly Frequency = "Q"
	Annual    Frequency = "A"
)

// Fact is a normalized financial observation, citation-bearing per
// the period-coherence check.
type Fact struct {
	Ticker      string
	Concept     string
	Value       float64
	Unit        string
	PeriodLabel string
	PeriodStart time.Time
	PeriodEnd   time.Time
	AccessionID string
	Source      string
	Freq        Frequency
	QualityFlags []string
}

// DurationDays returns PeriodEnd minus PeriodStart in whole days (the
// end day itself is not counted).
func (f Fact) DurationDays() int {
	return int(f.PeriodEnd.Sub(f.PeriodStart).Hours() / 24)
}

// Paper is a normalized academic-paper record.
type Paper struct {
	PaperID string
	Title   string
	Authors []string
	Year    int
	Venue   string
	DOI     string
	Abstract string
	Source  string
	Relevance float64 // 0 when the source provided no score; ranked last
	HasScore  bool
}

// Valid reports whether p has a non-empty title and a present year.
func (p Paper) Valid() bool {
	return p.Title != "" && p.Year != 0
}

// CalcResult is the outcome of resolving a (ticker, metric, period) triple,
// possibly composed from multiple Facts.
type CalcResult struct {
	Ticker       string
	Metric       string
	Period       string
	Value        float64
	Unit         string
	Inputs       map[string]Fact
	QualityFlags []string
}

// HasFlag reports whether the named quality flag is present.
func (c CalcResult) HasFlag(flag string) bool {
	for _, f := range c.QualityFlags {
		if f == flag {
			return true
		}
	}
	return false
}

// Citation references either a Paper or a Fact that appeared in the
// synthesis context for a query.
type Citation struct {
	Type        string // "paper" | "fact"
	ID          string // PaperID or a synthetic fact id "ticker:concept:accession"
	Source      string
	AccessionID string `json:",omitempty"`
	Title       string `json:",omitempty"`
}

// QueryResponse is the top-level response of the Query Pipeline.
type QueryResponse struct {
	AnswerText   string
	Citations    []Citation
	ToolsUsed    []string
	QualityFlags []string
	TokensCharged int
}

// Quality flags surfaced on query and finance responses.
const (
	FlagPeriodMismatch  = "PERIOD_MISMATCH"
	FlagOldData         = "OLD_DATA"
	FlagEmptyResults    = "EMPTY_RESULTS"
	FlagStaleCache      = "STALE_CACHE"
	FlagPartialContext  = "PARTIAL_CONTEXT"
)

// Intent is a classification label the Query Pipeline assigns a question.
type Intent string

const (
	IntentPaperSearch  Intent = "PAPER_SEARCH"
	IntentFinanceFact  Intent = "FINANCE_FACT"
	IntentWebLookup    Intent = "WEB_LOOKUP"
	IntentGeneral      Intent = "GENERAL"
)
