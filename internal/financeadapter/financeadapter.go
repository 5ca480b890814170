// Package financeadapter implements the Finance Adapter:
// resolution of a (ticker, metric, period) triple into a cited
// CalcResult, routing primitive concepts straight to the Facts Store
// and computing derived metrics from multiple primitive facts while
// enforcing period coherence across inputs (all facts used in one
// computed metric must share a filing accession or an identical
// period start and end). Grounded on a computed-metric
// shape with inputs named by concept, each carrying its own provenance.
package financeadapter

import (
	"context"
	"regexp"

	"github.com/nocturnal-archive/gateway/internal/apperr"
	"github.com/nocturnal-archive/gateway/internal/model"
)

var annualPeriodRe = regexp.MustCompile(`^\d{4}$`)

// FrequencyForPeriod derives the Facts Store frequency a period string
// implies: a bare "YYYY" is an annual query, "YYYY-Qn" and "latest"
// (the default) are quarterly.
func FrequencyForPeriod(period string) model.Frequency {
	if annualPeriodRe.MatchString(period) {
		return model.Annual
	}
	return model.Quarterly
}

// FactGetter is the subset of the Facts Store the adapter depends on.
type FactGetter interface {
	GetFact(ctx context.Context, ticker, concept, period string, freq model.Frequency) (model.Fact, error)
}

// computedMetric defines a derived metric in terms of primitive inputs
// and how to combine them.
type computedMetric struct {
	inputs  []string
	combine func(inputs map[string]model.Fact) (value float64, unit string)
}

var computedMetrics = map[string]computedMetric{
	"grossProfit": {
		inputs: []string{"Revenues", "CostOfRevenue"},
		combine: func(in map[string]model.Fact) (float64, string) {
			rev := in["Revenues"]
			cor := in["CostOfRevenue"]
			return rev.Value - cor.Value, rev.Unit
		},
	},
	"operatingMargin": {
		inputs: []string{"OperatingIncomeLoss", "Revenues"},
		combine: func(in map[string]model.Fact) (float64, string) {
			rev := in["Revenues"]
			if rev.Value == 0 {
				return 0, "ratio"
			}
			return in["OperatingIncomeLoss"].Value / rev.Value, "ratio"
		},
	},
}

// primitiveConcepts maps a public metric name to the Facts Store
// concept it resolves to directly, for metrics with no derivation.
var primitiveConcepts = map[string]string{
	"revenue":        "Revenues",
	"costOfRevenue":  "CostOfRevenue",
	"netIncome":      "NetIncomeLoss",
	"operatingIncome": "OperatingIncomeLoss",
	"totalAssets":    "Assets",
	"totalLiabilities": "Liabilities",
}

// Adapter resolves (ticker, metric, period) triples. primary is the
// structured XBRL-backed Facts Store; fallback (optional, may be nil)
// supplies facts primary lacks, e.g. a market-data quote source.
type Adapter struct {
	primary  FactGetter
	fallback FactGetter
}

// New constructs an Adapter. fallback may be nil if no secondary
// source is configured.
func New(primary, fallback FactGetter) *Adapter {
	return &Adapter{primary: primary, fallback: fallback}
}

// Calc resolves metric for ticker and period, returning a CalcResult.
func (a *Adapter) Calc(ctx context.Context, ticker, metric, period string, freq model.Frequency) (model.CalcResult, error) {
	if concept, ok := primitiveConcepts[metric]; ok {
		fact, err := a.fetch(ctx, ticker, concept, period, freq)
		if err != nil {
			return model.CalcResult{}, err
		}
		return model.CalcResult{
			Ticker: ticker,
			Metric: metric,
			Period: period,
			Value:  fact.Value,
			Unit:   fact.Unit,
			Inputs: map[string]model.Fact{concept: fact},
		}, nil
	}

	def, ok := computedMetrics[metric]
	if !ok {
		return model.CalcResult{}, apperr.New(apperr.UnknownMetric, "unknown metric "+metric)
	}

	inputs := make(map[string]model.Fact, len(def.inputs))
	for _, concept := range def.inputs {
		fact, err := a.fetch(ctx, ticker, concept, period, freq)
		if err != nil {
			return model.CalcResult{}, err
		}
		inputs[concept] = fact
	}

	result := model.CalcResult{
		Ticker: ticker,
		Metric: metric,
		Period: period,
		Inputs: inputs,
	}

	if !inputsCoherent(inputs) {
		result.QualityFlags = append(result.QualityFlags, model.FlagPeriodMismatch)
		return result, nil
	}

	value, unit := def.combine(inputs)
	result.Value = value
	result.Unit = unit
	return result, nil
}

// fetch tries the primary Facts Store, falling back to the secondary
// source (if configured) when primary has no data.
func (a *Adapter) fetch(ctx context.Context, ticker, concept, period string, freq model.Frequency) (model.Fact, error) {
	fact, err := a.primary.GetFact(ctx, ticker, concept, period, freq)
	if err == nil {
		return fact, nil
	}
	if a.fallback == nil {
		return model.Fact{}, err
	}
	ae, ok := apperr.As(err)
	if !ok || ae.Kind != apperr.NoDataAvailable {
		return model.Fact{}, err
	}
	return a.fallback.GetFact(ctx, ticker, concept, period, freq)
}

// inputsCoherent checks period coherence: every input Fact must share
// either an accession_id or an identical (period_start, period_end).
func inputsCoherent(inputs map[string]model.Fact) bool {
	var first model.Fact
	started := false
	for _, f := range inputs {
		if !started {
			first = f
			started = true
			continue
		}
		sameAccession := f.AccessionID != "" && f.AccessionID == first.AccessionID
		samePeriod := f.PeriodStart.Equal(first.PeriodStart) && f.PeriodEnd.Equal(first.PeriodEnd)
		if !sameAccession && !samePeriod {
			return false
		}
	}
	return true
}
