package pricing

import "math"

// CostUnitsPerDollar is the scale of stored cost values.
const CostUnitsPerDollar = 100_000

// Usage is the token count priced by EstimateCost.
type Usage struct {
	InputTokens  int64 `json:"inputTokens"`
	OutputTokens int64 `json:"outputTokens"`
}

// FoldUsage builds the usage priced for a traced completion: cached tokens
// count as input, reasoning tokens as output.
func FoldUsage(prompt, cached, reasoning, completion int64) Usage {
	return Usage{
		InputTokens:  nonNegative(prompt) + nonNegative(cached),
		OutputTokens: nonNegative(reasoning) + nonNegative(completion),
	}
}

// Estimate is the result of pricing one usage. Implemented is false when the
// provider has no catalog or the resolved model has no cost, and Cost is 0.
type Estimate struct {
	Provider    string  `json:"provider"`
	Model       string  `json:"model"`
	Cost        float64 `json:"cost"`
	Implemented bool    `json:"costImplemented"`
}

// EstimateCost prices usage with the catalog for provider. It never fails.
func (r *Registry) EstimateCost(usage Usage, provider, model string) Estimate {
	provider = NormalizeProvider(provider)
	estimate := Estimate{Provider: provider, Model: model}

	catalog, ok := r.Catalog(provider)
	if !ok {
		return estimate
	}
	lookup := catalog.Cost(model)
	estimate.Model = lookup.Model
	if !lookup.Implemented {
		return estimate
	}

	input := nonNegative(usage.InputTokens)
	output := nonNegative(usage.OutputTokens)
	rate := SelectTier(lookup.Costs, input)
	cost := (float64(input)*rate.Input + float64(output)*rate.Output) / 1_000_000
	if math.IsNaN(cost) || math.IsInf(cost, 0) {
		cost = 0
	}
	estimate.Cost = cost
	estimate.Implemented = true
	return estimate
}

// EstimateCost prices usage with DefaultRegistry.
func EstimateCost(usage Usage, provider, model string) Estimate {
	return DefaultRegistry().EstimateCost(usage, provider, model)
}

// ToCostUnits converts a USD cost to stored units, rounding up.
func ToCostUnits(cost float64) int64 {
	if math.IsNaN(cost) || math.IsInf(cost, 0) || cost <= 0 {
		return 0
	}
	return int64(math.Ceil(cost * CostUnitsPerDollar))
}

// FromCostUnits converts stored units back to USD.
func FromCostUnits(units int64) float64 {
	return float64(units) / CostUnitsPerDollar
}

func nonNegative(value int64) int64 {
	if value < 0 {
		return 0
	}
	return value
}
