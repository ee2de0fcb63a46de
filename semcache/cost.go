package semcache

// Pricing estimates the dollar value of avoided generation calls. The unit
// cost is a blended per-1K-token price across the generation models in use,
// configured by the operator rather than looked up per model.
type Pricing struct {
	UnitCostPer1K float64
}

// DefaultPricing is a blended input/output price for mid-tier generation
// models.
var DefaultPricing = Pricing{UnitCostPer1K: 0.03}

// CostSavings returns the estimated cost of generating tokens, i.e. what a
// cache hit avoided. Pure function, no I/O.
func (p Pricing) CostSavings(tokens int64) float64 {
	return float64(tokens) / 1000 * p.UnitCostPer1K
}
