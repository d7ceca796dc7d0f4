package models

import "fmt"

// Capability rating names used by CapabilityProfile and RequestOptions.
// Ratings run 0-10, higher is better; for speed, higher means faster.
const (
	CapabilityReasoning  = "reasoning"
	CapabilityCreativity = "creativity"
	CapabilityKnowledge  = "knowledge"
	CapabilitySpeed      = "speed"
)

// Unit volume assumed when estimating the cost of a request for filtering.
// This is a fixed approximation, not a billing figure.
const (
	CostEstimateInputUnits  = 1000
	CostEstimateOutputUnits = 1000
)

// CapabilityProfile describes one registered backend model. Profiles are
// built from static configuration at startup and immutable afterwards.
type CapabilityProfile struct {
	Provider          string             `json:"provider" yaml:"provider"`
	Model             string             `json:"model" yaml:"model"`
	Capabilities      map[string]float64 `json:"capabilities" yaml:"capabilities"`
	CostPerInputUnit  float64            `json:"cost_per_input_unit" yaml:"cost_per_input_unit"`
	CostPerOutputUnit float64            `json:"cost_per_output_unit" yaml:"cost_per_output_unit"`
}

// Key returns the routing key "provider:model" identifying this profile.
func (p CapabilityProfile) Key() string {
	return fmt.Sprintf("%s:%s", p.Provider, p.Model)
}

// Capability returns the rating for the named capability, 0 when unrated.
func (p CapabilityProfile) Capability(name string) float64 {
	return p.Capabilities[name]
}

// EstimatedCost returns the approximate cost of a request at the fixed
// filtering unit volume.
func (p CapabilityProfile) EstimatedCost() float64 {
	return p.CostPerInputUnit*CostEstimateInputUnits + p.CostPerOutputUnit*CostEstimateOutputUnits
}

// ComplexityTier is the complexity classification assigned to a request.
type ComplexityTier string

const (
	TierSimple   ComplexityTier = "simple"
	TierModerate ComplexityTier = "moderate"
	TierComplex  ComplexityTier = "complex"
)

// FallbackStrategy governs candidate ordering when earlier candidates fail.
type FallbackStrategy string

const (
	// StrategyCostAscending orders by summed per-unit cost, cheapest first.
	StrategyCostAscending FallbackStrategy = "cost-ascending"
	// StrategyCapabilityDescending orders by the tier-selected capability rating.
	StrategyCapabilityDescending FallbackStrategy = "capability-descending"
	// StrategySpecificModels uses the caller-supplied ordered model list verbatim.
	StrategySpecificModels FallbackStrategy = "specific-models"
)

// RequestOptions carries per-call dispatch configuration.
type RequestOptions struct {
	PreferredProvider string             `json:"preferred_provider,omitzero"`
	PreferredModel    string             `json:"preferred_model,omitzero"`
	MinCapability     map[string]float64 `json:"min_capability,omitzero"`
	MaxCost           float64            `json:"max_cost,omitzero"`
	FallbackStrategy  FallbackStrategy   `json:"fallback_strategy,omitzero"`
	FallbackModels    []string           `json:"fallback_models,omitzero"`
	CacheResults      *bool              `json:"cache_results,omitzero"`
	TimeoutMs         int                `json:"timeout_ms,omitzero"`
}

// CachingEnabled reports whether cache lookup/population applies. Caching is
// on unless the caller explicitly disabled it.
func (o RequestOptions) CachingEnabled() bool {
	return o.CacheResults == nil || *o.CacheResults
}
