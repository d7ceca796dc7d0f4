// Package models defines core types for request dispatch and candidate selection.
package models

// Cache tier constants reported on served responses
const (
	CacheTierExact    = "exact"
	CacheTierSemantic = "semantic"
)

// CompletionRequest is the provider-agnostic request handed to a capability
// provider's completion operation.
type CompletionRequest struct {
	Prompt      string  `json:"prompt"`
	Model       string  `json:"model"`
	MaxTokens   int     `json:"max_tokens,omitzero"`
	Temperature float32 `json:"temperature,omitzero"`
}

// Usage is the provider-reported token-equivalent unit counts. Counts are an
// approximation passed through from the provider, not a billing figure.
type Usage struct {
	InputUnits  int `json:"input_units"`
	OutputUnits int `json:"output_units"`
}

// CompletionResponse is the opaque result payload returned to the caller.
type CompletionResponse struct {
	Provider  string `json:"provider"`
	Model     string `json:"model"`
	Content   string `json:"content"`
	Usage     Usage  `json:"usage"`
	CacheTier string `json:"cache_tier,omitzero"`
}

// IsValid validates that the CompletionResponse has required fields
func (r *CompletionResponse) IsValid() bool {
	return r != nil && r.Provider != "" && r.Model != ""
}
