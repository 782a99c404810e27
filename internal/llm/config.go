// Package llm builds extraction prompts and calls hosted generative models.
package llm

import "time"

// ModelTier selects a model by capability rather than by name.
type ModelTier string

const (
	// TierLite is the cheapest model, suitable for short documents.
	TierLite ModelTier = "lite"
	// TierStandard is the default extraction model.
	TierStandard ModelTier = "standard"
	// TierAdvanced is for long or dense documents.
	TierAdvanced ModelTier = "advanced"
)

// Provider names a model host.
type Provider string

const (
	// ProviderGemini is the Gemini API, authenticated with an API key.
	ProviderGemini Provider = "gemini"
	// ProviderVertex is Vertex AI, authenticated with application default credentials.
	ProviderVertex Provider = "vertex"
)

// Config selects the provider and the model used for extraction.
type Config struct {
	Provider Provider
	Models   map[ModelTier]string
	// Tier is the tier Generate uses.
	Tier ModelTier
	// Timeout bounds a single model call. Zero means no limit beyond the caller's context.
	Timeout time.Duration
	// Temperature applied to every call.
	Temperature float32

	APIKey  string // Gemini
	Project string // Vertex
	Region  string // Vertex
}

// DefaultConfig returns the Gemini configuration.
func DefaultConfig() *Config {
	return DefaultGeminiConfig()
}

// DefaultGeminiConfig returns the model set used with the Gemini API.
func DefaultGeminiConfig() *Config {
	return &Config{
		Provider: ProviderGemini,
		Models: map[ModelTier]string{
			TierLite:     "gemini-2.5-flash-lite",
			TierStandard: "gemini-2.5-flash",
			TierAdvanced: "gemini-2.5-pro",
		},
		Tier:        TierStandard,
		Temperature: 0.1,
	}
}

// DefaultVertexConfig returns the model set used with Vertex AI.
func DefaultVertexConfig(project, region string) *Config {
	if region == "" {
		region = "us-central1"
	}
	cfg := DefaultGeminiConfig()
	cfg.Provider = ProviderVertex
	cfg.Project = project
	cfg.Region = region
	return cfg
}

// GetModel returns the model name for a tier, falling back to the standard
// and then the lite model. It returns "" when nothing is configured.
func (c *Config) GetModel(tier ModelTier) string {
	for _, t := range []ModelTier{tier, TierStandard, TierLite} {
		if model, ok := c.Models[t]; ok && model != "" {
			return model
		}
	}
	return ""
}

// ExtractionModel is the model Generate calls.
func (c *Config) ExtractionModel() string {
	tier := c.Tier
	if tier == "" {
		tier = TierStandard
	}
	return c.GetModel(tier)
}

// WithModel returns a copy of c with model assigned to tier.
func (c *Config) WithModel(tier ModelTier, model string) *Config {
	next := *c
	next.Models = make(map[ModelTier]string, len(c.Models)+1)
	for k, v := range c.Models {
		next.Models[k] = v
	}
	next.Models[tier] = model
	return &next
}
