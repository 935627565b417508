// Package registry implements the Model Registry: the immutable,
// atomically-swappable catalog of providers, canonical models, aliases, and
// provider/model bindings that every other gateway component resolves
// against.
package registry

// ProviderConfig describes one upstream provider as loaded from the
// configuration document. It is immutable for the lifetime of a Snapshot.
type ProviderConfig struct {
	Key           string            `json:"key" yaml:"key"`
	Type          string            `json:"type" yaml:"type"`
	Enabled       bool              `json:"enabled" yaml:"enabled"`
	Tier          int               `json:"tier" yaml:"tier"`
	Models        []string          `json:"models" yaml:"models"`
	Endpoint      string            `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	Credentials   string            `json:"credentials,omitempty" yaml:"credentials,omitempty"`
	RateLimitRPM  int               `json:"rateLimitRPM,omitempty" yaml:"rateLimitRPM,omitempty"`
	RateLimitTPM  int               `json:"rateLimitTPM,omitempty" yaml:"rateLimitTPM,omitempty"`
	IsFree        bool              `json:"isFree,omitempty" yaml:"isFree,omitempty"`
	QualityScore  int               `json:"qualityScore,omitempty" yaml:"qualityScore,omitempty"`
	CustomHeaders map[string]string `json:"customHeaders,omitempty" yaml:"customHeaders,omitempty"`
}

// Capabilities flags a canonical model's supported request shapes.
type Capabilities struct {
	Streaming        bool `json:"streaming,omitempty" yaml:"streaming,omitempty"`
	Tools            bool `json:"tools,omitempty" yaml:"tools,omitempty"`
	Vision           bool `json:"vision,omitempty" yaml:"vision,omitempty"`
	Audio            bool `json:"audio,omitempty" yaml:"audio,omitempty"`
	StructuredOutput bool `json:"structuredOutput,omitempty" yaml:"structuredOutput,omitempty"`
	Reasoning        bool `json:"reasoning,omitempty" yaml:"reasoning,omitempty"`
}

// Satisfies reports whether c offers every capability set in required.
func (c Capabilities) Satisfies(required Capabilities) bool {
	if required.Streaming && !c.Streaming {
		return false
	}
	if required.Tools && !c.Tools {
		return false
	}
	if required.Vision && !c.Vision {
		return false
	}
	if required.Audio && !c.Audio {
		return false
	}
	if required.StructuredOutput && !c.StructuredOutput {
		return false
	}
	if required.Reasoning && !c.Reasoning {
		return false
	}
	return true
}

// CanonicalModel is a gateway-local model identity, independent of any
// single upstream provider's naming.
type CanonicalModel struct {
	ID              string       `json:"id" yaml:"id"`
	Family          string       `json:"family,omitempty" yaml:"family,omitempty"`
	ContextWindow   int          `json:"contextWindow,omitempty" yaml:"contextWindow,omitempty"`
	MaxOutputTokens int          `json:"maxOutputTokens,omitempty" yaml:"maxOutputTokens,omitempty"`
	InputPrice      float64      `json:"inputPrice,omitempty" yaml:"inputPrice,omitempty"`
	OutputPrice     float64      `json:"outputPrice,omitempty" yaml:"outputPrice,omitempty"`
	Capabilities    Capabilities `json:"capabilities,omitempty" yaml:"capabilities,omitempty"`
}

// ProviderModelBinding links a provider to a canonical model it can serve,
// carrying the provider-local id that must replace the canonical one on the
// wire.
type ProviderModelBinding struct {
	ProviderKey       string   `json:"providerKey" yaml:"providerKey"`
	CanonicalID       string   `json:"canonicalId" yaml:"canonicalId"`
	ProviderSpecificID string  `json:"providerSpecificId" yaml:"providerSpecificId"`
	IsAvailable       bool     `json:"isAvailable" yaml:"isAvailable"`
	InputPrice        *float64 `json:"inputPrice,omitempty" yaml:"inputPrice,omitempty"`
	OutputPrice       *float64 `json:"outputPrice,omitempty" yaml:"outputPrice,omitempty"`
	RateLimitRPM      *int     `json:"rateLimitRPM,omitempty" yaml:"rateLimitRPM,omitempty"`
	RateLimitTPM      *int     `json:"rateLimitTPM,omitempty" yaml:"rateLimitTPM,omitempty"`
}

// Alias maps a convenience name onto an ordered list of canonical model ids.
// Resolving an alias expands its targets in declared order; the resolver
// then sorts the combined candidates by tier, quality score and provider key.
type Alias struct {
	Name    string   `json:"name" yaml:"name"`
	Targets []string `json:"targets" yaml:"targets"`
}

// Document is the raw, user-authored configuration shape loaded from YAML or
// JSON -- the input to Load/Reload, before validation and indexing.
type Document struct {
	Providers map[string]ProviderConfig `json:"providers" yaml:"providers"`
	Models    []CanonicalModel          `json:"models" yaml:"models"`
	Bindings  []ProviderModelBinding    `json:"bindings" yaml:"bindings"`
	Aliases   map[string][]string       `json:"aliases" yaml:"aliases"`
}
