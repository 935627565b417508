package registry

import (
	"fmt"
	"sort"
	"sync/atomic"
)

// ConfigInvalid wraps a registry load failure: a provider key that does not
// match its map key, a negative tier, an unknown provider type, a binding to
// an unknown provider or model, a dangling alias target, or a duplicate
// canonical model id.
type ConfigInvalid struct {
	Reason string
}

func (e *ConfigInvalid) Error() string {
	return fmt.Sprintf("registry: invalid configuration: %s", e.Reason)
}

// knownProviderTypes enumerates the adapter kinds the providers package can
// dispatch to. Kept here (rather than imported from providers) so registry
// has no dependency on the adapter layer -- it only needs to know the set of
// valid tags.
var knownProviderTypes = map[string]bool{
	"openai":         true,
	"openai-compat":  true,
	"azure-openai":   true,
	"gemini":         true,
	"bedrock":        true,
	"anthropic":      true,
	"groq":           true,
	"mistral":        true,
	"cohere":         true,
	"together":       true,
	"fireworks":      true,
	"deepseek":       true,
	"ai21":           true,
	"perplexity":     true,
	"replicate":      true,
	"ollama":         true,
}

// Snapshot is the immutable, indexed view of a loaded configuration
// document. A Registry swaps its active Snapshot atomically on reload;
// readers never block on a writer.
type Snapshot struct {
	providers map[string]ProviderConfig
	models    map[string]CanonicalModel
	modelIDs  []string // stable iteration order, sorted
	bindings  map[string][]ProviderModelBinding // keyed by canonicalId
	aliases   map[string]Alias
}

// GetProvider returns the provider config for key, if present and known.
func (s *Snapshot) GetProvider(key string) (ProviderConfig, bool) {
	p, ok := s.providers[key]
	return p, ok
}

// ListCanonicalModels returns every canonical model, sorted by id for
// deterministic iteration.
func (s *Snapshot) ListCanonicalModels() []CanonicalModel {
	out := make([]CanonicalModel, 0, len(s.modelIDs))
	for _, id := range s.modelIDs {
		out = append(out, s.models[id])
	}
	return out
}

// GetCanonicalModel returns the canonical model definition for id.
func (s *Snapshot) GetCanonicalModel(id string) (CanonicalModel, bool) {
	m, ok := s.models[id]
	return m, ok
}

// ResolveAlias expands aliasName into its ordered, deduplicated list of
// canonical model ids. Returns ok=false if name is not a known alias.
func (s *Snapshot) ResolveAlias(name string) ([]string, bool) {
	a, ok := s.aliases[name]
	if !ok {
		return nil, false
	}
	return a.Targets, true
}

// BindingsFor returns every provider binding for the given canonical model
// id, in no particular order (callers sort per spec.md §4.2).
func (s *Snapshot) BindingsFor(canonicalID string) []ProviderModelBinding {
	return s.bindings[canonicalID]
}

// Registry holds the active Snapshot behind an atomic pointer. Reload swaps
// the pointer; in-flight requests that already read the old Snapshot keep
// using it to completion, per spec.md §6's hot-reload guarantee.
type Registry struct {
	current atomic.Pointer[Snapshot]
}

// New builds a Registry from doc, validating it per spec.md §4.1. Returns a
// *ConfigInvalid error if validation fails.
func New(doc Document) (*Registry, error) {
	snap, err := build(doc)
	if err != nil {
		return nil, err
	}
	r := &Registry{}
	r.current.Store(snap)
	return r, nil
}

// Reload validates doc and, on success, atomically swaps the active
// Snapshot. On validation failure the previous Snapshot remains active.
func (r *Registry) Reload(doc Document) error {
	snap, err := build(doc)
	if err != nil {
		return err
	}
	r.current.Store(snap)
	return nil
}

// Snapshot returns the currently active Snapshot. Callers should read once
// per request and operate against that value rather than calling Snapshot
// repeatedly, so a single request observes one consistent registry state.
func (r *Registry) Snapshot() *Snapshot {
	return r.current.Load()
}

func build(doc Document) (*Snapshot, error) {
	providers := make(map[string]ProviderConfig, len(doc.Providers))
	for key, cfg := range doc.Providers {
		if cfg.Key == "" {
			cfg.Key = key
		}
		if cfg.Key != key {
			return nil, &ConfigInvalid{Reason: fmt.Sprintf("provider map key %q does not match ProviderConfig.Key %q", key, cfg.Key)}
		}
		if cfg.Tier < 0 {
			return nil, &ConfigInvalid{Reason: fmt.Sprintf("provider %q: tier must be >= 0, got %d", key, cfg.Tier)}
		}
		if !knownProviderTypes[cfg.Type] {
			return nil, &ConfigInvalid{Reason: fmt.Sprintf("provider %q: unknown adapter type %q", key, cfg.Type)}
		}
		if _, exists := providers[key]; exists {
			return nil, &ConfigInvalid{Reason: fmt.Sprintf("duplicate provider key %q", key)}
		}
		providers[key] = cfg
	}

	models := make(map[string]CanonicalModel, len(doc.Models))
	modelIDs := make([]string, 0, len(doc.Models))
	for _, m := range doc.Models {
		if _, exists := models[m.ID]; exists {
			return nil, &ConfigInvalid{Reason: fmt.Sprintf("duplicate canonical model id %q", m.ID)}
		}
		models[m.ID] = m
		modelIDs = append(modelIDs, m.ID)
	}
	sort.Strings(modelIDs)

	bindings := make(map[string][]ProviderModelBinding, len(models))
	for _, b := range doc.Bindings {
		if _, ok := providers[b.ProviderKey]; !ok {
			return nil, &ConfigInvalid{Reason: fmt.Sprintf("binding references unknown provider %q", b.ProviderKey)}
		}
		if _, ok := models[b.CanonicalID]; !ok {
			return nil, &ConfigInvalid{Reason: fmt.Sprintf("binding references unknown canonical model %q", b.CanonicalID)}
		}
		bindings[b.CanonicalID] = append(bindings[b.CanonicalID], b)
	}

	aliases := make(map[string]Alias, len(doc.Aliases))
	for name, targets := range doc.Aliases {
		seen := make(map[string]bool, len(targets))
		ordered := make([]string, 0, len(targets))
		for _, t := range targets {
			if _, ok := models[t]; !ok {
				return nil, &ConfigInvalid{Reason: fmt.Sprintf("alias %q targets unknown canonical model %q", name, t)}
			}
			if seen[t] {
				continue
			}
			seen[t] = true
			ordered = append(ordered, t)
		}
		aliases[name] = Alias{Name: name, Targets: ordered}
	}

	return &Snapshot{
		providers: providers,
		models:    models,
		modelIDs:  modelIDs,
		bindings:  bindings,
		aliases:   aliases,
	}, nil
}
