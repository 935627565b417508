// Package aigateway provides a high-performance AI gateway
// for routing requests to large language model (LLM) providers.
//
// The Gateway type is the main entry point: create one with New, register
// providers with RegisterProvider, load plugins from config with LoadPlugins,
// and route requests with Route or RouteStream.
//
// Request routing walks the model registry/resolver/router/dispatch pipeline
// (package dispatch): candidates are partitioned by tier and ordered by the
// configured within-tier strategy, then dispatched through the resilience
// pipeline with health- and quota-aware skipping. [Config] (loadable from
// YAML/JSON via [LoadConfig]) still drives target/strategy/plugin setup, but
// Target now also carries the tier/quality/rate-limit fields the registry
// needs.
package aigateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/ferrogate/gateway/dispatch"
	"github.com/ferrogate/gateway/health"
	"github.com/ferrogate/gateway/internal/logging"
	"github.com/ferrogate/gateway/internal/metrics"
	"github.com/ferrogate/gateway/internal/resilience"
	"github.com/ferrogate/gateway/models"
	"github.com/ferrogate/gateway/plugin"
	"github.com/ferrogate/gateway/providers"
	"github.com/ferrogate/gateway/quota"
	"github.com/ferrogate/gateway/registry"
	"github.com/ferrogate/gateway/resolver"
	"github.com/ferrogate/gateway/router"
)

// EventHookFunc is called asynchronously after a gateway event (request
// completed or failed). It replaces the old EventPublisher interface with a
// simpler function-based hook pattern.
type EventHookFunc func(ctx context.Context, subject string, data map[string]interface{})

// Gateway is the main entry point for routing LLM requests.
type Gateway struct {
	mu               sync.RWMutex
	config           Config
	catalog          models.Catalog
	providers        map[string]providers.Provider
	engine           *dispatch.Engine
	health           *health.Store
	quota            *quota.Tracker
	tracer           trace.TracerProvider
	plugins          *plugin.Manager
	hooks            []EventHookFunc
	discoveredModels map[string][]providers.ModelInfo
}

// New creates a new Gateway instance with the given configuration.
func New(cfg Config) (*Gateway, error) {
	catalog, err := models.Load()
	if err != nil {
		// Non-fatal: operate without model metadata (no enrichment / cost reporting).
		catalog = models.Catalog{}
	}
	g := &Gateway{
		config:           cfg,
		catalog:          catalog,
		providers:        make(map[string]providers.Provider),
		plugins:          plugin.NewManager(),
		discoveredModels: make(map[string][]providers.ModelInfo),
	}
	g.health = health.NewStore(g.onHealthTransition)
	g.quota = quota.NewTracker()
	return g, nil
}

// SetTracerProvider installs the TracerProvider chat.request/chat.attempt
// spans are started against. Call before the first Route/RouteStream, or the
// dispatch engine's existing tracer keeps running until the next rebuild
// (triggered by RegisterProvider/ReloadConfig).
func (g *Gateway) SetTracerProvider(tp trace.TracerProvider) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.tracer = tp
	g.engine = nil
}

func (g *Gateway) onHealthTransition(providerKey string, to health.State) {
	metrics.HealthTransitionsTotal.WithLabelValues(providerKey, to.String()).Inc()
}

// Catalog returns a shallow copy of the loaded model catalog.
// A copy is returned so callers cannot mutate the gateway's internal catalog.
func (g *Gateway) Catalog() models.Catalog {
	g.mu.RLock()
	defer g.mu.RUnlock()
	cp := make(models.Catalog, len(g.catalog))
	maps.Copy(cp, g.catalog)
	return cp
}

// Event subject constants used when invoking gateway hooks.
const (
	SubjectRequestCompleted = "gateway.request.completed"
	SubjectRequestFailed    = "gateway.request.failed"
)

// RegisterProvider registers a provider with the gateway.
func (g *Gateway) RegisterProvider(p providers.Provider) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.providers[p.Name()] = p
	g.engine = nil // force registry/engine rebuild
}

// RegisterPlugin registers a plugin at the given lifecycle stage.
func (g *Gateway) RegisterPlugin(stage plugin.Stage, p plugin.Plugin) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.plugins.Register(stage, p)
}

// AddHook registers an EventHookFunc that is called asynchronously on each
// completed or failed request. Multiple hooks may be registered; all are
// invoked for every event.
func (g *Gateway) AddHook(fn EventHookFunc) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.hooks = append(g.hooks, fn)
}

// Route routes a request through the dispatch engine.
func (g *Gateway) Route(ctx context.Context, req providers.Request) (*providers.Response, error) {
	start := time.Now()
	log := logging.FromContext(ctx)

	// Resolve model alias before routing.
	req = g.resolveAlias(req)

	engine, err := g.getEngine()
	if err != nil {
		return nil, err
	}

	// Run before-request plugins (guardrails, transforms, rate-limit).
	pctx := plugin.NewContext(&req)
	if g.plugins.HasPlugins() {
		if err := g.plugins.RunBefore(ctx, pctx); err != nil {
			metrics.RequestsTotal.WithLabelValues("", req.Model, "rejected").Inc()
			return nil, err
		}
		if pctx.Reject {
			metrics.RequestsTotal.WithLabelValues("", req.Model, "rejected").Inc()
			return nil, fmt.Errorf("request rejected by plugin: %s", pctx.Reason)
		}
	}
	req = *pctx.Request

	resp, err := engine.GetResponse(ctx, req)
	latency := time.Since(start)

	if err != nil {
		pctx.Error = err
		g.plugins.RunOnError(ctx, pctx)

		provider, errType := dispatchErrorLabels(err)
		metrics.RequestsTotal.WithLabelValues(provider, req.Model, "error").Inc()
		metrics.ProviderErrors.WithLabelValues(provider, errType).Inc()

		log.Error("request failed",
			"model", req.Model,
			"latency_ms", latency.Milliseconds(),
			"error", err.Error(),
		)

		g.publishEvent(ctx, SubjectRequestFailed, map[string]interface{}{
			"trace_id":   logging.TraceIDFromContext(ctx),
			"model":      req.Model,
			"error":      err.Error(),
			"status":     500,
			"latency_ms": latency.Milliseconds(),
			"timestamp":  time.Now(),
		})
		return nil, err
	}

	// Ensure OpenAI-compatible envelope fields are always set.
	if resp.Object == "" {
		resp.Object = "chat.completion"
	}
	if resp.Created == 0 {
		resp.Created = time.Now().Unix()
	}

	// Run after-request plugins (logging, caching).
	if g.plugins.HasPlugins() {
		pctx.Response = resp
		_ = g.plugins.RunAfter(ctx, pctx)
	}

	// Emit Prometheus metrics.
	metrics.RequestDuration.WithLabelValues(resp.Provider, resp.Model).Observe(latency.Seconds())
	metrics.RequestsTotal.WithLabelValues(resp.Provider, resp.Model, "success").Inc()
	metrics.TokensInput.WithLabelValues(resp.Provider, resp.Model).Add(float64(resp.Usage.PromptTokens))
	metrics.TokensOutput.WithLabelValues(resp.Provider, resp.Model).Add(float64(resp.Usage.CompletionTokens))

	// Emit cost metrics using the model catalog.
	g.mu.RLock()
	catalog := g.catalog
	g.mu.RUnlock()
	cost := models.Calculate(catalog, resp.Provider+"/"+resp.Model, models.Usage{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		ReasoningTokens:  resp.Usage.ReasoningTokens,
		CacheReadTokens:  resp.Usage.CacheReadTokens,
		CacheWriteTokens: resp.Usage.CacheWriteTokens,
	})
	if cost.TotalUSD > 0 {
		metrics.RequestCostUSD.WithLabelValues(resp.Provider, resp.Model).Add(cost.TotalUSD)
	}

	log.Info("request completed",
		"model", resp.Model,
		"provider", resp.Provider,
		"latency_ms", latency.Milliseconds(),
		"tokens_in", resp.Usage.PromptTokens,
		"tokens_out", resp.Usage.CompletionTokens,
		"cost_usd", cost.TotalUSD,
	)

	g.publishEvent(ctx, SubjectRequestCompleted, map[string]interface{}{
		"trace_id":             resp.ID,
		"provider":             resp.Provider,
		"model":                resp.Model,
		"status":               200,
		"latency_ms":           latency.Milliseconds(),
		"tokens_in":            resp.Usage.PromptTokens,
		"tokens_out":           resp.Usage.CompletionTokens,
		"cost_usd":             cost.TotalUSD,
		"cost_input_usd":       cost.InputUSD,
		"cost_output_usd":      cost.OutputUSD,
		"cost_cache_read_usd":  cost.CacheReadUSD,
		"cost_cache_write_usd": cost.CacheWriteUSD,
		"cost_reasoning_usd":   cost.ReasoningUSD,
		"cost_image_usd":       cost.ImageUSD,
		"cost_audio_usd":       cost.AudioUSD,
		"cost_embedding_usd":   cost.EmbeddingUSD,
		"cost_model_found":     cost.ModelFound,
		"timestamp":            time.Now(),
	})

	return resp, nil
}

// RouteStream runs before-request plugins then dispatches through the
// streaming path of the dispatch engine. Once a candidate starts streaming,
// no fallback is attempted on a mid-stream error (at-most-once semantics).
func (g *Gateway) RouteStream(ctx context.Context, req providers.Request) (<-chan providers.StreamChunk, error) {
	log := logging.FromContext(ctx)

	// Resolve model alias before routing.
	req = g.resolveAlias(req)

	engine, err := g.getEngine()
	if err != nil {
		return nil, err
	}

	// Run before-request plugins (word-filter, max-token, rate-limit, etc.).
	pctx := plugin.NewContext(&req)
	if g.plugins.HasPlugins() {
		if err := g.plugins.RunBefore(ctx, pctx); err != nil {
			metrics.RequestsTotal.WithLabelValues("", req.Model, "rejected").Inc()
			return nil, err
		}
		if pctx.Reject {
			metrics.RequestsTotal.WithLabelValues("", req.Model, "rejected").Inc()
			return nil, fmt.Errorf("request rejected by plugin: %s", pctx.Reason)
		}
	}
	// Propagate any modifications made by plugins (e.g., capped max_tokens).
	req = *pctx.Request

	ch, err := engine.GetStreamingResponse(ctx, req)
	if err != nil {
		provider, errType := dispatchErrorLabels(err)
		metrics.RequestsTotal.WithLabelValues(provider, req.Model, "error").Inc()
		metrics.ProviderErrors.WithLabelValues(provider, errType).Inc()
		return nil, err
	}

	log.Info("stream request started", "model", req.Model)
	metrics.RequestsTotal.WithLabelValues("", req.Model, "success").Inc()
	return ch, nil
}

// dispatchErrorLabels extracts the provider key and error-taxonomy label
// (spec.md §7's Kind) from an error returned by the dispatch engine, for the
// gateway's provider/error_type-labelled metrics.
func dispatchErrorLabels(err error) (provider, errType string) {
	var de *dispatch.Error
	if errors.As(err, &de) {
		return de.ProviderKey, string(de.Kind)
	}
	var apf *dispatch.AllProvidersFailed
	if errors.As(err, &apf) {
		return "", string(apf.DominantKind())
	}
	return "", "provider_error"
}

// publishEvent calls all registered hooks asynchronously.
func (g *Gateway) publishEvent(ctx context.Context, subject string, data map[string]interface{}) {
	g.mu.RLock()
	hooks := make([]EventHookFunc, len(g.hooks))
	copy(hooks, g.hooks)
	g.mu.RUnlock()

	for _, h := range hooks {
		fn := h
		go fn(ctx, subject, data)
	}
}

// ReloadConfig validates and applies a new configuration, forcing an engine
// rebuild on next request.
func (g *Gateway) ReloadConfig(cfg Config) error {
	if err := ValidateConfig(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.config = cfg
	g.engine = nil // force rebuild on next request
	return nil
}

// GetConfig returns a copy of the current configuration.
func (g *Gateway) GetConfig() Config {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.config
}

// getEngine lazily builds the dispatch engine (registry, resolver, router,
// resilience pipeline) from config and registered providers. Rebuilding is
// triggered by RegisterProvider, ReloadConfig, and SetTracerProvider.
func (g *Gateway) getEngine() (*dispatch.Engine, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.engine != nil {
		return g.engine, nil
	}
	if len(g.config.Targets) == 0 {
		return nil, fmt.Errorf("no targets configured")
	}

	doc := g.buildRegistryDocumentLocked()
	reg, err := registry.New(doc)
	if err != nil {
		return nil, fmt.Errorf("building model registry: %w", err)
	}
	for key, pc := range doc.Providers {
		g.quota.Configure(key, pc.RateLimitRPM, pc.RateLimitTPM)
	}

	resolve := resolver.New(reg)
	loadFn := func(providerKey string) int64 { return g.health.Get(providerKey).LastLatencyMs }
	rtr := router.New(resolve, routerStrategyFromMode(g.config.Strategy.Mode), loadFn)

	pipelines := resilience.NewRegistry()
	pipeline := pipelines.Register("provider-retry", resilience.Config{
		AttemptTimeout: 30 * time.Second,
		MaxAttempts:    2,
		BackoffBase:    100 * time.Millisecond,
		Classify:       dispatch.ClassifyRetryable,
	})
	streamPipeline := pipelines.Register("provider-retry-stream", resilience.Config{
		AttemptTimeout: 120 * time.Second,
		MaxAttempts:    2,
		BackoffBase:    100 * time.Millisecond,
		Classify:       dispatch.ClassifyRetryable,
	})

	e := dispatch.New(rtr, g.health, g.quota, pipeline, g, logging.Logger)
	e.StreamPipeline = streamPipeline
	e.Tracer = g.tracer
	g.engine = e
	return e, nil
}

// buildRegistryDocumentLocked synthesizes a registry.Document from the
// gateway's targets and currently-registered providers. Must be called with
// g.mu held. A target whose provider is not yet registered contributes no
// bindings -- it becomes eligible the moment RegisterProvider invalidates
// the engine and this is rebuilt.
func (g *Gateway) buildRegistryDocumentLocked() registry.Document {
	doc := registry.Document{
		Providers: make(map[string]registry.ProviderConfig, len(g.config.Targets)),
		Aliases:   make(map[string][]string, len(g.config.Aliases)),
	}

	modelSet := make(map[string]bool)
	for idx, t := range g.config.Targets {
		p, ok := g.providers[t.VirtualKey]
		if !ok {
			continue
		}

		adapterType := t.Type
		if adapterType == "" {
			adapterType = providers.AdapterType(p)
		}
		tier, quality := targetTierAndQuality(g.config.Strategy.Mode, idx, t)
		doc.Providers[t.VirtualKey] = registry.ProviderConfig{
			Key:          t.VirtualKey,
			Type:         adapterType,
			Enabled:      true,
			Tier:         tier,
			QualityScore: quality,
			RateLimitRPM: t.RateLimitRPM,
			RateLimitTPM: t.RateLimitTPM,
		}

		modelIDs := t.Models
		if len(modelIDs) == 0 {
			for _, mi := range p.Models() {
				modelIDs = append(modelIDs, mi.ID)
			}
		}
		for _, id := range modelIDs {
			if !modelSet[id] {
				modelSet[id] = true
				doc.Models = append(doc.Models, registry.CanonicalModel{
					ID:           id,
					Capabilities: registry.Capabilities{Streaming: true, Tools: true, Vision: true},
				})
			}
			doc.Bindings = append(doc.Bindings, registry.ProviderModelBinding{
				ProviderKey:        t.VirtualKey,
				CanonicalID:        id,
				ProviderSpecificID: id,
				IsAvailable:        true,
			})
		}
	}

	// An alias targeting a model no one currently binds would make
	// registry.New reject the whole document (spec.md §4.1); drop it instead
	// so one stale alias entry cannot take the gateway down on reload.
	for alias, target := range g.config.Aliases {
		if modelSet[target] {
			doc.Aliases[alias] = []string{target}
		}
	}

	return doc
}

// targetTierAndQuality derives a target's registry tier/qualityScore. A
// non-zero Target.Tier always wins. Otherwise the legacy strategy mode
// supplies a default: fallback and conditional order targets strictly by
// declaration (one tier per target, so the dispatch loop only reaches
// target N+1 after target N is exhausted); single and load-balance put every
// target on tier 0, since the dispatch engine -- unlike the old Single
// strategy -- always fails over across every eligible candidate rather than
// committing to exactly one (see DESIGN.md).
func targetTierAndQuality(mode StrategyMode, idx int, t Target) (tier, quality int) {
	quality = t.QualityScore
	if t.Tier != 0 {
		return t.Tier, quality
	}
	switch mode {
	case ModeFallback, ModeConditional:
		return idx, quality
	default:
		return 0, quality
	}
}

// routerStrategyFromMode maps the legacy strategy mode onto a within-tier
// router.Strategy. True attribute-based conditional routing has no
// equivalent in the tier/quality model, so ModeConditional degrades to
// Priority ordering by qualityScore (see DESIGN.md).
func routerStrategyFromMode(mode StrategyMode) router.Strategy {
	switch mode {
	case ModeFallback, ModeConditional:
		return router.Priority
	default:
		return router.RoundRobin
	}
}

// LoadPlugins initializes and registers plugins from the gateway configuration.
func (g *Gateway) LoadPlugins() error {
	for _, pc := range g.config.Plugins {
		if !pc.Enabled {
			continue
		}
		factory, ok := plugin.GetFactory(pc.Name)
		if !ok {
			return fmt.Errorf("unknown plugin: %s", pc.Name)
		}
		p := factory()
		if err := p.Init(pc.Config); err != nil {
			return fmt.Errorf("plugin %s init failed: %w", pc.Name, err)
		}
		stage := plugin.Stage(pc.Stage)
		if err := g.RegisterPlugin(stage, p); err != nil {
			return fmt.Errorf("plugin %s register failed: %w", pc.Name, err)
		}
	}
	return nil
}

// ── Registry-consolidation helpers ──────────────────────────────────────────
// These methods make *Gateway satisfy providers.ProviderSource so that HTTP
// handlers that previously held a *providers.Registry can accept the gateway
// directly instead. Get also satisfies dispatch.ProviderLookup, so the
// gateway itself is handed to dispatch.New as the adapter lookup.

// AllModels returns ModelInfo from all registered providers.
// If auto-discovery has run for a provider, discovered models take precedence
// over the provider's static model list.
func (g *Gateway) AllModels() []providers.ModelInfo {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var models []providers.ModelInfo
	for name, p := range g.providers {
		if discovered, ok := g.discoveredModels[name]; ok && len(discovered) > 0 {
			models = append(models, discovered...)
		} else {
			models = append(models, p.Models()...)
		}
	}
	return models
}

// GetProvider returns a registered provider by name.
func (g *Gateway) GetProvider(name string) (providers.Provider, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	p, ok := g.providers[name]
	return p, ok
}

// Get satisfies providers.ProviderSource and dispatch.ProviderLookup (alias
// for GetProvider).
func (g *Gateway) Get(name string) (providers.Provider, bool) {
	return g.GetProvider(name)
}

// ListProviders returns the names of all registered providers.
func (g *Gateway) ListProviders() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	names := make([]string, 0, len(g.providers))
	for name := range g.providers {
		names = append(names, name)
	}
	return names
}

// List satisfies providers.ProviderSource (alias for ListProviders).
func (g *Gateway) List() []string {
	return g.ListProviders()
}

// FindByModel returns the first registered provider that supports the given model.
func (g *Gateway) FindByModel(model string) (providers.Provider, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, p := range g.providers {
		if p.SupportsModel(model) {
			return p, true
		}
	}
	return nil, false
}

// Close cleans up resources.
func (g *Gateway) Close() error {
	return nil
}

// ── Alias resolution ─────────────────────────────────────────────────────────

// resolveModelAlias returns the alias target for model, or model unchanged.
func (g *Gateway) resolveModelAlias(model string) string {
	g.mu.RLock()
	target, ok := g.config.Aliases[model]
	g.mu.RUnlock()
	if ok {
		return target
	}
	return model
}

// resolveAlias replaces req.Model with its configured alias target (if any).
func (g *Gateway) resolveAlias(req providers.Request) providers.Request {
	req.Model = g.resolveModelAlias(req.Model)
	return req
}

// ── Multi-modal endpoints ────────────────────────────────────────────────────

// Embed routes an embedding request to the first registered EmbeddingProvider
// that supports the requested model.
func (g *Gateway) Embed(ctx context.Context, req providers.EmbeddingRequest) (*providers.EmbeddingResponse, error) {
	log := logging.FromContext(ctx)

	// Resolve model alias so embedding endpoints honour the same aliases as chat.
	req.Model = g.resolveModelAlias(req.Model)

	g.mu.RLock()
	var ep providers.EmbeddingProvider
	for _, p := range g.providers {
		if ep2, ok := p.(providers.EmbeddingProvider); ok && p.SupportsModel(req.Model) {
			ep = ep2
			break
		}
	}
	g.mu.RUnlock()

	if ep == nil {
		return nil, fmt.Errorf("no embedding provider found for model: %s", req.Model)
	}

	resp, err := ep.Embed(ctx, req)
	if err != nil {
		log.Error("embedding request failed", "model", req.Model, "error", err.Error())
		return nil, err
	}

	log.Info("embedding request completed", "model", resp.Model, "tokens", resp.Usage.TotalTokens)
	return resp, nil
}

// GenerateImage routes an image generation request to the first registered
// ImageProvider that supports the requested model.
func (g *Gateway) GenerateImage(ctx context.Context, req providers.ImageRequest) (*providers.ImageResponse, error) {
	log := logging.FromContext(ctx)

	// Resolve model alias so image endpoints honour the same aliases as chat.
	req.Model = g.resolveModelAlias(req.Model)

	g.mu.RLock()
	var ip providers.ImageProvider
	for _, p := range g.providers {
		if ip2, ok := p.(providers.ImageProvider); ok && p.SupportsModel(req.Model) {
			ip = ip2
			break
		}
	}
	g.mu.RUnlock()

	if ip == nil {
		return nil, fmt.Errorf("no image generation provider found for model: %s", req.Model)
	}

	resp, err := ip.GenerateImage(ctx, req)
	if err != nil {
		log.Error("image generation request failed", "model", req.Model, "error", err.Error())
		return nil, err
	}

	log.Info("image generation request completed", "model", req.Model, "images", len(resp.Data))
	return resp, nil
}

// ── Auto-discovery ───────────────────────────────────────────────────────────

// StartDiscovery periodically refreshes model lists from providers that implement
// DiscoveryProvider. It runs in a background goroutine until ctx is cancelled.
// interval must be greater than zero; an error is returned otherwise.
func (g *Gateway) StartDiscovery(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("StartDiscovery: interval must be greater than zero, got %v", interval)
	}
	log := logging.FromContext(ctx)
	go func() {
		g.runDiscovery(ctx, log)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				g.runDiscovery(ctx, log)
			}
		}
	}()
	return nil
}

func (g *Gateway) runDiscovery(ctx context.Context, log *slog.Logger) {
	g.mu.RLock()
	providersCopy := make(map[string]providers.Provider, len(g.providers))
	for k, v := range g.providers {
		providersCopy[k] = v
	}
	g.mu.RUnlock()

	for name, p := range providersCopy {
		dp, ok := p.(providers.DiscoveryProvider)
		if !ok {
			continue
		}
		discovered, err := dp.DiscoverModels(ctx)
		if err != nil {
			log.Error("model discovery failed", "provider", name, "error", err.Error())
			continue
		}
		g.mu.Lock()
		g.discoveredModels[name] = discovered
		g.mu.Unlock()
		log.Info("model discovery completed", "provider", name, "models", len(discovered))
	}
}
