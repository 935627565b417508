package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	aigateway "github.com/ferrogate/gateway"
	"github.com/ferrogate/gateway/dispatch"
	"github.com/ferrogate/gateway/internal/admin"
	"github.com/ferrogate/gateway/internal/logging"
	"github.com/ferrogate/gateway/internal/requestlog"
	"github.com/ferrogate/gateway/internal/telemetry"
	"github.com/ferrogate/gateway/internal/version"
	"github.com/ferrogate/gateway/normalizer"
	"github.com/ferrogate/gateway/providers"
	"github.com/ferrogate/gateway/web"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	// Register built-in plugins so they can be loaded from config.
	_ "github.com/ferrogate/gateway/internal/plugins/cache"
	_ "github.com/ferrogate/gateway/internal/plugins/logger"
	_ "github.com/ferrogate/gateway/internal/plugins/maxtoken"
	_ "github.com/ferrogate/gateway/internal/plugins/wordfilter"
)

func main() {
	// Load and validate config if GATEWAY_CONFIG is set.
	var cfg *aigateway.Config
	if cfgPath := os.Getenv("GATEWAY_CONFIG"); cfgPath != "" {
		loaded, err := aigateway.LoadConfig(cfgPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		if err := aigateway.ValidateConfig(*loaded); err != nil {
			log.Fatalf("Invalid config: %v", err)
		}
		cfg = loaded
		log.Printf("Config loaded: strategy=%s, targets=%d", cfg.Strategy.Mode, len(cfg.Targets))
	}

	// Auto-register providers based on environment variables.
	registry := providers.NewRegistry()

	type providerEntry struct {
		envKey string
		name   string
		create func(key, baseURL string) (providers.Provider, error)
	}
	autoProviders := []providerEntry{
		{"OPENAI_API_KEY", "openai", func(k, b string) (providers.Provider, error) { return providers.NewOpenAI(k, b) }},
		{"ANTHROPIC_API_KEY", "anthropic", func(k, b string) (providers.Provider, error) { return providers.NewAnthropic(k, b) }},
		{"GROQ_API_KEY", "groq", func(k, b string) (providers.Provider, error) { return providers.NewGroq(k, b) }},
		{"TOGETHER_API_KEY", "together", func(k, b string) (providers.Provider, error) { return providers.NewTogether(k, b) }},
		{"GEMINI_API_KEY", "gemini", func(k, b string) (providers.Provider, error) { return providers.NewGemini(k, b) }},
		{"MISTRAL_API_KEY", "mistral", func(k, b string) (providers.Provider, error) { return providers.NewMistral(k, b) }},
		{"COHERE_API_KEY", "cohere", func(k, b string) (providers.Provider, error) { return providers.NewCohere(k, b) }},
		{"DEEPSEEK_API_KEY", "deepseek", func(k, b string) (providers.Provider, error) { return providers.NewDeepSeek(k, b) }},
	}
	for _, pe := range autoProviders {
		if key := os.Getenv(pe.envKey); key != "" {
			p, err := pe.create(key, "")
			if err != nil {
				log.Fatalf("%s provider: %v", pe.name, err)
			}
			registry.Register(p)
			log.Printf("Provider registered: %s", pe.name)
		}
	}

	// Azure OpenAI requires additional config.
	if key := os.Getenv("AZURE_OPENAI_API_KEY"); key != "" {
		baseURL := os.Getenv("AZURE_OPENAI_ENDPOINT")
		deployment := os.Getenv("AZURE_OPENAI_DEPLOYMENT")
		apiVersion := os.Getenv("AZURE_OPENAI_API_VERSION")
		if baseURL != "" && deployment != "" {
			p, err := providers.NewAzureOpenAI(key, baseURL, deployment, apiVersion)
			if err != nil {
				log.Fatalf("Azure OpenAI provider: %v", err)
			}
			registry.Register(p)
			log.Println("Provider registered: azure-openai")
		} else {
			log.Println("Warning: AZURE_OPENAI_API_KEY set but AZURE_OPENAI_ENDPOINT and AZURE_OPENAI_DEPLOYMENT are required")
		}
	}

	// Ollama is local and needs no API key.
	if ollamaURL := os.Getenv("OLLAMA_HOST"); ollamaURL != "" {
		var models []string
		if m := os.Getenv("OLLAMA_MODELS"); m != "" {
			models = strings.Split(m, ",")
		}
		p, err := providers.NewOllama(ollamaURL, models)
		if err != nil {
			log.Fatalf("Ollama provider: %v", err)
		}
		registry.Register(p)
		log.Printf("Provider registered: ollama (models: %s)", strings.Join(p.SupportedModels(), ", "))
	}

	if len(registry.List()) == 0 {
		log.Fatal("No providers configured. Set at least one provider API key (e.g., OPENAI_API_KEY, ANTHROPIC_API_KEY, GEMINI_API_KEY) or OLLAMA_HOST for local models")
	}

	if cfg == nil {
		defaultTargets := make([]aigateway.Target, 0, len(registry.List()))
		for _, name := range registry.List() {
			defaultTargets = append(defaultTargets, aigateway.Target{VirtualKey: name})
		}
		cfg = &aigateway.Config{
			Strategy: aigateway.StrategyConfig{Mode: aigateway.ModeFallback},
			Targets:  defaultTargets,
		}
		log.Printf("No GATEWAY_CONFIG set; using default strategy=%s with %d target(s)", cfg.Strategy.Mode, len(cfg.Targets))
	}

	// Build and wire the Gateway.
	var gw *aigateway.Gateway
	var err error
	gw, err = aigateway.New(*cfg)
	if err != nil {
		log.Fatalf("Failed to create gateway: %v", err)
	}

	tracerProvider, shutdownTracing, err := telemetry.NewProvider(context.Background(), telemetry.Config{
		Endpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		ServiceName: os.Getenv("OTEL_SERVICE_NAME"),
	})
	if err != nil {
		log.Fatalf("Failed to initialize tracing: %v", err)
	}
	gw.SetTracerProvider(tracerProvider)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			log.Printf("tracer shutdown error: %v", err)
		}
	}()
	// Register all env-var providers on the Gateway so strategies can route to them.
	for _, name := range registry.List() {
		if p, ok := registry.Get(name); ok {
			gw.RegisterProvider(p)
		}
	}
	if len(cfg.Plugins) > 0 {
		if err := gw.LoadPlugins(); err != nil {
			log.Fatalf("Failed to load plugins: %v", err)
		}
		log.Printf("Gateway ready: %d plugin(s) loaded", len(cfg.Plugins))
	}

	keyStore, keyBackend, err := createKeyStoreFromEnv()
	if err != nil {
		log.Fatalf("Failed to initialize API key store: %v", err)
	}
	log.Printf("API key store backend: %s", keyBackend)

	configMgr, configBackend, err := createConfigManagerFromEnv(gw)
	if err != nil {
		log.Fatalf("Failed to initialize config manager: %v", err)
	}
	log.Printf("Config store backend: %s", configBackend)

	logsReader, logsAdmin := createRequestLogStoreFromEnv()

	var corsOrigins []string
	if origins := os.Getenv("CORS_ORIGINS"); origins != "" {
		corsOrigins = strings.Split(origins, ",")
	}

	r := newRouter(registry, keyStore, corsOrigins, gw, configMgr, logsReader, logsAdmin, logging.Logger)

	addr := ":8080"
	if p := os.Getenv("PORT"); p != "" {
		addr = ":" + p
	}
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown on SIGINT / SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		log.Println("Shutting down gracefully…")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("Shutdown error: %v", err)
		}
	}()

	log.Printf("FerroGateway %s listening on %s (%d provider(s))", version.Short(), addr, len(registry.List()))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		stop()
		log.Fatalf("Server error: %v", err) //nolint:gocritic
	}
	log.Println("Server stopped.")
}

// newRouter builds the HTTP router. logs and logsAdmin may be nil, in which
// case the corresponding admin endpoints respond 501. A nil configMgr is
// replaced by an unpersisted GatewayConfigManager over gw; the config
// endpoints respond 501 only if that cannot be built. corsOrigins and logger
// may also be nil/zero-valued.
func newRouter(
	registry *providers.Registry,
	keyStore admin.Store,
	corsOrigins []string,
	gw *aigateway.Gateway,
	configMgr admin.ConfigManager,
	logs requestlog.Reader,
	logsAdmin requestlog.Maintainer,
	logger *slog.Logger,
) http.Handler {
	if gw == nil {
		defaultTargets := make([]aigateway.Target, 0, len(registry.List()))
		for _, name := range registry.List() {
			defaultTargets = append(defaultTargets, aigateway.Target{VirtualKey: name})
		}
		cfg := aigateway.Config{
			Strategy: aigateway.StrategyConfig{Mode: aigateway.ModeFallback},
			Targets:  defaultTargets,
		}
		created, err := aigateway.New(cfg)
		if err == nil {
			for _, name := range registry.List() {
				if p, ok := registry.Get(name); ok {
					created.RegisterProvider(p)
				}
			}
			gw = created
		}
	}
	if configMgr == nil {
		if mgr, err := admin.NewGatewayConfigManager(gw, nil); err == nil {
			configMgr = mgr
		}
	}
	if logger == nil {
		logger = logging.Logger
	}

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(logging.Middleware)
	r.Use(corsMiddleware(corsOrigins...))

	healthHandler := func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"status":    "ok",
			"providers": registry.List(),
		})
	}
	r.Get("/health", healthHandler)
	r.Handle("/metrics", promhttp.Handler())
	// Split readiness/liveness probes: liveness never depends on provider
	// state (the process is up), readiness reflects whether at least one
	// provider is registered to serve traffic.
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		if len(registry.List()) == 0 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("no providers registered"))
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	r.Get("/v1/models", func(w http.ResponseWriter, _ *http.Request) {
		catalog := gw.Catalog()
		base := registry.AllModels()
		data := make([]EnrichedModelInfo, 0, len(base))
		for _, m := range base {
			data = append(data, enrichFromCatalog(catalog, m.OwnedBy, m.ID))
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"object": "list",
			"data":   data,
		})
	})

	r.Get("/dashboard", func(w http.ResponseWriter, _ *http.Request) {
		data, err := web.Assets.ReadFile("dashboard.html")
		if err != nil {
			logger.Error("dashboard asset unavailable", "error", err)
			http.Error(w, "dashboard unavailable", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(data)
	})

	adminHandlers := &admin.Handlers{
		Keys:      keyStore,
		Providers: registry,
		Configs:   configMgr,
		Logs:      logs,
		LogAdmin:  logsAdmin,
	}
	r.Route("/admin", func(r chi.Router) {
		r.Use(admin.AuthMiddleware(keyStore))
		r.Mount("/", adminHandlers.Routes())
	})

	r.Post("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		req, err := normalizer.ParseRequest(r.Body, normalizer.DefaultMaxRequestBodySize)
		if err != nil {
			status := http.StatusBadRequest
			if errors.Is(err, normalizer.ErrPayloadTooLarge) {
				status = http.StatusRequestEntityTooLarge
			}
			writeOpenAIError(w, status, err.Error(), "invalid_request_error")
			return
		}

		// --- Streaming path ---
		if req.Stream {
			ch, err := gw.RouteStream(r.Context(), req)
			if err != nil {
				writeOpenAIError(w, statusForDispatchError(err), err.Error(), "server_error")
				return
			}
			if err := normalizer.WriteStream(w, ch); err != nil {
				logger.Error("stream relay failed", "model", req.Model, "error", err.Error())
			}
			return
		}

		// --- Non-streaming path ---
		resp, err := gw.Route(r.Context(), req)
		if err != nil {
			writeOpenAIError(w, statusForDispatchError(err), err.Error(), "server_error")
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	})

	// Legacy text completions (e.g. gpt-3.5-turbo-instruct, deepseek-chat).
	// Proxies natively to providers that support it, or shims via chat for others.
	r.Post("/v1/completions", completionsHandler(registry))
	r.Post("/v1/embeddings", embeddingsHandler(gw))
	r.Post("/v1/images/generations", imagesHandler(gw))

	// Proxy pass-through: forward any unhandled /v1/* request to the upstream
	// provider.  This covers files, batches, fine-tuning, audio, images/edits,
	// responses API, realtime, etc. without needing a dedicated handler.
	// Must be registered LAST so explicit routes take precedence.
	r.HandleFunc("/v1/*", proxyHandler(registry))

	return r
}

// createKeyStoreFromEnv builds the API key store selected by
// API_KEY_STORE_BACKEND ("memory" (default), "sqlite", "postgres"), reading
// the DSN/path from API_KEY_STORE_DSN. It returns the store and the
// resolved backend name for logging.
func createKeyStoreFromEnv() (admin.Store, string, error) {
	backend := strings.ToLower(strings.TrimSpace(os.Getenv("API_KEY_STORE_BACKEND")))
	dsn := os.Getenv("API_KEY_STORE_DSN")

	switch backend {
	case "", "memory":
		return admin.NewKeyStore(), "memory", nil
	case "sqlite":
		store, err := admin.NewSQLiteStore(dsn)
		if err != nil {
			return nil, "", fmt.Errorf("sqlite key store: %w", err)
		}
		return store, "sqlite", nil
	case "postgres":
		if strings.TrimSpace(dsn) == "" {
			return nil, "", fmt.Errorf("postgres key store: API_KEY_STORE_DSN is required")
		}
		store, err := admin.NewPostgresStore(dsn)
		if err != nil {
			return nil, "", fmt.Errorf("postgres key store: %w", err)
		}
		return store, "postgres", nil
	default:
		return nil, "", fmt.Errorf("unsupported API_KEY_STORE_BACKEND: %s", backend)
	}
}

// createConfigManagerFromEnv builds the runtime config manager selected by
// CONFIG_STORE_BACKEND ("memory" (default), "sqlite", "postgres"), reading
// the DSN/path from CONFIG_STORE_DSN. A non-memory backend persists
// ReloadConfig updates so they survive process restarts.
func createConfigManagerFromEnv(gw *aigateway.Gateway) (*admin.GatewayConfigManager, string, error) {
	backend := strings.ToLower(strings.TrimSpace(os.Getenv("CONFIG_STORE_BACKEND")))
	dsn := os.Getenv("CONFIG_STORE_DSN")

	var store admin.ConfigStore
	switch backend {
	case "", "memory":
		backend = "memory"
	case "sqlite":
		sqliteStore, err := admin.NewSQLiteConfigStore(dsn)
		if err != nil {
			return nil, "", fmt.Errorf("sqlite config store: %w", err)
		}
		store = sqliteStore
	case "postgres":
		if strings.TrimSpace(dsn) == "" {
			return nil, "", fmt.Errorf("postgres config store: CONFIG_STORE_DSN is required")
		}
		pgStore, err := admin.NewPostgresConfigStore(dsn)
		if err != nil {
			return nil, "", fmt.Errorf("postgres config store: %w", err)
		}
		store = pgStore
	default:
		return nil, "", fmt.Errorf("unsupported CONFIG_STORE_BACKEND: %s", backend)
	}

	mgr, err := admin.NewGatewayConfigManager(gw, store)
	if err != nil {
		return nil, "", fmt.Errorf("config manager: %w", err)
	}
	return mgr, backend, nil
}

// createRequestLogStoreFromEnv builds the request log reader/maintainer
// selected by REQUEST_LOG_BACKEND ("none" (default), "sqlite", "postgres").
// With no backend configured, the admin request-log endpoints respond 501.
func createRequestLogStoreFromEnv() (requestlog.Reader, requestlog.Maintainer) {
	backend := strings.ToLower(strings.TrimSpace(os.Getenv("REQUEST_LOG_BACKEND")))
	dsn := os.Getenv("REQUEST_LOG_DSN")

	switch backend {
	case "sqlite":
		w, err := requestlog.NewSQLiteWriter(dsn)
		if err != nil {
			log.Printf("request log sqlite store disabled: %v", err)
			return nil, nil
		}
		return w, w
	case "postgres":
		if strings.TrimSpace(dsn) == "" {
			log.Println("request log postgres store disabled: REQUEST_LOG_DSN is required")
			return nil, nil
		}
		w, err := requestlog.NewPostgresWriter(dsn)
		if err != nil {
			log.Printf("request log postgres store disabled: %v", err)
			return nil, nil
		}
		return w, w
	default:
		return nil, nil
	}
}

// writeOpenAIError writes an OpenAI-compatible JSON error response. An
// optional error code (OpenAI's error.code field) may be passed as a
// trailing argument.
func writeOpenAIError(w http.ResponseWriter, status int, message, errType string, code ...string) {
	body := map[string]interface{}{
		"message": message,
		"type":    errType,
	}
	if len(code) > 0 && code[0] != "" {
		body["code"] = code[0]
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"error": body})
}

// statusForDispatchError maps a dispatch engine error (package dispatch's
// §7 Kind taxonomy) onto the HTTP status an OpenAI-compatible client expects.
func statusForDispatchError(err error) int {
	var de *dispatch.Error
	if errors.As(err, &de) {
		return statusForKind(de.Kind)
	}
	var apf *dispatch.AllProvidersFailed
	if errors.As(err, &apf) {
		return statusForKind(apf.DominantKind())
	}
	if errors.Is(err, normalizer.ErrPayloadTooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusInternalServerError
}

func statusForKind(kind dispatch.Kind) int {
	switch kind {
	case dispatch.KindInvalidRequest, dispatch.KindProviderRequestError:
		return http.StatusBadRequest
	case dispatch.KindModelUnavailable:
		return http.StatusNotFound
	case dispatch.KindProviderAuthError:
		return http.StatusBadGateway
	case dispatch.KindProviderRateLimited:
		return http.StatusTooManyRequests
	case dispatch.KindTimeout:
		return http.StatusGatewayTimeout
	case dispatch.KindCancelled:
		return 499
	case dispatch.KindPayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusBadGateway
	}
}
