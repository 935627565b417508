package main

import (
	"fmt"

	"github.com/ferrogate/gateway/health"
	"github.com/ferrogate/gateway/registry"
	"github.com/ferrogate/gateway/resolver"
	"github.com/ferrogate/gateway/router"
	"github.com/spf13/cobra"
)

var routesStrategy string
var routesStreaming bool

func newRoutesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "routes <registry-file> <model-id>",
		Short: "Show the ordered dispatch candidates the router would try for a model",
		Long: `routes loads a registry document (the same Providers/Models/Bindings/Aliases
shape the gateway hot-reloads) and prints the candidate list the Smart
Router would hand to the dispatch engine for the given model id, in the
order dispatch would attempt them.

This exercises the registry/resolver/router stack directly, independent
of the HTTP server's Strategy-based routing.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRoutes(args[0], args[1])
		},
	}
	cmd.Flags().StringVar(&routesStrategy, "strategy", string(router.RoundRobin), "within-tier strategy: RoundRobin, LeastLoaded, or Priority")
	cmd.Flags().BoolVar(&routesStreaming, "streaming", false, "require streaming support")
	return cmd
}

func runRoutes(registryPath, modelID string) error {
	doc, err := registry.LoadDocument(registryPath)
	if err != nil {
		return fmt.Errorf("loading registry document: %w", err)
	}

	reg, err := registry.New(doc)
	if err != nil {
		return fmt.Errorf("building registry: %w", err)
	}

	resolve := resolver.New(reg)
	healthStore := health.NewStore(nil)
	r := router.New(resolve, router.Strategy(routesStrategy), func(providerKey string) int64 {
		return healthStore.Get(providerKey).LastLatencyMs
	})

	candidates := r.GetCandidates(modelID, routesStreaming)
	if len(candidates) == 0 {
		fmt.Printf("No candidates for model %q (unknown model, unresolved alias, or no available bindings)\n", modelID)
		return nil
	}

	fmt.Printf("Dispatch order for %q (strategy=%s streaming=%v):\n", modelID, routesStrategy, routesStreaming)
	for i, c := range candidates {
		status := healthStore.Get(c.ProviderKey).State
		fmt.Printf("  %d. tier=%d provider=%-15s model=%-20s quality=%-3d health=%s\n",
			i+1, c.Tier, c.ProviderKey, c.ProviderSpecificID, c.QualityScore, status)
	}
	return nil
}
