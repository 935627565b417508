// Package main provides the ferrogw-cli command-line tool for managing the FerroGateway.
package main

import (
	"fmt"
	"os"
	"strings"

	aigateway "github.com/ferrogate/gateway"
	"github.com/ferrogate/gateway/internal/version"
	"github.com/ferrogate/gateway/plugin"
	"github.com/spf13/cobra"

	// Register built-in plugins so they appear in the plugin list.
	_ "github.com/ferrogate/gateway/internal/plugins/cache"
	_ "github.com/ferrogate/gateway/internal/plugins/logger"
	_ "github.com/ferrogate/gateway/internal/plugins/maxtoken"
	_ "github.com/ferrogate/gateway/internal/plugins/wordfilter"
)

func main() {
	root := &cobra.Command{
		Use:           "ferrogw-cli",
		Short:         "FerroGateway command line tool",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newValidateCmd())
	root.AddCommand(newPluginsCmd())
	root.AddCommand(newVersionCmd())
	root.AddCommand(newRoutesCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <config-file>",
		Short: "Validate a gateway configuration file (JSON/YAML)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(args[0])
		},
	}
}

func runValidate(path string) error {
	cfg, err := aigateway.LoadConfig(path)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if err := aigateway.ValidateConfig(*cfg); err != nil {
		return fmt.Errorf("validation error: %w", err)
	}

	fmt.Printf("✓ Config is valid\n")
	fmt.Printf("  Strategy:  %s\n", cfg.Strategy.Mode)
	fmt.Printf("  Targets:   %d\n", len(cfg.Targets))

	var targetNames []string
	for _, t := range cfg.Targets {
		targetNames = append(targetNames, t.VirtualKey)
	}
	fmt.Printf("  Providers: %s\n", strings.Join(targetNames, ", "))

	if len(cfg.Plugins) > 0 {
		var pluginNames []string
		for _, p := range cfg.Plugins {
			status := "disabled"
			if p.Enabled {
				status = "enabled"
			}
			pluginNames = append(pluginNames, fmt.Sprintf("%s (%s)", p.Name, status))
		}
		fmt.Printf("  Plugins:   %s\n", strings.Join(pluginNames, ", "))
	}
	return nil
}

func newPluginsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plugins",
		Short: "List all registered plugins",
		RunE: func(cmd *cobra.Command, args []string) error {
			names := plugin.RegisteredPlugins()
			if len(names) == 0 {
				fmt.Println("No plugins registered.")
				return nil
			}
			fmt.Println("Registered plugins:")
			for _, name := range names {
				factory, _ := plugin.GetFactory(name)
				p := factory()
				fmt.Printf("  %-20s type=%s\n", name, p.Type())
			}
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version info",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("ferrogw-cli %s\n", version.String())
			return nil
		},
	}
}
