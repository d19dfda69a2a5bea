// Command dispatchctl is the operator CLI for the dispatch service.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/relaylabs/dispatch"
	"github.com/relaylabs/dispatch/internal/version"
)

func main() {
	root := &cobra.Command{
		Use:           "dispatchctl",
		Short:         "Manage and inspect dispatch configurations",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newValidateCmd(), newProvidersCmd(), newVersionCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <config-file>",
		Short: "Validate a dispatcher configuration file (JSON/YAML)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := dispatch.LoadConfig(args[0])
			if err != nil {
				return err
			}
			if err := dispatch.ValidateConfig(*cfg); err != nil {
				return err
			}
			cmd.Printf("Config valid: %d provider(s)\n", len(cfg.Providers))
			return nil
		},
	}
}

func newProvidersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "providers <config-file>",
		Short: "List the providers a configuration declares, in dispatch order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := dispatch.LoadConfig(args[0])
			if err != nil {
				return err
			}
			if err := dispatch.ValidateConfig(*cfg); err != nil {
				return err
			}
			// Group by tier to mirror the dispatch order.
			for _, tier := range []string{"primary", "fallback", "local"} {
				for _, pc := range cfg.Providers {
					t := pc.Tier
					if t == "" {
						t = defaultTier(pc.Kind)
					}
					if t != tier {
						continue
					}
					model := pc.Model
					if model == "" {
						model = "(default)"
					}
					cmd.Printf("%-10s %-10s model=%s\n", pc.Kind, t, model)
				}
			}
			return nil
		},
	}
}

func defaultTier(kind string) string {
	switch kind {
	case "gemini":
		return "primary"
	case "ollama":
		return "local"
	default:
		return "fallback"
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version info",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Println("dispatchctl", version.String())
		},
	}
}
