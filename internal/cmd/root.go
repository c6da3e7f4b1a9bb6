package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	settingsPath string
	logLevel     string
	logFormat    string
	metricsFile  string
	noPrompt     bool
)

var rootCmd = &cobra.Command{
	Use:   "orgsync",
	Short: "Reconcile GitHub organizations with declarative configuration",
	Long: `orgsync keeps GitHub organizations in line with YAML configuration.

It reads the live state of each organization, compares it with the
configuration and applies the differences: organization settings,
repositories, webhooks, secrets, variables, environments, branch protection
rules, rulesets, teams, custom roles and custom properties.

Organizations and tool settings are listed in ~/.orgsync/config.yaml.
Run 'orgsync init' to create it.`,
	SilenceUsage: true,
}

// Execute runs the root command until it finishes or the process is
// interrupted
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&settingsPath, "config", "", "Settings file (default ~/.orgsync/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: trace, debug, info, warn or error (overrides settings)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format: console or json (overrides settings)")
	rootCmd.PersistentFlags().StringVar(&metricsFile, "metrics-file", "", "Write Prometheus metrics of the run to this file")
	rootCmd.PersistentFlags().BoolVar(&noPrompt, "no-prompt", false, "Never prompt for credentials")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(authCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(showCmd)
}
