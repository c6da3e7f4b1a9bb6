package cmd

import (
	"github.com/spf13/cobra"

	"orgsync/pkg/diff"
	"orgsync/pkg/engine"
)

var (
	planForceSecrets  bool
	planForceWebhooks bool
	planUpdateFilter  string
)

var planCmd = &cobra.Command{
	Use:   "plan [organization...]",
	Short: "Show the changes needed to reconcile organizations",
	Long: `Plan reads the live state of the named organizations, or of every
organization in the settings file, and shows what apply would change.

Secret values and webhook secrets cannot be read back from GitHub. Use
--force-secrets and --force-webhooks to plan them as changed, optionally
narrowed with --update-filter.`,
	RunE: runPlan,
}

func init() {
	planCmd.Flags().BoolVar(&planForceSecrets, "force-secrets", false, "Treat secret values as changed")
	planCmd.Flags().BoolVar(&planForceWebhooks, "force-webhooks", false, "Treat webhook secrets as changed")
	planCmd.Flags().StringVar(&planUpdateFilter, "update-filter", "", "Glob limiting forced updates to matching secret names and webhook URLs")
}

func runPlan(cmd *cobra.Command, args []string) error {
	filter, err := diff.CompileFilter(planUpdateFilter)
	if err != nil {
		return err
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.finish()

	creds, err := a.credentials()
	if err != nil {
		return err
	}
	targets, err := a.targets(args, creds)
	if err != nil {
		return err
	}
	e, err := a.engine(cmd.Context(), engine.WithDiffOptions(diff.Options{
		ForceSecrets:  planForceSecrets,
		ForceWebhooks: planForceWebhooks,
		UpdateFilter:  filter,
	}))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	report := e.Plan(cmd.Context(), targets)
	for _, res := range report.Results {
		renderWarnings(out, res)
		renderFindings(out, res.Findings)
		if res.Status == engine.StatusOK || res.Changed() {
			renderPlan(out, res, false)
		}
	}

	renderErrors(out, report)
	renderSummary(out, report, false)
	return report.Err()
}
