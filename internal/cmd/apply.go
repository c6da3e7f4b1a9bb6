package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"orgsync/pkg/apply"
	"orgsync/pkg/diff"
	"orgsync/pkg/engine"
)

var (
	applyDryRun        bool
	applyDelete        bool
	applyForceSecrets  bool
	applyForceWebhooks bool
	applyUpdateFilter  string
)

var applyCmd = &cobra.Command{
	Use:   "apply [organization...]",
	Short: "Reconcile organizations with their configuration",
	Long: `Apply plans the named organizations, or every organization in the
settings file, and writes the changes to GitHub.

Resources that exist on GitHub but not in the configuration are only
removed with --delete. Use --dry-run to list the calls apply would make
without making them.

Organizations are processed independently: a failure in one does not stop
the others, and the command fails if any organization did not succeed.`,
	RunE: runApply,
}

func init() {
	applyCmd.Flags().BoolVar(&applyDryRun, "dry-run", false, "Show the calls that would be made without making them")
	applyCmd.Flags().BoolVar(&applyDelete, "delete", false, "Remove resources that are not in the configuration")
	applyCmd.Flags().BoolVar(&applyForceSecrets, "force-secrets", false, "Re-send secret values")
	applyCmd.Flags().BoolVar(&applyForceWebhooks, "force-webhooks", false, "Re-send webhook secrets")
	applyCmd.Flags().StringVar(&applyUpdateFilter, "update-filter", "", "Glob limiting forced updates to matching secret names and webhook URLs")
}

func runApply(cmd *cobra.Command, args []string) error {
	filter, err := diff.CompileFilter(applyUpdateFilter)
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
	e, err := a.engine(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if applyDryRun {
		fmt.Fprintf(out, "🔍 Dry-run mode: no changes will be made\n")
	}

	report := e.Apply(cmd.Context(), targets, apply.Options{
		DryRun:        applyDryRun,
		DeleteEnabled: applyDelete,
		ForceSecrets:  applyForceSecrets,
		ForceWebhooks: applyForceWebhooks,
		UpdateFilter:  filter,
	})

	for _, res := range report.Results {
		renderWarnings(out, res)
		renderFindings(out, res.Findings)
		if res.Status == engine.StatusInvalid {
			continue
		}
		renderPlan(out, res, applyDryRun)
		renderOutcomes(out, res)
		if res.Status == engine.StatusOK && res.Changed() && !applyDryRun {
			fmt.Fprintf(out, "\n✅ Successfully applied changes to %s\n", res.Org)
		}
	}

	renderErrors(out, report)
	renderSummary(out, report, true)
	return report.Err()
}
