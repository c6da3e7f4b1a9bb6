package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"orgsync/pkg/engine"
	"orgsync/pkg/validate"
)

var validateCmd = &cobra.Command{
	Use:   "validate [organization...]",
	Short: "Validate organization configuration without contacting GitHub",
	Long: `Validate loads the configuration of the named organizations, or of every
organization in the settings file, and checks it against the built-in rules
and any custom policies. No request is made to GitHub.`,
	RunE: runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.finish()

	targets, err := a.targets(args, nil)
	if err != nil {
		return err
	}
	e, err := a.engine(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "🔍 Validating %d organization(s)...\n", len(targets))

	report := e.Validate(cmd.Context(), targets)
	for _, res := range report.Results {
		if res.Status == engine.StatusOK {
			fmt.Fprintf(out, "\n✓ %s: configuration is valid", res.Org)
			if n := res.Findings.Count(validate.SeverityWarning); n > 0 {
				fmt.Fprintf(out, " (%d warning(s))", n)
			}
			fmt.Fprintln(out)
		} else {
			fmt.Fprintf(out, "\n❌ %s: %s\n", res.Org, res.Status)
			if len(res.Findings) == 0 && res.Err != nil {
				fmt.Fprintf(out, "  %v\n", res.Err)
			}
		}
		renderFindings(out, res.Findings)
	}

	if report.Failed() {
		return fmt.Errorf("configuration validation failed for %d organization(s)", len(report.Results)-report.Count(engine.StatusOK))
	}
	fmt.Fprintf(out, "\n✅ All configurations are valid\n")
	return nil
}
