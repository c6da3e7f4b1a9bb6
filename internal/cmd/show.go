package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"orgsync/pkg/model"
)

var showCmd = &cobra.Command{
	Use:   "show [organization]",
	Short: "Print the live state of an organization as configuration",
	Long: `Show reads the live state of an organization from GitHub and prints it in
the configuration format. The output is a starting point for a new
configuration file. Secret values cannot be read and are left out.

Without an argument the organization is picked from the settings file.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runShow,
}

func runShow(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.finish()

	creds, err := a.credentials()
	if err != nil {
		return err
	}
	e, err := a.engine(cmd.Context())
	if err != nil {
		return err
	}

	org, err := organizationArg(a.settings, args)
	if err != nil {
		return err
	}
	live, warnings, err := e.Fetch(cmd.Context(), org, creds.For(org))
	if err != nil {
		return err
	}
	for _, w := range warnings {
		fmt.Fprintf(cmd.ErrOrStderr(), "⚠️  %s\n", w.String())
	}

	data, err := yaml.Marshal(model.ToConfig(live))
	if err != nil {
		return fmt.Errorf("failed to encode organization: %w", err)
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}
