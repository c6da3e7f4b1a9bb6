package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"orgsync/internal/auth"
)

var authWeb bool

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Authentication commands",
	Long: `Commands for managing GitHub credentials.

Credentials are looked up per organization in the environment
(ORGSYNC_<ORG>_TOKEN, ORGSYNC_TOKEN, GITHUB_TOKEN), then in the credentials
file, then by prompting on the terminal.`,
}

var authLoginCmd = &cobra.Command{
	Use:   "login [organization]",
	Short: "Store credentials for an organization",
	Long: `Prompt for an API token and store it in the credentials file.

With --web the username and password of an organization owner are stored
too. They are needed for settings GitHub only exposes in its web interface.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAuthLogin,
}

var authStatusCmd = &cobra.Command{
	Use:   "status [organization...]",
	Short: "Show which credentials are available",
	RunE:  runAuthStatus,
}

func init() {
	authLoginCmd.Flags().BoolVar(&authWeb, "web", false, "Also store web interface credentials")

	authCmd.AddCommand(authLoginCmd)
	authCmd.AddCommand(authStatusCmd)
}

func runAuthLogin(cmd *cobra.Command, args []string) error {
	settings, err := loadSettings()
	if err != nil {
		return err
	}
	path := settings.Resolve(settings.CredentialsFile)
	if path == "" {
		return fmt.Errorf("no credentials file configured")
	}

	org, err := organizationArg(settings, args)
	if err != nil {
		return err
	}
	kinds := []auth.Kind{auth.KindToken}
	if authWeb {
		kinds = append(kinds, auth.KindUsername, auth.KindPassword)
	}

	return login(cmd, auth.NewPromptSource(), path, org, kinds)
}

func login(cmd *cobra.Command, prompt auth.Source, path, org string, kinds []auth.Kind) error {
	values := make(map[auth.Kind]string, len(kinds))
	for _, kind := range kinds {
		v, err := prompt.Lookup(org, kind)
		if errors.Is(err, auth.ErrNotFound) {
			return fmt.Errorf("no %s entered for %s", kind, org)
		}
		if err != nil {
			return err
		}
		values[kind] = v
	}

	if err := auth.Save(path, org, values); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "✅ Credentials for %s saved to %s\n", org, path)
	return nil
}

func runAuthStatus(cmd *cobra.Command, args []string) error {
	settings, err := loadSettings()
	if err != nil {
		return err
	}
	m, err := auth.NewManager(auth.Options{CredentialsFile: settings.Resolve(settings.CredentialsFile)})
	if err != nil {
		return err
	}

	orgs := args
	if len(orgs) == 0 {
		for _, o := range settings.Organizations {
			orgs = append(orgs, o.Name)
		}
	}

	out := cmd.OutOrStdout()
	for _, org := range orgs {
		creds := m.For(org)
		_, tokenErr := creds.Token()
		_, userErr := creds.Username()
		_, passErr := creds.Password()

		switch {
		case tokenErr != nil:
			fmt.Fprintf(out, "❌ %s: no API token\n", org)
		case userErr != nil || passErr != nil:
			fmt.Fprintf(out, "✓ %s: API token (no web credentials)\n", org)
		default:
			fmt.Fprintf(out, "✓ %s: API token and web credentials\n", org)
		}
	}
	return nil
}
