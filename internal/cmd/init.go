package cmd

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"orgsync/pkg/config"
)

var initCmd = &cobra.Command{
	Use:   "init <organization>",
	Short: "Initialize orgsync configuration",
	Long: `Create a default settings file managing one organization, along with a
starter configuration file for that organization.`,
	Args: cobra.ExactArgs(1),
	RunE: runInit,
}

const exampleOrganization = `# Desired state of the %[1]s organization.
# Run 'orgsync show %[1]s' to print the full live state in this format.
login: %[1]s
description: ""
default_repository_permission: read
members_can_create_public_repositories: false

# repositories:
#   - name: api
#     description: Public API
#     visibility: private
`

func runInit(cmd *cobra.Command, args []string) error {
	path := settingsPath
	if path == "" {
		var err error
		if path, err = config.GetSettingsPath(); err != nil {
			return fmt.Errorf("failed to get settings path: %w", err)
		}
	}

	out := cmd.OutOrStdout()

	// Check if settings already exist
	if _, err := os.Stat(path); err == nil {
		fmt.Fprintf(out, "⚠️  Settings file already exists at: %s\n", path)
		fmt.Fprint(out, "Do you want to overwrite it? (y/N): ")
		response, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if r := strings.TrimSpace(response); r != "y" && r != "Y" {
			fmt.Fprintln(out, "Configuration initialization cancelled.")
			return nil
		}
	}

	org := args[0]
	orgConfig := filepath.Join("orgs", org+".yaml")

	settings := config.DefaultSettings()
	settings.Organizations = []config.Organization{{Name: org, Config: orgConfig}}
	if err := settings.Validate(); err != nil {
		return err
	}
	if err := settings.SaveToPath(path); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	fmt.Fprintf(out, "✅ Settings file created at: %s\n", path)

	orgPath := filepath.Join(filepath.Dir(path), orgConfig)
	if _, err := os.Stat(orgPath); err == nil {
		fmt.Fprintf(out, "📝 Keeping existing organization configuration: %s\n", orgPath)
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(orgPath), 0755); err != nil {
		return fmt.Errorf("failed to create organization config directory: %w", err)
	}
	if err := os.WriteFile(orgPath, []byte(fmt.Sprintf(exampleOrganization, org)), 0644); err != nil {
		return fmt.Errorf("failed to write organization config: %w", err)
	}

	fmt.Fprintf(out, "✅ Organization configuration created at: %s\n", orgPath)
	fmt.Fprintf(out, "📝 Run 'orgsync auth login %s' to store an API token, then 'orgsync plan'.\n", org)
	return nil
}
