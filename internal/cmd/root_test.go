package cmd

import (
	"bytes"
	"testing"
)

// executeCommand runs the root command with args and returns its output
func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetIn(new(bytes.Buffer))
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		settingsPath = ""
	})

	err := rootCmd.Execute()
	return buf.String(), err
}

func TestRootCommand(t *testing.T) {
	if rootCmd.Use != "orgsync" {
		t.Errorf("Expected Use = orgsync, got %s", rootCmd.Use)
	}

	if rootCmd.Short != "Reconcile GitHub organizations with declarative configuration" {
		t.Errorf("Unexpected Short description: %s", rootCmd.Short)
	}

	found := map[string]bool{}
	for _, cmd := range rootCmd.Commands() {
		found[cmd.Name()] = true
	}
	for _, name := range []string{"init", "auth", "validate", "plan", "apply", "show"} {
		if !found[name] {
			t.Errorf("%s command not found in root command", name)
		}
	}
}

func TestRootCommandHelp(t *testing.T) {
	output, err := executeCommand(t, "--help")
	if err != nil {
		t.Fatalf("Failed to execute help command: %v", err)
	}

	for _, want := range []string{"orgsync", "validate", "plan", "apply", "--metrics-file", "--no-prompt"} {
		if !bytes.Contains([]byte(output), []byte(want)) {
			t.Errorf("Help output doesn't contain %q", want)
		}
	}
}

func TestApplyCommandFlags(t *testing.T) {
	for _, name := range []string{"dry-run", "delete", "force-secrets", "force-webhooks", "update-filter"} {
		if applyCmd.Flags().Lookup(name) == nil {
			t.Errorf("apply command is missing --%s", name)
		}
	}
	for _, name := range []string{"force-secrets", "force-webhooks", "update-filter"} {
		if planCmd.Flags().Lookup(name) == nil {
			t.Errorf("plan command is missing --%s", name)
		}
	}
}

func TestApplyInvalidUpdateFilter(t *testing.T) {
	t.Cleanup(func() { applyUpdateFilter = "" })

	_, err := executeCommand(t, "apply", "--update-filter", "[unclosed")
	if err == nil {
		t.Fatal("Expected an invalid filter to fail")
	}
	if !bytes.Contains([]byte(err.Error()), []byte("invalid update filter")) {
		t.Errorf("Unexpected error: %v", err)
	}
}
