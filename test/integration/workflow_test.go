//go:build integration
// +build integration

package integration

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestInitAndValidate(t *testing.T) {
	binaryPath := getBinaryPath(t)
	home := t.TempDir()

	output, err := runBinary(t, binaryPath, home, "init", "acme")
	if err != nil {
		t.Fatalf("init failed: %v\n%s", err, output)
	}

	settings := filepath.Join(home, ".orgsync", "config.yaml")
	if _, err := os.Stat(settings); err != nil {
		t.Fatalf("Expected settings at %s: %v", settings, err)
	}
	orgConfig := filepath.Join(home, ".orgsync", "orgs", "acme.yaml")
	if _, err := os.Stat(orgConfig); err != nil {
		t.Fatalf("Expected organization config at %s: %v", orgConfig, err)
	}

	output, err = runBinary(t, binaryPath, home, "validate")
	if err != nil {
		t.Fatalf("validate failed: %v\n%s", err, output)
	}
	if !strings.Contains(output, "✓ acme: configuration is valid") {
		t.Errorf("Unexpected validate output:\n%s", output)
	}

	if err := os.WriteFile(orgConfig, []byte("repositories:\n  - name: \"bad name!\"\n"), 0644); err != nil {
		t.Fatalf("Failed to rewrite organization config: %v", err)
	}
	output, err = runBinary(t, binaryPath, home, "validate")
	if err == nil {
		t.Fatalf("Expected validate to fail:\n%s", output)
	}
	if !strings.Contains(output, "❌ acme: invalid") {
		t.Errorf("Unexpected validate output:\n%s", output)
	}
}

func TestPlanWithoutCredentials(t *testing.T) {
	binaryPath := getBinaryPath(t)
	home := t.TempDir()

	if output, err := runBinary(t, binaryPath, home, "init", "acme"); err != nil {
		t.Fatalf("init failed: %v\n%s", err, output)
	}

	output, err := runBinary(t, binaryPath, home, "--no-prompt", "plan")
	if err == nil {
		t.Fatalf("Expected plan to fail without credentials:\n%s", output)
	}
	for _, want := range []string{"📊 Summary:", "acme", "1 failed"} {
		if !strings.Contains(output, want) {
			t.Errorf("Expected output to contain %q:\n%s", want, output)
		}
	}
}
