package integration

import (
	"bytes"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

func getProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return "../.."
	}
	// Walk up until we find go.mod
	for dir != "/" {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		dir = filepath.Dir(dir)
	}
	return "../.."
}

func getBinaryPath(t *testing.T) string {
	// Use pre-built binary from CI or build locally
	binaryPath := os.Getenv("ORGSYNC_BINARY")
	if binaryPath == "" {
		binaryPath = filepath.Join(t.TempDir(), "orgsync-test")
		buildCmd := exec.Command("go", "build", "-o", binaryPath, "./cmd/orgsync")
		buildCmd.Dir = getProjectRoot()
		var buildOut bytes.Buffer
		buildCmd.Stdout = &buildOut
		buildCmd.Stderr = &buildOut
		if err := buildCmd.Run(); err != nil {
			t.Fatalf("Failed to build binary: %v\nOutput: %s", err, buildOut.String())
		}
	} else if !filepath.IsAbs(binaryPath) {
		binaryPath = filepath.Join(getProjectRoot(), binaryPath)
	}

	return binaryPath
}

// runBinary runs orgsync with an isolated home directory
func runBinary(t *testing.T, binaryPath, home string, args ...string) (string, error) {
	t.Helper()
	cmd := exec.Command(binaryPath, args...)
	cmd.Env = append(os.Environ(),
		"HOME="+home,
		"ORGSYNC_CONFIG=",
		"GITHUB_TOKEN=",
		"ORGSYNC_TOKEN=",
	)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return out.String(), err
}

func TestCLIIntegration(t *testing.T) {
	binaryPath := getBinaryPath(t)
	home := t.TempDir()

	tests := []struct {
		name     string
		args     []string
		expected string
	}{
		{
			name:     "no arguments (shows help)",
			args:     []string{},
			expected: "orgsync",
		},
		{
			name:     "help command",
			args:     []string{"--help"},
			expected: "orgsync",
		},
		{
			name:     "auth help",
			args:     []string{"auth", "--help"},
			expected: "login",
		},
		{
			name:     "plan help",
			args:     []string{"plan", "--help"},
			expected: "--force-secrets",
		},
		{
			name:     "apply help",
			args:     []string{"apply", "--help"},
			expected: "--dry-run",
		},
		{
			name:     "init help",
			args:     []string{"init", "--help"},
			expected: "init",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			output, err := runBinary(t, binaryPath, home, tt.args...)
			if err != nil {
				t.Fatalf("Command failed: %v\n%s", err, output)
			}
			if !strings.Contains(output, tt.expected) {
				t.Errorf("Expected output to contain '%s', got: %s", tt.expected, output)
			}
		})
	}
}
