package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"orgsync/pkg/model"
	"orgsync/pkg/provider"
)

// Settings represents the orgsync tool configuration
type Settings struct {
	// Concurrency is the number of organizations processed at once
	Concurrency int `yaml:"concurrency" validate:"min=1,max=64"`
	// Workers is the number of API calls in flight across all organizations
	Workers int `yaml:"workers" validate:"min=1,max=100"`
	// Retries is the number of attempts of a transient failing call
	Retries        int           `yaml:"retries" validate:"min=1,max=10"`
	RequestTimeout time.Duration `yaml:"request_timeout" validate:"min=0"`

	API API `yaml:"api"`
	Log Log `yaml:"log"`

	CredentialsFile string `yaml:"credentials_file,omitempty"`
	PolicyDir       string `yaml:"policy_dir,omitempty"`

	Organizations []Organization `yaml:"organizations" validate:"unique=Name,dive"`

	dir string
}

// API holds the platform endpoints. Empty values select the public platform.
type API struct {
	BaseURL    string `yaml:"base_url,omitempty" validate:"omitempty,url"`
	UploadURL  string `yaml:"upload_url,omitempty" validate:"omitempty,url"`
	GraphQLURL string `yaml:"graphql_url,omitempty" validate:"omitempty,url"`
	WebURL     string `yaml:"web_url,omitempty" validate:"omitempty,url"`
	// DisableWeb skips settings only reachable through the web interface
	DisableWeb bool `yaml:"disable_web,omitempty"`
}

// Log configures the root logger
type Log struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=trace debug info warn error"`
	Format string `yaml:"format" validate:"omitempty,oneof=console json"`
}

// Organization names one managed organization and its configuration file
type Organization struct {
	Name   string `yaml:"name" validate:"required"`
	Config string `yaml:"config" validate:"required"`
}

// DefaultSettings returns the settings used when no file exists
func DefaultSettings() *Settings {
	return &Settings{
		Concurrency:     4,
		Workers:         8,
		Retries:         3,
		RequestTimeout:  30 * time.Second,
		CredentialsFile: "credentials",
		Log: Log{
			Level:  "info",
			Format: "console",
		},
	}
}

// LoadSettings loads settings from the default location
func LoadSettings() (*Settings, error) {
	path, err := GetSettingsPath()
	if err != nil {
		return nil, err
	}

	return LoadSettingsFromPath(path)
}

// LoadSettingsFromPath loads settings from a specific path. A missing file
// yields the defaults.
func LoadSettingsFromPath(path string) (*Settings, error) {
	settings := DefaultSettings()
	settings.dir = filepath.Dir(path)

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return settings, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read settings file: %w", err)
	}

	if err := yaml.Unmarshal(data, settings); err != nil {
		return nil, fmt.Errorf("failed to parse settings file: %w", err)
	}

	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings in %s: %w", path, err)
	}

	return settings, nil
}

// Save saves settings to the default location
func (s *Settings) Save() error {
	path, err := GetSettingsPath()
	if err != nil {
		return err
	}

	return s.SaveToPath(path)
}

// SaveToPath saves settings to a specific path
func (s *Settings) SaveToPath(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}

	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write settings file: %w", err)
	}

	return nil
}

// GetSettingsPath returns the settings file path. ORGSYNC_CONFIG overrides
// the default of ~/.orgsync/config.yaml.
func GetSettingsPath() (string, error) {
	if path := os.Getenv("ORGSYNC_CONFIG"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	return filepath.Join(homeDir, ".orgsync", "config.yaml"), nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the settings against their constraints
func (s *Settings) Validate() error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describeFieldError(fe))
	}
	return errors.New(strings.Join(msgs, "; "))
}

func describeFieldError(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), "Settings.")
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	case "url":
		return fmt.Sprintf("%s must be a URL", field)
	case "unique":
		return fmt.Sprintf("%s must not repeat %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed the %s check", field, fe.Tag())
	}
}

// Organization returns the entry for name, compared case-insensitively
func (s *Settings) Organization(name string) (Organization, bool) {
	for _, o := range s.Organizations {
		if strings.EqualFold(o.Name, name) {
			return o, true
		}
	}
	return Organization{}, false
}

// Resolve turns a path from the settings file into a usable one. "~/" is
// expanded and relative paths are taken from the settings directory.
func (s *Settings) Resolve(path string) string {
	if path == "" {
		return ""
	}
	if rest, ok := strings.CutPrefix(path, "~/"); ok {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, rest)
		}
	}
	if filepath.IsAbs(path) || s.dir == "" {
		return path
	}
	return filepath.Join(s.dir, path)
}

// ProviderConfig returns the provider configuration described by s
func (s *Settings) ProviderConfig() provider.Config {
	cfg := provider.DefaultConfig()
	cfg.BaseURL = s.API.BaseURL
	cfg.UploadURL = s.API.UploadURL
	cfg.GraphQLURL = s.API.GraphQLURL
	if s.API.WebURL != "" {
		cfg.WebURL = s.API.WebURL
	}
	cfg.RequestTimeout = s.RequestTimeout
	cfg.Retry.MaxAttempts = s.Retries
	return cfg
}

// PoolConfig returns the worker pool configuration described by s
func (s *Settings) PoolConfig() provider.PoolConfig {
	cfg := provider.DefaultPoolConfig()
	cfg.Size = s.Workers
	return cfg
}

// LoadOrganization loads an organization's desired state from a YAML file
func LoadOrganization(path string) (*model.Object, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read organization config: %w", err)
	}

	return model.DecodeConfig(model.OrganizationSchema, path, data)
}
