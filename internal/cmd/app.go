package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"orgsync/internal/auth"
	"orgsync/pkg/config"
	"orgsync/pkg/engine"
	"orgsync/pkg/provider"
	"orgsync/pkg/telemetry"
	"orgsync/pkg/validate"
)

// app holds what every command builds from the settings file and the
// global flags
type app struct {
	settings *config.Settings
	logger   zerolog.Logger
	registry *prometheus.Registry
	metrics  *telemetry.Metrics
}

func newApp() (*app, error) {
	settings, err := loadSettings()
	if err != nil {
		return nil, err
	}

	level := settings.Log.Level
	if logLevel != "" {
		level = logLevel
	}
	format := settings.Log.Format
	if logFormat != "" {
		format = logFormat
	}
	logger, err := telemetry.NewLogger(os.Stderr, level, format)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	metrics, err := telemetry.NewMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	return &app{
		settings: settings,
		logger:   logger,
		registry: registry,
		metrics:  metrics,
	}, nil
}

func loadSettings() (*config.Settings, error) {
	if settingsPath != "" {
		return config.LoadSettingsFromPath(settingsPath)
	}
	return config.LoadSettings()
}

// finish writes the run's metrics when asked to
func (a *app) finish() {
	if metricsFile == "" {
		return
	}
	if err := prometheus.WriteToTextfile(metricsFile, a.registry); err != nil {
		a.logger.Warn().Err(err).Str("path", metricsFile).Msg("Failed to write metrics")
	}
}

func (a *app) provider() *provider.Provider {
	opts := []provider.Option{
		provider.WithPool(provider.NewPool(a.settings.PoolConfig())),
		provider.WithLogger(a.logger),
		provider.WithMetrics(a.metrics),
	}
	if a.settings.API.DisableWeb {
		opts = append(opts, provider.WithWebClient(nil))
	}
	return provider.New(a.settings.ProviderConfig(), opts...)
}

func (a *app) validator(ctx context.Context) (*validate.Validator, error) {
	opts := []validate.Option{validate.WithLogger(a.logger)}
	if dir := a.settings.Resolve(a.settings.PolicyDir); dir != "" {
		policies, err := validate.LoadPolicies(ctx, dir)
		if err != nil {
			return nil, err
		}
		a.logger.Debug().Int("policies", len(policies)).Str("dir", dir).Msg("Loaded custom policies")
		opts = append(opts, validate.WithPolicies(policies...))
	}
	return validate.New(opts...), nil
}

func (a *app) engine(ctx context.Context, opts ...engine.Option) (*engine.Engine, error) {
	v, err := a.validator(ctx)
	if err != nil {
		return nil, err
	}

	all := []engine.Option{
		engine.WithValidator(v),
		engine.WithLogger(a.logger),
		engine.WithMetrics(a.metrics),
		engine.WithConcurrency(a.settings.Concurrency),
	}
	return engine.New(engine.FromProvider(a.provider()), append(all, opts...)...), nil
}

func (a *app) credentials() (*auth.Manager, error) {
	m, err := auth.NewManager(auth.Options{
		CredentialsFile: a.settings.Resolve(a.settings.CredentialsFile),
		Interactive:     !noPrompt,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load credentials: %w", err)
	}
	return m, nil
}

// targets loads the organizations named in args, or every configured one.
// A configuration that fails to load is carried in the target so the rest
// of the batch still runs.
func (a *app) targets(args []string, creds *auth.Manager) ([]engine.Target, error) {
	names := args
	if len(names) == 0 {
		for _, o := range a.settings.Organizations {
			names = append(names, o.Name)
		}
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("no organizations configured: add them to the settings file or run 'orgsync init'")
	}

	targets := make([]engine.Target, 0, len(names))
	for _, name := range names {
		org, ok := a.settings.Organization(name)
		if !ok {
			return nil, fmt.Errorf("organization %s is not listed in the settings file", name)
		}

		t := engine.Target{Org: org.Name}
		t.Desired, t.LoadErr = config.LoadOrganization(a.settings.Resolve(org.Config))
		if creds != nil {
			t.Credentials = creds.For(org.Name)
		}
		targets = append(targets, t)
	}
	return targets, nil
}
