package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/go-github/v66/github"
	"github.com/rs/zerolog"
	"github.com/shurcooL/githubv4"
	"golang.org/x/oauth2"

	"orgsync/pkg/model"
	"orgsync/pkg/telemetry"
)

// Credentials supplies the secrets needed to talk to the platform for one
// organization. Every accessor may fail, for example when a prompt is
// aborted.
type Credentials interface {
	Token() (string, error)
	Username() (string, error)
	Password() (string, error)
	OTP() (string, error)
}

// Config holds the endpoints and tuning of a Provider
type Config struct {
	// BaseURL is the REST API root. Empty means the public platform.
	BaseURL string
	// UploadURL defaults to BaseURL
	UploadURL string
	// GraphQLURL is derived from BaseURL when empty
	GraphQLURL string
	// WebURL is the root of the web interface used for UI-only settings
	WebURL string
	// RequestTimeout bounds a single HTTP round trip. Zero disables it.
	RequestTimeout time.Duration
	Retry          RetryConfig
}

// DefaultConfig returns the configuration for the public platform
func DefaultConfig() Config {
	return Config{
		WebURL:         "https://github.com",
		RequestTimeout: 30 * time.Second,
		Retry:          DefaultRetryConfig(),
	}
}

// Warning reports a degraded read. The live tree is still usable but the
// fields of the failing source may be stale or missing.
type Warning struct {
	Org     string
	Source  model.Source
	Message string
	Err     error
}

func (w Warning) String() string {
	if w.Err != nil {
		return fmt.Sprintf("%s (%s): %s: %v", w.Org, w.Source, w.Message, w.Err)
	}
	return fmt.Sprintf("%s (%s): %s", w.Org, w.Source, w.Message)
}

// Provider reads and writes organization state through the REST API, the
// graph API and the web interface. Its pool and cache are shared by every
// session it opens.
type Provider struct {
	cfg       Config
	pool      *Pool
	cache     *Cache
	metrics   *telemetry.Metrics
	logger    zerolog.Logger
	transport http.RoundTripper
	web       WebClientFactory
	sleep     sleepFunc
}

// Option configures a Provider
type Option func(*Provider)

// WithPool shares an existing pool
func WithPool(pool *Pool) Option {
	return func(p *Provider) { p.pool = pool }
}

// WithCache shares an existing response cache. A nil cache disables caching.
func WithCache(cache *Cache) Option {
	return func(p *Provider) { p.cache = cache }
}

// WithMetrics records request metrics
func WithMetrics(m *telemetry.Metrics) Option {
	return func(p *Provider) { p.metrics = m }
}

// WithLogger sets the provider logger
func WithLogger(logger zerolog.Logger) Option {
	return func(p *Provider) { p.logger = telemetry.Component(logger, "provider") }
}

// WithTransport replaces the innermost HTTP transport
func WithTransport(rt http.RoundTripper) Option {
	return func(p *Provider) { p.transport = rt }
}

// WithWebClient sets how web sessions are created. A nil factory disables
// the web interface; its fields are then reported as unavailable.
func WithWebClient(f WebClientFactory) Option {
	return func(p *Provider) { p.web = f }
}

// New creates a provider
func New(cfg Config, opts ...Option) *Provider {
	p := &Provider{
		cfg:       cfg,
		pool:      NewPool(DefaultPoolConfig()),
		cache:     NewCache(),
		logger:    zerolog.Nop(),
		transport: http.DefaultTransport,
		web:       NewChromeWebClient,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.cfg.Retry.MaxAttempts == 0 {
		p.cfg.Retry = DefaultRetryConfig()
	}
	return p
}

// Pool returns the worker pool shared by the provider's sessions
func (p *Provider) Pool() *Pool { return p.pool }

// Open starts a session for one organization. Only the API token is
// resolved here; web credentials are requested on first use.
func (p *Provider) Open(ctx context.Context, org string, creds Credentials) (*Session, error) {
	token, err := creds.Token()
	if err != nil {
		return nil, &Error{Type: ErrorTypeAuth, Message: "no API token available", Cause: err, Resource: org}
	}
	if token == "" {
		return nil, &Error{Type: ErrorTypeAuth, Message: "empty API token", Resource: org}
	}

	restClient, err := p.restClient(token)
	if err != nil {
		return nil, err
	}

	return &Session{
		org:    org,
		p:      p,
		creds:  creds,
		rest:   restClient,
		gql:    p.graphQLClient(token),
		logger: telemetry.WithOrg(p.logger, org),
	}, nil
}

// FetchLive opens a session, reads the organization's live state and
// closes the session again
func (p *Provider) FetchLive(ctx context.Context, org string, creds Credentials) (*model.Object, []Warning, error) {
	s, err := p.Open(ctx, org, creds)
	if err != nil {
		return nil, nil, err
	}
	defer s.Close()
	return s.FetchLive(ctx)
}

func (p *Provider) httpClient(token, backend string) *http.Client {
	base := p.transport
	if p.cfg.RequestTimeout > 0 {
		base = &timeoutTransport{timeout: p.cfg.RequestTimeout, base: base}
	}
	var rt http.RoundTripper = &poolTransport{pool: p.pool, backend: backend, metrics: p.metrics, base: base}
	if backend == backendREST {
		rt = &cacheTransport{cache: p.cache, metrics: p.metrics, base: rt}
	}
	return &http.Client{
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}),
			Base:   rt,
		},
	}
}

func (p *Provider) restClient(token string) (*github.Client, error) {
	client := github.NewClient(p.httpClient(token, backendREST))
	if p.cfg.BaseURL == "" {
		return client, nil
	}
	upload := p.cfg.UploadURL
	if upload == "" {
		upload = p.cfg.BaseURL
	}
	client, err := client.WithEnterpriseURLs(p.cfg.BaseURL, upload)
	if err != nil {
		return nil, fmt.Errorf("failed to configure API URL: %w", err)
	}
	return client, nil
}

func (p *Provider) graphQLClient(token string) *githubv4.Client {
	hc := p.httpClient(token, backendGraphQL)
	switch {
	case p.cfg.GraphQLURL != "":
		return githubv4.NewEnterpriseClient(p.cfg.GraphQLURL, hc)
	case p.cfg.BaseURL != "":
		// https://ghe.example.com/api/v3 serves its graph API at /api/graphql
		base := strings.TrimSuffix(p.cfg.BaseURL, "/")
		base = strings.TrimSuffix(base, "/v3")
		return githubv4.NewEnterpriseClient(base+"/graphql", hc)
	default:
		return githubv4.NewClient(hc)
	}
}

const (
	backendREST    = "rest"
	backendGraphQL = "graphql"
	backendWeb     = "web"
)

// timeoutTransport bounds every round trip, including reading the body
type timeoutTransport struct {
	timeout time.Duration
	base    http.RoundTripper
}

func (t *timeoutTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx, cancel := context.WithTimeout(req.Context(), t.timeout)
	resp, err := t.base.RoundTrip(req.WithContext(ctx))
	if err != nil {
		cancel()
		return nil, err
	}
	resp.Body = &cancelBody{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

type cancelBody struct {
	io.ReadCloser
	cancel context.CancelFunc
	once   sync.Once
}

func (b *cancelBody) Close() error {
	err := b.ReadCloser.Close()
	b.once.Do(b.cancel)
	return err
}
