package auth

import (
	"errors"
	"os"
	"strings"
	"unicode"

	"orgsync/pkg/provider"
)

// Kind names one credential an organization may need
type Kind string

const (
	KindToken    Kind = "token"
	KindUsername Kind = "username"
	KindPassword Kind = "password"
	KindOTP      Kind = "otp"
)

// Source looks up credentials. It returns ErrNotFound when it has no value.
type Source interface {
	Lookup(org string, kind Kind) (string, error)
}

// EnvSource reads credentials from environment variables.
// ORGSYNC_<ORG>_<KIND> takes precedence over ORGSYNC_<KIND>, and
// GITHUB_TOKEN is the last resort for the token.
type EnvSource struct {
	getenv func(string) string
}

// NewEnvSource creates a source reading the process environment
func NewEnvSource() *EnvSource {
	return &EnvSource{getenv: os.Getenv}
}

// Lookup implements Source
func (s *EnvSource) Lookup(org string, kind Kind) (string, error) {
	names := []string{envName(org, kind), envName("", kind)}
	if kind == KindToken {
		names = append(names, "GITHUB_TOKEN")
	}
	for _, name := range names {
		if v := strings.TrimSpace(s.getenv(name)); v != "" {
			return v, nil
		}
	}
	return "", ErrNotFound
}

// envName builds the variable name for a credential. Characters that
// cannot appear in a variable name become underscores.
func envName(org string, kind Kind) string {
	parts := []string{"ORGSYNC"}
	if org != "" {
		parts = append(parts, strings.Map(func(r rune) rune {
			if r <= unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
				return unicode.ToUpper(r)
			}
			return '_'
		}, org))
	}
	parts = append(parts, strings.ToUpper(string(kind)))
	return strings.Join(parts, "_")
}

// Chain tries each source in order and returns the first value found
type Chain []Source

// Lookup implements Source. Errors other than ErrNotFound stop the chain.
func (c Chain) Lookup(org string, kind Kind) (string, error) {
	for _, s := range c {
		v, err := s.Lookup(org, kind)
		if err == nil {
			return v, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return "", err
		}
	}
	return "", ErrNotFound
}

// Credentials are the credentials of one organization, resolved lazily
// from a source
type Credentials struct {
	org    string
	source Source
}

var _ provider.Credentials = (*Credentials)(nil)

// For returns the credentials of org as read from source
func For(org string, source Source) *Credentials {
	return &Credentials{org: org, source: source}
}

func (c *Credentials) lookup(kind Kind) (string, error) {
	v, err := c.source.Lookup(c.org, kind)
	if errors.Is(err, ErrNotFound) {
		return "", missingCredential(c.org, kind)
	}
	return v, err
}

// Token returns the API token
func (c *Credentials) Token() (string, error) { return c.lookup(KindToken) }

// Username returns the web interface login
func (c *Credentials) Username() (string, error) { return c.lookup(KindUsername) }

// Password returns the web interface password
func (c *Credentials) Password() (string, error) { return c.lookup(KindPassword) }

// OTP returns a one-time code for the web interface login
func (c *Credentials) OTP() (string, error) { return c.lookup(KindOTP) }
