package auth

import (
	"errors"
	"testing"
)

type mapSource map[string]string

func (m mapSource) Lookup(org string, kind Kind) (string, error) {
	if v, ok := m[org+"/"+string(kind)]; ok {
		return v, nil
	}
	return "", ErrNotFound
}

type failingSource struct{ err error }

func (f failingSource) Lookup(string, Kind) (string, error) { return "", f.err }

func envSource(env map[string]string) *EnvSource {
	return &EnvSource{getenv: func(name string) string { return env[name] }}
}

func TestEnvName(t *testing.T) {
	tests := []struct {
		org  string
		kind Kind
		want string
	}{
		{"acme", KindToken, "ORGSYNC_ACME_TOKEN"},
		{"acme-corp", KindPassword, "ORGSYNC_ACME_CORP_PASSWORD"},
		{"my.org", KindOTP, "ORGSYNC_MY_ORG_OTP"},
		{"", KindUsername, "ORGSYNC_USERNAME"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := envName(tt.org, tt.kind); got != tt.want {
				t.Errorf("envName(%q, %q) = %q, want %q", tt.org, tt.kind, got, tt.want)
			}
		})
	}
}

func TestEnvSource_Lookup(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		kind    Kind
		want    string
		wantErr error
	}{
		{
			name: "organization variable wins",
			env:  map[string]string{"ORGSYNC_ACME_TOKEN": "org", "ORGSYNC_TOKEN": "shared"},
			kind: KindToken,
			want: "org",
		},
		{
			name: "shared variable",
			env:  map[string]string{"ORGSYNC_TOKEN": " shared\n"},
			kind: KindToken,
			want: "shared",
		},
		{
			name: "github token fallback",
			env:  map[string]string{"GITHUB_TOKEN": "gh"},
			kind: KindToken,
			want: "gh",
		},
		{
			name:    "github token is only used for tokens",
			env:     map[string]string{"GITHUB_TOKEN": "gh"},
			kind:    KindPassword,
			wantErr: ErrNotFound,
		},
		{
			name:    "nothing set",
			env:     map[string]string{},
			kind:    KindUsername,
			wantErr: ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := envSource(tt.env).Lookup("acme", tt.kind)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Lookup() error = %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Lookup() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestChain_Lookup(t *testing.T) {
	first := mapSource{"acme/token": "first"}
	second := mapSource{"acme/token": "second", "acme/username": "admin"}
	chain := Chain{first, second}

	if got, _ := chain.Lookup("acme", KindToken); got != "first" {
		t.Errorf("Expected the first source to win, got %q", got)
	}
	if got, _ := chain.Lookup("acme", KindUsername); got != "admin" {
		t.Errorf("Expected fallthrough to the second source, got %q", got)
	}
	if _, err := chain.Lookup("acme", KindOTP); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	boom := errors.New("boom")
	broken := Chain{failingSource{err: boom}, second}
	if _, err := broken.Lookup("acme", KindToken); !errors.Is(err, boom) {
		t.Errorf("Expected the source error to stop the chain, got %v", err)
	}
}

func TestCredentials(t *testing.T) {
	creds := For("acme", mapSource{"acme/token": "t0ken", "acme/username": "admin"})

	token, err := creds.Token()
	if err != nil || token != "t0ken" {
		t.Errorf("Token() = %q, %v", token, err)
	}
	username, err := creds.Username()
	if err != nil || username != "admin" {
		t.Errorf("Username() = %q, %v", username, err)
	}

	_, err = creds.Password()
	var authErr *Error
	if !errors.As(err, &authErr) {
		t.Fatalf("Expected *Error, got %T", err)
	}
	if authErr.Type != ErrorTypeMissingCredentials {
		t.Errorf("Expected missing credentials, got %s", authErr.Type)
	}
	if authErr.Message != "no password configured for organization acme" {
		t.Errorf("Unexpected message %q", authErr.Message)
	}
	if !errors.Is(err, ErrNotFound) {
		t.Error("Expected the error to wrap ErrNotFound")
	}
	if authErr.GetTroubleshootingMessage() == "" {
		t.Error("Expected troubleshooting steps")
	}
}

func TestManager(t *testing.T) {
	t.Setenv("ORGSYNC_GLOBEX_TOKEN", "from-env")

	m, err := NewManager(Options{})
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	token, err := m.For("globex").Token()
	if err != nil || token != "from-env" {
		t.Errorf("Token() = %q, %v", token, err)
	}

	m = NewManagerWithSource(mapSource{"acme/otp": "123456"})
	if otp, _ := m.For("acme").OTP(); otp != "123456" {
		t.Errorf("OTP() = %q", otp)
	}
}
