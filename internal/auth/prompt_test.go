package auth

import (
	"bufio"
	"bytes"
	"errors"
	"strings"
	"testing"
)

func newTestPrompt(input string, secrets ...string) (*PromptSource, *bytes.Buffer, *int) {
	out := &bytes.Buffer{}
	calls := 0
	return &PromptSource{
		reader:     bufio.NewReader(strings.NewReader(input)),
		out:        out,
		isTerminal: func(int) bool { return true },
		readSecret: func(int) ([]byte, error) {
			if calls >= len(secrets) {
				return nil, errors.New("no more input")
			}
			s := secrets[calls]
			calls++
			return []byte(s), nil
		},
		answers: map[string]string{},
	}, out, &calls
}

func TestPromptSource_Username(t *testing.T) {
	p, out, _ := newTestPrompt("acme-admin\n")

	got, err := p.Lookup("acme", KindUsername)
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if got != "acme-admin" {
		t.Errorf("Lookup() = %q", got)
	}
	if !strings.Contains(out.String(), "Username for acme: ") {
		t.Errorf("Unexpected prompt %q", out.String())
	}

	again, err := p.Lookup("ACME", KindUsername)
	if err != nil || again != "acme-admin" {
		t.Errorf("Expected the remembered answer, got %q, %v", again, err)
	}
}

func TestPromptSource_SecretsAreRememberedExceptOTP(t *testing.T) {
	p, _, calls := newTestPrompt("", "hunter2", "111111", "222222")

	for i := 0; i < 2; i++ {
		if got, _ := p.Lookup("acme", KindPassword); got != "hunter2" {
			t.Fatalf("Lookup(password) = %q", got)
		}
	}
	first, _ := p.Lookup("acme", KindOTP)
	second, _ := p.Lookup("acme", KindOTP)
	if first != "111111" || second != "222222" {
		t.Errorf("Expected a fresh code per lookup, got %q and %q", first, second)
	}
	if *calls != 3 {
		t.Errorf("Expected 3 secret reads, got %d", *calls)
	}
}

func TestPromptSource_NotATerminal(t *testing.T) {
	p, out, _ := newTestPrompt("ignored\n")
	p.isTerminal = func(int) bool { return false }

	if _, err := p.Lookup("acme", KindUsername); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if out.Len() != 0 {
		t.Errorf("Expected no prompt, got %q", out.String())
	}
}

func TestPromptSource_EmptyAnswer(t *testing.T) {
	p, _, _ := newTestPrompt("\n", "  ")

	if _, err := p.Lookup("acme", KindUsername); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for an empty username, got %v", err)
	}
	if _, err := p.Lookup("acme", KindToken); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for an empty token, got %v", err)
	}
}

func TestPromptSource_ReadFailure(t *testing.T) {
	p, _, _ := newTestPrompt("")

	_, err := p.Lookup("acme", KindPassword)
	if err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("Expected a read error, got %v", err)
	}
	if !strings.Contains(err.Error(), "failed to read password") {
		t.Errorf("Unexpected error %v", err)
	}
}
