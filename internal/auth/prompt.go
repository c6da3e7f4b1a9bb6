package auth

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

// PromptSource asks for credentials on the terminal. Answers other than
// one-time codes are remembered for the rest of the run. It finds nothing
// when standard input is not a terminal.
type PromptSource struct {
	mu         sync.Mutex
	fd         int
	reader     *bufio.Reader
	out        io.Writer
	isTerminal func(fd int) bool
	readSecret func(fd int) ([]byte, error)
	answers    map[string]string
}

// NewPromptSource creates a source prompting on standard error and reading
// standard input
func NewPromptSource() *PromptSource {
	return &PromptSource{
		fd:         int(os.Stdin.Fd()),
		reader:     bufio.NewReader(os.Stdin),
		out:        os.Stderr,
		isTerminal: term.IsTerminal,
		readSecret: term.ReadPassword,
		answers:    map[string]string{},
	}
}

var promptLabels = map[Kind]string{
	KindToken:    "API token",
	KindUsername: "Username",
	KindPassword: "Password",
	KindOTP:      "One-time code",
}

// Lookup implements Source. Prompts of concurrent callers do not interleave.
func (s *PromptSource) Lookup(org string, kind Kind) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isTerminal(s.fd) {
		return "", ErrNotFound
	}

	key := strings.ToLower(org) + "/" + string(kind)
	if v, ok := s.answers[key]; ok {
		return v, nil
	}

	fmt.Fprintf(s.out, "%s for %s: ", promptLabels[kind], org)

	var answer string
	if kind == KindUsername {
		line, err := s.reader.ReadString('\n')
		if err != nil && line == "" {
			return "", fmt.Errorf("failed to read %s: %w", kind, err)
		}
		answer = line
	} else {
		b, err := s.readSecret(s.fd)
		fmt.Fprintln(s.out)
		if err != nil {
			return "", fmt.Errorf("failed to read %s: %w", kind, err)
		}
		answer = string(b)
	}

	answer = strings.TrimSpace(answer)
	if answer == "" {
		return "", ErrNotFound
	}
	if kind != KindOTP {
		s.answers[key] = answer
	}
	return answer, nil
}
