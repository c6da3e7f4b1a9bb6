package fuzzy

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	fzf "github.com/junegunn/fzf/src"
)

// ErrCancelled is returned when the user leaves the finder without choosing
var ErrCancelled = errors.New("selection cancelled")

const separator = "  │  "

// Option represents a selectable option in the fuzzy finder
type Option struct {
	Value       string
	Description string
}

func (o Option) display() string {
	if o.Description == "" {
		return o.Value
	}
	return o.Value + separator + o.Description
}

// Runner runs fzf. It is swapped in tests.
type Runner interface {
	Run(opts *fzf.Options) (int, error)
}

type fzfRunner struct{}

func (fzfRunner) Run(opts *fzf.Options) (int, error) {
	return fzf.Run(opts)
}

// Finder picks one option, through fzf when it can run and through a
// numbered list otherwise
type Finder struct {
	prompt  string
	options []Option
	runner  Runner
	in      io.Reader
	out     io.Writer
}

// New creates a finder reading standard input and prompting on standard error
func New(prompt string, options []Option) *Finder {
	return &Finder{
		prompt:  prompt,
		options: append([]Option(nil), options...),
		runner:  fzfRunner{},
		in:      os.Stdin,
		out:     os.Stderr,
	}
}

// NewWithRunner creates a finder with a custom runner and fallback streams
func NewWithRunner(prompt string, options []Option, runner Runner, in io.Reader, out io.Writer) *Finder {
	f := New(prompt, options)
	f.runner = runner
	f.in = in
	f.out = out
	return f
}

// Select returns the value of the chosen option
func (f *Finder) Select() (string, error) {
	if len(f.options) == 0 {
		return "", fmt.Errorf("no options available")
	}

	opts, err := fzf.ParseOptions(true, []string{
		"--prompt=" + f.prompt + " ",
		"--height=10",
		"--layout=default",
		"--no-multi",
		"--cycle",
		"--clear",
		"--extended",
		"--tiebreak=length",
		"--no-mouse",
		"--border=none",
	})
	if err != nil {
		return "", fmt.Errorf("failed to parse fzf options: %w", err)
	}

	input := make(chan string, len(f.options))
	for _, o := range f.options {
		input <- o.display()
	}
	close(input)
	output := make(chan string, len(f.options))
	opts.Input = input
	opts.Output = output

	code, err := f.runner.Run(opts)
	if err != nil {
		return f.fallbackSelect()
	}
	if code != fzf.ExitOk {
		return "", ErrCancelled
	}

	select {
	case selected := <-output:
		value, _, _ := strings.Cut(strings.TrimSpace(selected), separator)
		return strings.TrimSpace(value), nil
	default:
		return "", ErrCancelled
	}
}

// fallbackSelect lists the options and accepts a number or a filter
func (f *Finder) fallbackSelect() (string, error) {
	reader := bufio.NewReader(f.in)
	options := f.options

	for {
		fmt.Fprintln(f.out, f.prompt)
		fmt.Fprintln(f.out, strings.Repeat("-", len(f.prompt)))
		for i, option := range options {
			fmt.Fprintf(f.out, "%d. %s\n", i+1, strings.ReplaceAll(option.display(), separator, " - "))
		}
		fmt.Fprintf(f.out, "\nSelect option (1-%d) or type to filter: ", len(options))

		input, err := reader.ReadString('\n')
		input = strings.TrimSpace(input)
		if err != nil && input == "" {
			if errors.Is(err, io.EOF) {
				return "", ErrCancelled
			}
			return "", fmt.Errorf("failed to read input: %w", err)
		}
		if input == "" {
			options = f.options
			continue
		}

		if selection, err := strconv.Atoi(input); err == nil {
			if selection >= 1 && selection <= len(options) {
				return options[selection-1].Value, nil
			}
			fmt.Fprintf(f.out, "Selection %d is out of range (1-%d)\n\n", selection, len(options))
			continue
		}

		filtered := filterOptions(f.options, input)
		switch len(filtered) {
		case 0:
			fmt.Fprintf(f.out, "No options match filter: %s\n\n", input)
		case 1:
			fmt.Fprintf(f.out, "Auto-selecting: %s\n", filtered[0].Value)
			return filtered[0].Value, nil
		default:
			options = filtered
		}
	}
}

// filterOptions keeps the options whose value or description contains filter
func filterOptions(options []Option, filter string) []Option {
	filter = strings.ToLower(filter)
	var filtered []Option
	for _, option := range options {
		if strings.Contains(strings.ToLower(option.Value), filter) ||
			strings.Contains(strings.ToLower(option.Description), filter) {
			filtered = append(filtered, option)
		}
	}
	return filtered
}
