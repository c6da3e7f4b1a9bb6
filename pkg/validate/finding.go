package validate

import (
	"fmt"
	"strings"
)

// Severity classifies a finding
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityWarning:
		return "WARNING"
	case SeverityError:
		return "ERROR"
	default:
		return "INFO"
	}
}

// ParseSeverity accepts the lower or upper case severity names
func ParseSeverity(s string) (Severity, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "INFO":
		return SeverityInfo, nil
	case "WARNING", "WARN":
		return SeverityWarning, nil
	case "ERROR", "DENY":
		return SeverityError, nil
	default:
		return SeverityInfo, fmt.Errorf("unknown severity %q", s)
	}
}

// Finding is one validation result
type Finding struct {
	Severity    Severity
	ResourceKey string
	Message     string
}

func (f Finding) String() string {
	return fmt.Sprintf("%s %s: %s", f.Severity, f.ResourceKey, f.Message)
}

// Findings is an ordered list of findings
type Findings []Finding

// HasErrors reports whether any finding has ERROR severity
func (fs Findings) HasErrors() bool {
	for _, f := range fs {
		if f.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Count returns the number of findings with the given severity
func (fs Findings) Count(s Severity) int {
	n := 0
	for _, f := range fs {
		if f.Severity == s {
			n++
		}
	}
	return n
}

// Err returns an *Error carrying the ERROR findings, or nil if there are none
func (fs Findings) Err() error {
	var errs []Finding
	for _, f := range fs {
		if f.Severity == SeverityError {
			errs = append(errs, f)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return &Error{Findings: errs}
}

// Error blocks apply when a desired configuration has ERROR findings
type Error struct {
	Findings []Finding
}

func (e *Error) Error() string {
	if len(e.Findings) == 1 {
		return fmt.Sprintf("validation failed: %s", e.Findings[0])
	}
	msgs := make([]string, len(e.Findings))
	for i, f := range e.Findings {
		msgs[i] = f.String()
	}
	return fmt.Sprintf("validation failed with %d errors: %s", len(e.Findings), strings.Join(msgs, "; "))
}
