package apply

import (
	"errors"
	"fmt"
	"strings"

	"orgsync/pkg/diff"
)

// PatchError is the failure of one provider call made for a patch. It names
// the resource and, where a call writes a subset of fields, those fields.
type PatchError struct {
	Type   string
	Key    string
	Action diff.Action
	Field  string
	Err    error
}

func (e *PatchError) Error() string {
	msg := fmt.Sprintf("failed to %s %s", strings.ToLower(string(e.Action)), e.Key)
	if e.Field != "" {
		msg += fmt.Sprintf(" (%s)", e.Field)
	}
	return msg + ": " + e.Err.Error()
}

func (e *PatchError) Unwrap() error {
	return e.Err
}

// skipError marks a patch, or part of one, that cannot be written
type skipError struct {
	reason string
}

func (e *skipError) Error() string {
	return e.reason
}

func skip(format string, args ...any) error {
	return &skipError{reason: fmt.Sprintf(format, args...)}
}

func isSkip(err error) (string, bool) {
	var s *skipError
	if errors.As(err, &s) {
		return s.reason, true
	}
	return "", false
}
