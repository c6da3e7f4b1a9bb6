package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"orgsync/pkg/apply"
	"orgsync/pkg/diff"
	"orgsync/pkg/model"
	"orgsync/pkg/provider"
	"orgsync/pkg/validate"
)

// Status is the final state of one organization in a batch
type Status string

const (
	StatusOK         Status = "ok"
	StatusFailed     Status = "failed"
	StatusIncomplete Status = "failed-incomplete"
	StatusInvalid    Status = "invalid"
)

// Result is what happened to one organization
type Result struct {
	Org      string
	Status   Status
	Findings validate.Findings
	Warnings []provider.Warning
	Patches  []diff.Patch
	// Outcomes is set by Apply only, one per patch
	Outcomes []apply.Outcome
	Err      error
}

// Changed reports whether the organization differs from its configuration
func (r *Result) Changed() bool {
	return len(r.Patches) > 0
}

// Summary counts the patches of an organization
type Summary struct {
	Add         int
	Modify      int
	Remove      int
	Destructive int
	Applied     int
	Skipped     int
	Failed      int
}

// Summary counts patches by action and, after an apply, by outcome.
// Removals and repository archival count as destructive.
func (r *Result) Summary() Summary {
	var s Summary
	for _, p := range r.Patches {
		switch p.Action {
		case diff.ActionAdd:
			s.Add++
		case diff.ActionModify:
			s.Modify++
		case diff.ActionRemove:
			s.Remove++
		}
		if destructive(p) {
			s.Destructive++
		}
	}
	for _, o := range r.Outcomes {
		switch o.Status {
		case apply.StatusApplied:
			s.Applied++
		case apply.StatusSkipped:
			s.Skipped++
		case apply.StatusFailed:
			s.Failed++
		}
	}
	return s
}

func destructive(p diff.Patch) bool {
	if p.Action == diff.ActionRemove {
		return true
	}
	c, ok := p.Change("archived")
	return ok && c.New == true
}

// Report is the outcome of a batch run, one result per target in target
// order
type Report struct {
	RunID   string
	Results []*Result
}

// Result returns the result of org, or nil
func (r *Report) Result(org string) *Result {
	for _, res := range r.Results {
		if strings.EqualFold(res.Org, org) {
			return res
		}
	}
	return nil
}

// Count returns how many organizations ended with status s
func (r *Report) Count(s Status) int {
	n := 0
	for _, res := range r.Results {
		if res.Status == s {
			n++
		}
	}
	return n
}

// Failed reports whether any organization did not end with StatusOK
func (r *Report) Failed() bool {
	return r.Count(StatusOK) != len(r.Results)
}

// Err summarizes every organization that did not succeed, or returns nil
func (r *Report) Err() error {
	var errs []error
	for _, res := range r.Results {
		if res.Status == StatusOK {
			continue
		}
		if res.Err != nil {
			errs = append(errs, fmt.Errorf("%s (%s): %w", res.Org, res.Status, res.Err))
		} else {
			errs = append(errs, fmt.Errorf("%s: %s", res.Org, res.Status))
		}
	}
	return errors.Join(errs...)
}

// statusOf maps an organization level error to its status
func statusOf(err error) Status {
	var (
		invalid   *validate.Error
		formatErr *model.ConfigFormatError
		schemaErr *model.ConfigSchemaError
	)
	switch {
	case err == nil:
		return StatusOK
	case errors.As(err, &invalid), errors.As(err, &formatErr), errors.As(err, &schemaErr):
		return StatusInvalid
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return StatusIncomplete
	default:
		return StatusFailed
	}
}

// outcomeErr joins the errors of failed patches
func outcomeErr(outcomes []apply.Outcome) error {
	var errs []error
	for _, o := range outcomes {
		if o.Status == apply.StatusFailed {
			errs = append(errs, o.Err)
		}
	}
	return errors.Join(errs...)
}
