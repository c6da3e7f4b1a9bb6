package apply

import (
	"context"
	"errors"
	"fmt"

	"github.com/gobwas/glob"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"orgsync/pkg/diff"
	"orgsync/pkg/telemetry"
)

// Status is the result of applying one patch
type Status string

const (
	StatusApplied Status = "applied"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// Options control how patches are applied
type Options struct {
	// DryRun records the calls a patch needs without making them
	DryRun bool
	// DeleteEnabled allows REMOVE patches; they are skipped otherwise
	DeleteEnabled bool
	// ForceSecrets re-sends secret values that cannot be compared
	ForceSecrets bool
	// ForceWebhooks re-sends webhook secrets that cannot be compared
	ForceWebhooks bool
	// UpdateFilter restricts forced updates to matching webhook URLs and secret names
	UpdateFilter glob.Glob
}

// Diff returns the comparison options matching o
func (o Options) Diff() diff.Options {
	return diff.Options{
		ForceSecrets:  o.ForceSecrets,
		ForceWebhooks: o.ForceWebhooks,
		UpdateFilter:  o.UpdateFilter,
	}
}

// Outcome is the result of one patch
type Outcome struct {
	Patch  diff.Patch
	Status Status
	// Reason explains a skipped patch
	Reason string
	// Err is a *PatchError, or a join of them, for failed patches
	Err error
	// Calls lists the provider calls made, or intended in a dry run
	Calls []string
}

// Applier executes patches for one organization
type Applier struct {
	writer  Writer
	logger  zerolog.Logger
	metrics *telemetry.Metrics
}

// New creates an applier writing through w
func New(w Writer, logger zerolog.Logger, metrics *telemetry.Metrics) *Applier {
	return &Applier{
		writer:  w,
		logger:  telemetry.Component(logger, "apply"),
		metrics: metrics,
	}
}

// Apply executes patches strictly in order. A failed patch does not stop the
// ones after it; once ctx is done the remaining patches fail with its error.
func (a *Applier) Apply(ctx context.Context, org string, patches []diff.Patch, opts Options) []Outcome {
	logger := telemetry.WithOrg(a.logger, org)
	st := &state{renamed: map[string]string{}}

	outcomes := make([]Outcome, 0, len(patches))
	for _, p := range patches {
		var out Outcome
		if err := ctx.Err(); err != nil {
			out = Outcome{Patch: p, Status: StatusFailed, Err: &PatchError{Type: p.TargetType, Key: p.ResourceKey(), Action: p.Action, Err: err}}
		} else {
			out = a.applyPatch(ctx, st, p, opts)
		}

		var event *zerolog.Event
		switch out.Status {
		case StatusFailed:
			event = logger.Error().Err(out.Err)
		case StatusSkipped:
			event = logger.Debug().Str("reason", out.Reason)
		default:
			event = logger.Info()
		}
		event.Str("patch", p.String()).Str("status", string(out.Status)).Int("calls", len(out.Calls)).Msg("Patch processed")

		a.metrics.PatchOutcome(p.TargetType, string(p.Action), string(out.Status))
		outcomes = append(outcomes, out)
	}
	return outcomes
}

func (a *Applier) applyPatch(ctx context.Context, st *state, p diff.Patch, opts Options) (out Outcome) {
	out = Outcome{Patch: p}

	if p.Action == diff.ActionRemove && !opts.DeleteEnabled {
		out.Status = StatusSkipped
		out.Reason = "deletion not enabled"
		return out
	}
	if !p.Writable() {
		out.Status = StatusSkipped
		out.Reason = "only read-only fields differ"
		return out
	}

	ctx, span := telemetry.StartSpan(ctx, "apply.Patch",
		attribute.String("resource", p.ResourceKey()),
		attribute.String("action", string(p.Action)),
	)
	defer func() { telemetry.EndSpan(span, out.Err) }()

	r := &run{ctx: ctx, w: a.writer, patch: p, dryRun: opts.DryRun, state: st}
	err := r.realize()

	out.Calls = r.calls
	if reason, ok := isSkip(err); ok {
		out.Status = StatusSkipped
		out.Reason = reason
		return out
	}
	if err != nil {
		out.Status = StatusFailed
		out.Err = err
		return out
	}
	if opts.DryRun {
		out.Status = StatusSkipped
		out.Reason = "dry run"
		return out
	}
	out.Status = StatusApplied
	return out
}

// state carries what earlier patches of the same run changed
type state struct {
	// renamed maps the live path of a renamed resource to its new key
	renamed map[string]string
}

// run realizes one patch as a sequence of provider calls
type run struct {
	ctx    context.Context
	w      Writer
	patch  diff.Patch
	dryRun bool
	state  *state
	calls  []string
}

// do records a call and makes it unless this is a dry run. Failures are
// wrapped with the patch's resource and the fields written.
func (r *run) do(field, call string, fn func() error) error {
	r.calls = append(r.calls, call)
	if r.dryRun {
		return nil
	}
	if err := fn(); err != nil {
		return &PatchError{
			Type:   r.patch.TargetType,
			Key:    r.patch.ResourceKey(),
			Action: r.patch.Action,
			Field:  field,
			Err:    err,
		}
	}
	return nil
}

func (r *run) realize() error {
	switch r.patch.Action {
	case diff.ActionAdd:
		return r.add(r.patch.Repository(), r.patch.Desired)
	case diff.ActionRemove:
		return r.remove()
	case diff.ActionModify:
		return r.modify()
	default:
		return fmt.Errorf("unknown action %q", r.patch.Action)
	}
}

// liveKey returns the key addressing the live resource, following a rename
// made earlier in the run
func (r *run) liveKey() string {
	key := r.patch.LiveKey
	if key == "" {
		key = r.patch.TargetKey
	}
	if renamed, ok := r.state.renamed[r.livePath(key)]; ok {
		return renamed
	}
	return key
}

func (r *run) renamed() bool {
	return r.patch.LiveKey != "" && r.patch.LiveKey != r.patch.TargetKey
}

// rename records that the live resource now has the patch's target key
func (r *run) rename() {
	if r.renamed() && !r.dryRun {
		r.state.renamed[r.livePath(r.patch.LiveKey)] = r.patch.TargetKey
	}
}

func (r *run) livePath(key string) string {
	ref := diff.Ref{Type: r.patch.TargetType, Key: key}
	return diff.Path(append(append([]diff.Ref{}, r.patch.Parents...), ref)...)
}

// repo returns the owning repository. Child patches carry the desired name
// when a rename precedes them in the run, and the live name otherwise.
func (r *run) repo() string {
	return r.patch.Repository()
}

// joinErrors keeps a skip only when nothing failed
func joinErrors(errs []error) error {
	var failures []error
	var skipped error
	for _, err := range errs {
		if err == nil {
			continue
		}
		if _, ok := isSkip(err); ok {
			if skipped == nil {
				skipped = err
			}
			continue
		}
		failures = append(failures, err)
	}
	if len(failures) > 0 {
		return errors.Join(failures...)
	}
	return skipped
}
