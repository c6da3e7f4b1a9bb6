package validate

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"orgsync/pkg/model"
)

// Validator checks a desired organization tree before it is planned or applied
type Validator struct {
	rules    []Rule
	policies []*Policy
	logger   zerolog.Logger
}

// Option configures a Validator
type Option func(*Validator)

// WithRules replaces the built-in rule set
func WithRules(rules ...Rule) Option {
	return func(v *Validator) { v.rules = rules }
}

// WithPolicies adds custom Rego policies
func WithPolicies(policies ...*Policy) Option {
	return func(v *Validator) { v.policies = append(v.policies, policies...) }
}

// WithLogger sets the logger used for policy evaluation failures
func WithLogger(logger zerolog.Logger) Option {
	return func(v *Validator) { v.logger = logger.With().Str("component", "validator").Logger() }
}

// New creates a validator with the built-in rules
func New(opts ...Option) *Validator {
	v := &Validator{
		rules:  DefaultRules(),
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate runs every rule over every object of the tree, then evaluates
// the custom policies against the whole organization. Findings keep the
// order of the tree walk.
func (v *Validator) Validate(ctx context.Context, desired *model.Object) Findings {
	var findings Findings

	v.walk(Resource{Path: ref(desired), Object: desired.Expanded()}, &findings)

	for _, p := range v.policies {
		pf, err := p.Evaluate(ctx, desired)
		if err != nil {
			v.logger.Error().Err(err).Str("policy", p.Name).Msg("Policy evaluation failed")
			findings = append(findings, Finding{
				Severity:    SeverityWarning,
				ResourceKey: ref(desired),
				Message:     fmt.Sprintf("policy %s evaluation failed: %v", p.Name, err),
			})
			continue
		}
		findings = append(findings, pf...)
	}

	v.logger.Debug().
		Str("org", desired.Key()).
		Int("errors", findings.Count(SeverityError)).
		Int("warnings", findings.Count(SeverityWarning)).
		Msg("Validation completed")
	return findings
}

func (v *Validator) walk(r Resource, findings *Findings) {
	for _, rule := range v.rules {
		*findings = append(*findings, rule(r)...)
	}

	s := r.Object.Schema()
	for i := range s.Fields {
		f := &s.Fields[i]
		switch f.Kind {
		case model.KindEmbedded:
			if e := r.Object.Embedded(f.Name); e != nil {
				v.walk(Resource{Path: r.Path + "." + f.Name, Object: e, Parent: r.Object}, findings)
			}
		case model.KindCollection:
			for _, child := range r.Object.Children(f.Name) {
				v.walk(Resource{Path: r.Path + "." + ref(child), Object: child, Parent: r.Object}, findings)
			}
		}
	}
}

func ref(o *model.Object) string {
	return fmt.Sprintf("%s[%s]", o.Type(), o.Key())
}

// Validate runs the built-in rules only
func Validate(ctx context.Context, desired *model.Object) Findings {
	return New().Validate(ctx, desired)
}
