package validate

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"

	"orgsync/pkg/model"
)

// Policy is a compiled Rego module contributing custom findings. The module
// may define any of the sets deny, warn and info, whose members are objects
// with "resource" and "message" keys:
//
//	package orgsync.naming
//
//	import rego.v1
//
//	deny contains v if {
//		some repo in input.organization.repositories
//		lower(repo.name) != repo.name
//		v := {"resource": sprintf("Repository[%s]", [repo.name]), "message": "repository names must be lowercase"}
//	}
type Policy struct {
	Name    string
	pkg     string
	queries map[Severity]rego.PreparedEvalQuery
}

var policySets = map[Severity]string{
	SeverityError:   "deny",
	SeverityWarning: "warn",
	SeverityInfo:    "info",
}

// NewPolicy parses and prepares a Rego module
func NewPolicy(ctx context.Context, name, source string) (*Policy, error) {
	module, err := ast.ParseModule(name, source)
	if err != nil {
		return nil, fmt.Errorf("failed to parse policy %s: %w", name, err)
	}

	p := &Policy{
		Name:    name,
		pkg:     module.Package.Path.String(),
		queries: make(map[Severity]rego.PreparedEvalQuery, len(policySets)),
	}
	for sev, set := range policySets {
		q, err := rego.New(
			rego.Module(name, source),
			rego.Query(p.pkg+"."+set),
		).PrepareForEval(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to prepare policy %s: %w", name, err)
		}
		p.queries[sev] = q
	}
	return p, nil
}

// LoadPolicies compiles every .rego file of a directory in name order
func LoadPolicies(ctx context.Context, dir string) ([]*Policy, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".rego") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	policies := make([]*Policy, 0, len(names))
	for _, n := range names {
		data, err := os.ReadFile(filepath.Join(dir, n))
		if err != nil {
			return nil, fmt.Errorf("failed to read policy %s: %w", n, err)
		}
		p, err := NewPolicy(ctx, strings.TrimSuffix(n, ".rego"), string(data))
		if err != nil {
			return nil, err
		}
		policies = append(policies, p)
	}
	return policies, nil
}

// Evaluate runs the policy against an organization. The input document is
// {"organization": <configuration of the organization>}.
func (p *Policy) Evaluate(ctx context.Context, org *model.Object) (Findings, error) {
	input := map[string]any{"organization": model.ToConfig(org)}
	root := ref(org)

	var out Findings
	for _, sev := range []Severity{SeverityError, SeverityWarning, SeverityInfo} {
		results, err := p.queries[sev].Eval(ctx, rego.EvalInput(input))
		if err != nil {
			return nil, fmt.Errorf("policy evaluation error: %w", err)
		}
		for _, result := range results {
			if len(result.Expressions) == 0 {
				continue
			}
			items, ok := result.Expressions[0].Value.([]any)
			if !ok {
				continue
			}
			for _, item := range items {
				out = append(out, policyFinding(sev, root, item))
			}
		}
	}
	return out, nil
}

func policyFinding(sev Severity, root string, item any) Finding {
	f := Finding{Severity: sev, ResourceKey: root}
	switch v := item.(type) {
	case string:
		f.Message = v
	case map[string]any:
		if msg, ok := v["message"].(string); ok {
			f.Message = msg
		}
		if res, ok := v["resource"].(string); ok && res != "" {
			if strings.HasPrefix(res, root) {
				f.ResourceKey = res
			} else {
				f.ResourceKey = root + "." + res
			}
		}
	default:
		f.Message = fmt.Sprintf("%v", item)
	}
	return f
}
