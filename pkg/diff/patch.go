package diff

import (
	"fmt"
	"strings"

	"github.com/gobwas/glob"

	"orgsync/pkg/model"
)

// Action is the kind of operation a patch performs
type Action string

const (
	ActionAdd    Action = "ADD"
	ActionRemove Action = "REMOVE"
	ActionModify Action = "MODIFY"
)

// Ref identifies one resource on the containment path of a patch
type Ref struct {
	Type string
	Key  string
	// Live is set when the platform resource still carries a former key
	// while the ref's children are written
	Live string
}

// Addr returns the key addressing the platform resource
func (r Ref) Addr() string {
	if r.Live != "" {
		return r.Live
	}
	return r.Key
}

// Path renders a containment path as Type[key].Type[key]
func Path(refs ...Ref) string {
	parts := make([]string, len(refs))
	for i, r := range refs {
		parts[i] = fmt.Sprintf("%s[%s]", r.Type, r.Key)
	}
	return strings.Join(parts, ".")
}

// Change is one field-level difference
type Change struct {
	// Field is dotted for fields of embedded objects
	Field string
	Old   any
	New   any
	// ReadOnly changes are shown in plans but never written
	ReadOnly bool
	// Edits is set for ordered list fields
	Edits []Edit
}

// Patch is one ADD, REMOVE or MODIFY operation
type Patch struct {
	TargetType string
	TargetKey  string
	// LiveKey addresses the live resource. It differs from TargetKey when the
	// resource was matched by alias.
	LiveKey string
	Parents []Ref
	Action  Action
	// Changes holds the full field set for ADD and REMOVE
	Changes []Change
	Desired *model.Object
	Live    *model.Object
}

// Ref returns the patch's own containment reference
func (p Patch) Ref() Ref {
	return Ref{Type: p.TargetType, Key: p.TargetKey}
}

// ResourceKey renders the full containment path of the target
func (p Patch) ResourceKey() string {
	return Path(append(append([]Ref{}, p.Parents...), p.Ref())...)
}

// Repository returns the name addressing the owning repository, or "" for
// organization-level resources
func (p Patch) Repository() string {
	for i := len(p.Parents) - 1; i >= 0; i-- {
		if p.Parents[i].Type == model.TypeRepository {
			return p.Parents[i].Addr()
		}
	}
	return ""
}

// Change returns the change of the named field
func (p Patch) Change(field string) (Change, bool) {
	for _, c := range p.Changes {
		if c.Field == field {
			return c, true
		}
	}
	return Change{}, false
}

// Fields returns the distinct top-level fields touched by writable changes
func (p Patch) Fields() []string {
	var out []string
	seen := map[string]bool{}
	for _, c := range p.Changes {
		if c.ReadOnly {
			continue
		}
		top, _, _ := strings.Cut(c.Field, ".")
		if !seen[top] {
			seen[top] = true
			out = append(out, top)
		}
	}
	return out
}

// Writable reports whether at least one change can be sent to the platform
func (p Patch) Writable() bool {
	return p.Action != ActionModify || len(p.Fields()) > 0
}

func (p Patch) String() string {
	return fmt.Sprintf("%s %s", p.Action, p.ResourceKey())
}

// Options tune how write-only fields are compared
type Options struct {
	// ForceSecrets compares secret values even though the live side is redacted
	ForceSecrets bool
	// ForceWebhooks does the same for webhook secrets
	ForceWebhooks bool
	// UpdateFilter restricts forced updates to matching webhook URLs and secret names
	UpdateFilter glob.Glob
}

// CompileFilter compiles an update filter. An empty pattern matches everything.
func CompileFilter(pattern string) (glob.Glob, error) {
	if pattern == "" {
		return nil, nil
	}
	g, err := glob.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid update filter %q: %w", pattern, err)
	}
	return g, nil
}

// Forced reports whether write-only fields of a resource are re-sent
func (o Options) Forced(resourceType, key string) bool {
	switch resourceType {
	case model.TypeWebhook:
		if !o.ForceWebhooks {
			return false
		}
	case model.TypeSecret:
		if !o.ForceSecrets {
			return false
		}
	default:
		return false
	}
	return o.UpdateFilter == nil || o.UpdateFilter.Match(key)
}

// TypeMismatchError is returned when desired and live objects are of different types
type TypeMismatchError struct {
	Desired string
	Live    string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("cannot diff %s against %s", e.Desired, e.Live)
}
