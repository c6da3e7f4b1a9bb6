package diff

import (
	"fmt"

	"orgsync/pkg/model"
	"orgsync/pkg/validate"
)

// Result is the outcome of comparing a desired tree with a live tree
type Result struct {
	Patches  []Patch
	Findings validate.Findings
}

// Empty reports whether the live tree already matches the desired tree
func (r *Result) Empty() bool {
	return len(r.Patches) == 0
}

type differ struct {
	opts     Options
	patches  []Patch
	findings validate.Findings
}

// Diff compares desired against live and returns the ordered patches needed
// to make live match desired. Parent operations precede operations on their
// children; a terminal flag such as archived is set after everything else on
// the same resource.
func Diff(desired, live *model.Object, opts Options) (*Result, error) {
	if desired.Type() != live.Type() {
		return nil, &TypeMismatchError{Desired: desired.Type(), Live: live.Type()}
	}

	d := &differ{opts: opts}
	d.pair(nil, desired.Expanded(), live)
	return &Result{Patches: d.patches, Findings: d.findings}, nil
}

func (d *differ) pair(parents []Ref, desired, live *model.Object) {
	key := desired.Key()
	if key == "" {
		key = live.Key()
	}
	self := Ref{Type: desired.Type(), Key: key}
	path := append(append([]Ref{}, parents...), self)

	changes, terminal := d.fields("", path, desired, live)
	if len(changes) > 0 {
		d.patches = append(d.patches, d.modify(parents, key, desired, live, changes))
	} else if lk := live.Key(); lk != "" && !desired.Schema().SameKey(lk, key) {
		// nothing renames the resource before its children are written
		path[len(path)-1].Live = lk
	}

	for _, f := range desired.Schema().Collections() {
		if !desired.HasCollection(f.Name) {
			continue
		}
		d.collection(path, f, desired.Children(f.Name), live.Children(f.Name))
	}

	if len(terminal) > 0 {
		d.patches = append(d.patches, d.modify(parents, key, desired, live, terminal))
	}
}

func (d *differ) modify(parents []Ref, key string, desired, live *model.Object, changes []Change) Patch {
	return Patch{
		TargetType: desired.Type(),
		TargetKey:  key,
		LiveKey:    live.Key(),
		Parents:    parents,
		Action:     ActionModify,
		Changes:    changes,
		Desired:    desired,
		Live:       live,
	}
}

// fields compares the scalar and embedded fields of a matched pair. Changes
// that set a terminal flag are returned separately.
func (d *differ) fields(prefix string, path []Ref, desired, live *model.Object) (changes, terminal []Change) {
	s := desired.Schema()
	for i := range s.Fields {
		f := &s.Fields[i]
		if f.Kind == model.KindCollection || !s.IncludeField(f, desired, live) {
			continue
		}
		// identity was settled by key or alias matching
		if prefix == "" && f.Name == s.Key {
			continue
		}
		name := prefix + f.Name

		if f.Kind == model.KindEmbedded {
			de := desired.Embedded(f.Name)
			if de == nil {
				continue
			}
			le := live.Embedded(f.Name)
			if le == nil {
				le = model.New(f.Schema)
			}
			c, t := d.fields(name+".", path, de, le)
			changes = append(changes, c...)
			terminal = append(terminal, t...)
			continue
		}

		dv := desired.Get(f.Name)
		if dv == nil {
			continue
		}
		lv := live.Get(f.Name)

		if f.Kind == model.KindSecret {
			if model.IsRedacted(dv) {
				continue
			}
			if model.IsRedacted(lv) {
				resource := path[len(path)-1]
				if !d.opts.Forced(resource.Type, resource.Key) {
					d.findings = append(d.findings, validate.Finding{
						Severity:    validate.SeverityInfo,
						ResourceKey: Path(path...),
						Message:     fmt.Sprintf("%s %q: %s cannot be compared with its redacted live value, skipping (force an update to re-send it)", resource.Type, resource.Key, name),
					})
					continue
				}
				changes = append(changes, Change{Field: name, Old: lv, New: dv})
				continue
			}
		}

		if f.Same(dv, lv) {
			continue
		}
		c := Change{Field: name, Old: lv, New: dv, ReadOnly: f.Kind == model.KindReadOnly}
		if f.Type == model.TypeList && f.Ordered {
			c.Edits = editScript(live.List(f.Name), desired.List(f.Name))
		}
		if f.Terminal && dv == true {
			terminal = append(terminal, c)
		} else {
			changes = append(changes, c)
		}
	}
	return changes, terminal
}

// collection matches desired children to live children by key, then by
// alias, and emits removals, additions and recursive modifications
func (d *differ) collection(parents []Ref, f *model.Field, desired, live []*model.Object) {
	s := f.Schema
	index := make(map[string]int, len(live))
	for i, l := range live {
		k := s.NormalizeKey(l.Key())
		if _, dup := index[k]; !dup {
			index[k] = i
		}
	}

	matched := make([]int, len(desired))
	taken := make([]bool, len(live))
	for i := range matched {
		matched[i] = -1
	}
	tryMatch := func(i int, key string) bool {
		j, ok := index[s.NormalizeKey(key)]
		if !ok || taken[j] || !s.AcceptsKey(desired[i], live[j]) {
			return false
		}
		matched[i] = j
		taken[j] = true
		return true
	}

	// exact keys win over aliases
	for i, dc := range desired {
		tryMatch(i, dc.Key())
	}
	for i, dc := range desired {
		if matched[i] >= 0 {
			continue
		}
		for _, alias := range dc.Aliases() {
			if tryMatch(i, alias) {
				break
			}
		}
	}

	for j, lc := range live {
		if !taken[j] {
			d.patches = append(d.patches, Patch{
				TargetType: lc.Type(),
				TargetKey:  lc.Key(),
				LiveKey:    lc.Key(),
				Parents:    parents,
				Action:     ActionRemove,
				Changes:    fullFieldSet(lc, false),
				Live:       lc,
			})
		}
	}

	for i, dc := range desired {
		if matched[i] < 0 {
			d.patches = append(d.patches, Patch{
				TargetType: dc.Type(),
				TargetKey:  dc.Key(),
				Parents:    parents,
				Action:     ActionAdd,
				Changes:    fullFieldSet(dc, true),
				Desired:    dc,
			})
			continue
		}
		d.pair(parents, dc, live[matched[i]])
	}
}

// fullFieldSet lists every set field of an added or removed resource
func fullFieldSet(o *model.Object, added bool) []Change {
	var out []Change
	var walk func(prefix string, o *model.Object)
	walk = func(prefix string, o *model.Object) {
		s := o.Schema()
		for i := range s.Fields {
			f := &s.Fields[i]
			switch f.Kind {
			case model.KindCollection, model.KindModelOnly:
				continue
			case model.KindEmbedded:
				if e := o.Embedded(f.Name); e != nil {
					walk(prefix+f.Name+".", e)
				}
				continue
			}
			v := o.Get(f.Name)
			if v == nil {
				continue
			}
			c := Change{Field: prefix + f.Name, ReadOnly: f.Kind == model.KindReadOnly}
			if added {
				c.New = v
			} else {
				c.Old = v
			}
			out = append(out, c)
		}
	}
	walk("", o)
	return out
}
