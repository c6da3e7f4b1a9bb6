package apply

import (
	"fmt"
	"strings"

	"orgsync/pkg/diff"
	"orgsync/pkg/model"
)

var typeNames = map[string]string{
	model.TypeOrganization:         "organization",
	model.TypeRepository:           "repository",
	model.TypeWebhook:              "webhook",
	model.TypeSecret:               "secret",
	model.TypeVariable:             "variable",
	model.TypeEnvironment:          "environment",
	model.TypeBranchProtectionRule: "branch protection rule",
	model.TypeRuleset:              "ruleset",
	model.TypeTeam:                 "team",
	model.TypeRole:                 "role",
	model.TypeCustomProperty:       "custom property",
}

// describe renders a call for outcomes and dry runs
func describe(verb, resourceType, key, repo string) string {
	name, ok := typeNames[resourceType]
	if !ok {
		name = resourceType
	}
	call := fmt.Sprintf("%s %s %s", verb, name, key)
	if repo != "" {
		call += " in repository " + repo
	}
	return call
}

// add creates o and everything it contains. It serves ADD patches and the
// children of a repository being created.
func (r *run) add(repo string, o *model.Object) error {
	key := o.Key()
	field := ""
	if o != r.patch.Desired {
		field = diff.Path(diff.Ref{Type: o.Type(), Key: key})
	}
	call := describe("create", o.Type(), key, repo)

	switch o.Type() {
	case model.TypeRepository:
		return r.addRepository(o)

	case model.TypeWebhook:
		return r.do(field, call, func() error {
			_, err := r.w.CreateWebhook(r.ctx, repo, model.Serialize(o))
			return err
		})

	case model.TypeSecret:
		value := o.String("value")
		if value == "" || model.IsRedacted(value) {
			return skip("value of secret %s is unknown", key)
		}
		return r.do(field, call, func() error {
			return r.w.PutSecret(r.ctx, repo, key, value, model.Serialize(o))
		})

	case model.TypeVariable:
		return r.do(field, call, func() error {
			return r.w.CreateVariable(r.ctx, repo, model.Serialize(o))
		})

	case model.TypeEnvironment:
		return r.do(field, call, func() error {
			return r.w.PutEnvironment(r.ctx, repo, key, model.Serialize(o))
		})

	case model.TypeBranchProtectionRule:
		return r.do(field, call, func() error {
			_, err := r.w.CreateBranchProtectionRule(r.ctx, repo, model.Serialize(o))
			return err
		})

	case model.TypeRuleset:
		return r.do(field, call, func() error {
			return r.w.CreateRuleset(r.ctx, repo, model.Serialize(o))
		})

	case model.TypeTeam:
		return r.addTeam(o)

	case model.TypeRole:
		return r.do(field, call, func() error {
			return r.w.CreateRole(r.ctx, model.Serialize(o))
		})

	case model.TypeCustomProperty:
		return r.do(field, call, func() error {
			return r.w.PutCustomProperty(r.ctx, key, model.Serialize(o))
		})

	default:
		return fmt.Errorf("cannot create a %s", o.Type())
	}
}

// addRepository creates a repository, then its Actions policy and children.
// Archiving comes last since an archived repository is read-only.
func (r *run) addRepository(o *model.Object) error {
	name := o.Key()
	p := model.Serialize(o)
	delete(p, model.FieldWorkflows)
	delete(p, "archived")

	err := r.do("", describe("create", model.TypeRepository, name, ""), func() error {
		return r.w.CreateRepository(r.ctx, p, o.String("template_repository"), o.Bool("auto_init"))
	})
	if err != nil {
		return err
	}

	var errs []error
	if wf := o.Embedded(model.FieldWorkflows); wf != nil {
		errs = append(errs, r.do(model.FieldWorkflows, "update workflow settings of repository "+name, func() error {
			return r.w.UpdateWorkflowSettings(r.ctx, name, model.Serialize(wf))
		}))
	}
	for _, f := range o.Schema().Collections() {
		for _, child := range o.Children(f.Name) {
			err := r.add(name, child)
			if _, skipped := isSkip(err); skipped {
				continue
			}
			errs = append(errs, err)
		}
	}

	if o.Bool("archived") {
		if err := joinErrors(errs); err != nil {
			return err
		}
		return r.do("archived", "archive repository "+name, func() error {
			return r.w.UpdateRepository(r.ctx, name, model.Payload{"archived": true})
		})
	}
	return joinErrors(errs)
}

// addTeam creates a team and adds its members
func (r *run) addTeam(o *model.Object) error {
	var slug string
	err := r.do("", describe("create", model.TypeTeam, o.Key(), ""), func() error {
		var err error
		slug, err = r.w.CreateTeam(r.ctx, model.Serialize(o))
		return err
	})
	if err != nil {
		return err
	}
	if slug == "" {
		slug = o.Key()
	}

	var errs []error
	for _, user := range o.List("members") {
		errs = append(errs, r.addMember(slug, user))
	}
	return joinErrors(errs)
}

func (r *run) addMember(slug, user string) error {
	return r.do("members", fmt.Sprintf("add member %s to team %s", user, slug), func() error {
		return r.w.AddTeamMember(r.ctx, slug, user)
	})
}

func (r *run) removeMember(slug, user string) error {
	return r.do("members", fmt.Sprintf("remove member %s from team %s", user, slug), func() error {
		return r.w.RemoveTeamMember(r.ctx, slug, user)
	})
}

func (r *run) remove() error {
	p := r.patch
	key := r.liveKey()
	repo := r.repo()
	call := describe("delete", p.TargetType, key, repo)

	var fn func() error
	switch p.TargetType {
	case model.TypeRepository:
		fn = func() error { return r.w.DeleteRepository(r.ctx, key) }
	case model.TypeWebhook:
		fn = func() error { return r.w.DeleteWebhook(r.ctx, repo, p.Live.Int("id")) }
	case model.TypeSecret:
		fn = func() error { return r.w.DeleteSecret(r.ctx, repo, key) }
	case model.TypeVariable:
		fn = func() error { return r.w.DeleteVariable(r.ctx, repo, key) }
	case model.TypeEnvironment:
		fn = func() error { return r.w.DeleteEnvironment(r.ctx, repo, key) }
	case model.TypeBranchProtectionRule:
		fn = func() error { return r.w.DeleteBranchProtectionRule(r.ctx, p.Live.String("id")) }
	case model.TypeRuleset:
		fn = func() error { return r.w.DeleteRuleset(r.ctx, repo, p.Live.Int("id")) }
	case model.TypeTeam:
		fn = func() error { return r.w.DeleteTeam(r.ctx, teamSlug(p.Live, key)) }
	case model.TypeRole:
		fn = func() error { return r.w.DeleteRole(r.ctx, p.Live.Int("id")) }
	case model.TypeCustomProperty:
		fn = func() error { return r.w.DeleteCustomProperty(r.ctx, key) }
	default:
		return fmt.Errorf("cannot delete a %s", p.TargetType)
	}
	return r.do("", call, fn)
}

func (r *run) modify() error {
	p := r.patch
	fields := p.Fields()
	m := merged(p.Live, p.Desired)
	if p.TargetType != model.TypeSecret {
		withholdSecrets(p, m)
	}
	key := r.liveKey()
	repo := r.repo()
	call := describe("update", p.TargetType, key, repo)

	var err error
	switch p.TargetType {
	case model.TypeOrganization:
		return r.modifyOrganization(fields, m)

	case model.TypeRepository:
		return r.modifyRepository(fields, m)

	case model.TypeWebhook:
		err = r.do(strings.Join(fields, ", "), call, func() error {
			return r.w.UpdateWebhook(r.ctx, repo, p.Live.Int("id"), model.Serialize(m))
		})

	case model.TypeSecret:
		value := m.String("value")
		if value == "" {
			return skip("value of secret %s is unknown", p.TargetKey)
		}
		err = r.do(strings.Join(fields, ", "), describe("update", p.TargetType, p.TargetKey, repo), func() error {
			return r.w.PutSecret(r.ctx, repo, p.TargetKey, value, model.Serialize(m))
		})
		if err == nil && r.renamed() {
			err = r.do("", describe("delete", p.TargetType, key, repo), func() error {
				return r.w.DeleteSecret(r.ctx, repo, key)
			})
		}

	case model.TypeVariable:
		err = r.do(strings.Join(fields, ", "), call, func() error {
			return r.w.UpdateVariable(r.ctx, repo, key, model.Serialize(m))
		})

	case model.TypeEnvironment:
		err = r.do(strings.Join(fields, ", "), describe("update", p.TargetType, p.TargetKey, repo), func() error {
			return r.w.PutEnvironment(r.ctx, repo, p.TargetKey, model.Serialize(m))
		})
		if err == nil && r.renamed() {
			err = r.do("", describe("delete", p.TargetType, key, repo), func() error {
				return r.w.DeleteEnvironment(r.ctx, repo, key)
			})
		}

	case model.TypeBranchProtectionRule:
		names := fields
		if r.renamed() {
			names = append(names, "pattern")
		}
		err = r.do(strings.Join(names, ", "), call, func() error {
			return r.w.UpdateBranchProtectionRule(r.ctx, p.Live.String("id"), model.SerializeFields(m, names...))
		})

	case model.TypeRuleset:
		err = r.do(strings.Join(fields, ", "), call, func() error {
			return r.w.UpdateRuleset(r.ctx, repo, p.Live.Int("id"), model.Serialize(m))
		})

	case model.TypeTeam:
		return r.modifyTeam(fields, m)

	case model.TypeRole:
		err = r.do(strings.Join(fields, ", "), call, func() error {
			return r.w.UpdateRole(r.ctx, p.Live.Int("id"), model.Serialize(m))
		})

	case model.TypeCustomProperty:
		err = r.do(strings.Join(fields, ", "), describe("update", p.TargetType, p.TargetKey, ""), func() error {
			return r.w.PutCustomProperty(r.ctx, p.TargetKey, model.Serialize(m))
		})
		if err == nil && r.renamed() {
			err = r.do("", describe("delete", p.TargetType, key, ""), func() error {
				return r.w.DeleteCustomProperty(r.ctx, key)
			})
		}

	default:
		return fmt.Errorf("cannot update a %s", p.TargetType)
	}

	if err == nil {
		r.rename()
	}
	return err
}

// modifyOrganization writes each changed field through the back end that
// owns it
func (r *run) modifyOrganization(fields []string, m *model.Object) error {
	var rest, web []string
	workflows := false
	for _, name := range fields {
		f, ok := m.Schema().Field(name)
		switch {
		case !ok:
		case f.Kind == model.KindEmbedded:
			workflows = true
		case f.Source == model.SourceWeb:
			web = append(web, name)
		default:
			rest = append(rest, name)
		}
	}

	var errs []error
	if len(rest) > 0 {
		errs = append(errs, r.do(strings.Join(rest, ", "), "update organization settings", func() error {
			return r.w.UpdateOrganization(r.ctx, model.SerializeFields(m, rest...))
		}))
	}
	if len(web) > 0 {
		errs = append(errs, r.do(strings.Join(web, ", "), "update organization web settings", func() error {
			return r.w.UpdateOrganizationWebSettings(r.ctx, model.SerializeFields(m, web...))
		}))
	}
	if workflows {
		errs = append(errs, r.updateWorkflows("", m))
	}
	return joinErrors(errs)
}

// modifyRepository renames and updates the repository before its Actions
// policy, which is addressed by the new name
func (r *run) modifyRepository(fields []string, m *model.Object) error {
	var rest []string
	workflows := false
	for _, name := range fields {
		if name == model.FieldWorkflows {
			workflows = true
			continue
		}
		rest = append(rest, name)
	}
	if r.renamed() {
		rest = append(rest, "name")
	}

	if len(rest) > 0 {
		key := r.liveKey()
		err := r.do(strings.Join(rest, ", "), describe("update", model.TypeRepository, key, ""), func() error {
			return r.w.UpdateRepository(r.ctx, key, model.SerializeFields(m, rest...))
		})
		if err != nil {
			return err
		}
		r.rename()
	}
	if workflows {
		return r.updateWorkflows(r.liveKey(), m)
	}
	return nil
}

// modifyTeam updates a team's settings, then reconciles its members. The
// name is always sent since the platform treats it as required.
func (r *run) modifyTeam(fields []string, m *model.Object) error {
	slug := teamSlug(r.patch.Live, r.liveKey())

	var settings []string
	members := false
	for _, name := range fields {
		if name == "members" {
			members = true
			continue
		}
		settings = append(settings, name)
	}

	if len(settings) > 0 || r.renamed() {
		names := append(settings, "name")
		err := r.do(strings.Join(names, ", "), describe("update", model.TypeTeam, slug, ""), func() error {
			updated, err := r.w.UpdateTeam(r.ctx, slug, model.SerializeFields(m, names...))
			if updated != "" {
				slug = updated
			}
			return err
		})
		if err != nil {
			return err
		}
		r.rename()
	}
	if !members {
		return nil
	}

	add, remove := listDelta(r.patch.Live.List("members"), m.List("members"))
	var errs []error
	for _, user := range add {
		errs = append(errs, r.addMember(slug, user))
	}
	for _, user := range remove {
		errs = append(errs, r.removeMember(slug, user))
	}
	return joinErrors(errs)
}

// workflow settings written together by one platform call
var workflowGroups = [][]string{
	{"enabled_repositories", "enabled", "allowed_actions"},
	{"allow_github_owned_actions", "allow_verified_creator_actions", "allow_action_patterns"},
	{"default_workflow_permissions", "actions_can_approve_pull_request_reviews"},
}

// updateWorkflows writes the changed groups of the Actions policy
func (r *run) updateWorkflows(repo string, m *model.Object) error {
	wf := m.Embedded(model.FieldWorkflows)
	if wf == nil {
		return nil
	}
	changed := map[string]bool{}
	for _, c := range r.patch.Changes {
		name, ok := strings.CutPrefix(c.Field, model.FieldWorkflows+".")
		if ok && !c.ReadOnly {
			changed[name] = true
		}
	}

	var names []string
	for _, group := range workflowGroups {
		for _, name := range group {
			if changed[name] {
				names = append(names, group...)
				break
			}
		}
	}

	call := "update workflow settings"
	if repo != "" {
		call += " of repository " + repo
	}
	return r.do(model.FieldWorkflows, call, func() error {
		return r.w.UpdateWorkflowSettings(r.ctx, repo, model.SerializeFields(wf, names...))
	})
}

// merged overlays the desired values of a matched pair on the live object.
// Writes that replace a whole resource send the result. Redacted values are
// dropped since the platform would store them verbatim.
func merged(live, desired *model.Object) *model.Object {
	out := live.Clone()
	s := out.Schema()
	for i := range s.Fields {
		f := &s.Fields[i]
		switch f.Kind {
		case model.KindCollection, model.KindModelOnly:
			continue
		case model.KindEmbedded:
			d := desired.Embedded(f.Name)
			if d == nil {
				continue
			}
			l := out.Embedded(f.Name)
			if l == nil {
				l = model.New(f.Schema)
			}
			out.SetEmbedded(f.Name, merged(l, d))
			continue
		}
		if v := desired.Get(f.Name); v != nil {
			out.Set(f.Name, v)
		}
		if model.IsRedacted(out.Get(f.Name)) {
			out.Unset(f.Name)
		}
	}
	return out
}

// withholdSecrets drops write-only fields whose live value is redacted and
// which the patch does not change. They only change when forced. A secret
// resource is exempt since its value goes with every write.
func withholdSecrets(p diff.Patch, m *model.Object) {
	s := m.Schema()
	for i := range s.Fields {
		f := &s.Fields[i]
		if f.Kind != model.KindSecret || !model.IsRedacted(p.Live.Get(f.Name)) {
			continue
		}
		if _, ok := p.Change(f.Name); !ok {
			m.Unset(f.Name)
		}
	}
}

// teamSlug returns the live team's slug, falling back to its key
func teamSlug(live *model.Object, key string) string {
	if live != nil {
		if slug := live.String("slug"); slug != "" {
			return slug
		}
	}
	return key
}

// listDelta returns the entries of to missing from from, and the entries of
// from missing from to, ignoring case
func listDelta(from, to []string) (add, remove []string) {
	have := make(map[string]bool, len(from))
	for _, v := range from {
		have[strings.ToLower(v)] = true
	}
	want := make(map[string]bool, len(to))
	for _, v := range to {
		want[strings.ToLower(v)] = true
		if !have[strings.ToLower(v)] {
			add = append(add, v)
		}
	}
	for _, v := range from {
		if !want[strings.ToLower(v)] {
			remove = append(remove, v)
		}
	}
	return add, remove
}
