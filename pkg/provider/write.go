package provider

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/google/go-github/v66/github"
	"golang.org/x/crypto/nacl/box"

	"orgsync/pkg/model"
)

// Write operations take the serialized payload of the desired object. An
// empty repo name addresses the organization scope.

// UpdateOrganization changes organization settings served by the REST API
func (s *Session) UpdateOrganization(ctx context.Context, p model.Payload) error {
	var org github.Organization
	if err := decodeInto(p, &org); err != nil {
		return err
	}
	return s.call(ctx, resourceName(s.org, "", "organization"), func() (*github.Response, error) {
		_, resp, err := s.rest.Organizations.Edit(ctx, s.org, &org)
		return resp, err
	})
}

// UpdateWorkflowSettings changes the Actions policy of the organization or
// of one repository. The allow-list is only written while the policy
// selects actions.
func (s *Session) UpdateWorkflowSettings(ctx context.Context, repo string, p model.Payload) error {
	resource := resourceName(s.org, repo, "workflow settings of")

	if hasAny(p, "enabled_repositories", "enabled", "allowed_actions") {
		err := s.call(ctx, resource, func() (*github.Response, error) {
			if repo == "" {
				var perms github.ActionsPermissions
				if err := decodeInto(p, &perms); err != nil {
					return nil, err
				}
				_, resp, err := s.rest.Actions.EditActionsPermissions(ctx, s.org, perms)
				return resp, err
			}
			var perms github.ActionsPermissionsRepository
			if err := decodeInto(p, &perms); err != nil {
				return nil, err
			}
			_, resp, err := s.rest.Repositories.EditActionsPermissions(ctx, s.org, repo, perms)
			return resp, err
		})
		if err != nil {
			return err
		}
	}

	selected := p["allowed_actions"] == nil || p["allowed_actions"] == "selected"
	if selected && hasAny(p, "github_owned_allowed", "verified_allowed", "patterns_allowed") {
		var allowed github.ActionsAllowed
		if err := decodeInto(p, &allowed); err != nil {
			return err
		}
		err := s.call(ctx, resource, func() (*github.Response, error) {
			var resp *github.Response
			var err error
			if repo == "" {
				_, resp, err = s.rest.Actions.EditActionsAllowed(ctx, s.org, allowed)
			} else {
				_, resp, err = s.rest.Repositories.EditActionsAllowed(ctx, s.org, repo, allowed)
			}
			return resp, err
		})
		if err != nil {
			return err
		}
	}

	if hasAny(p, "default_workflow_permissions", "can_approve_pull_request_reviews") {
		err := s.call(ctx, resource, func() (*github.Response, error) {
			if repo == "" {
				var perms github.DefaultWorkflowPermissionOrganization
				if err := decodeInto(p, &perms); err != nil {
					return nil, err
				}
				_, resp, err := s.rest.Actions.EditDefaultWorkflowPermissionsInOrganization(ctx, s.org, perms)
				return resp, err
			}
			var perms github.DefaultWorkflowPermissionRepository
			if err := decodeInto(p, &perms); err != nil {
				return nil, err
			}
			_, resp, err := s.rest.Repositories.EditDefaultWorkflowPermissions(ctx, s.org, repo, perms)
			return resp, err
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func hasAny(p model.Payload, keys ...string) bool {
	for _, k := range keys {
		if _, ok := p[k]; ok {
			return true
		}
	}
	return false
}

// CreateWebhook creates a webhook and returns its id
func (s *Session) CreateWebhook(ctx context.Context, repo string, p model.Payload) (int64, error) {
	var hook github.Hook
	if err := decodeInto(p, &hook); err != nil {
		return 0, err
	}
	var created *github.Hook
	err := s.call(ctx, resourceName(s.org, repo, "webhook of"), func() (*github.Response, error) {
		var resp *github.Response
		var err error
		if repo == "" {
			created, resp, err = s.rest.Organizations.CreateHook(ctx, s.org, &hook)
		} else {
			created, resp, err = s.rest.Repositories.CreateHook(ctx, s.org, repo, &hook)
		}
		return resp, err
	})
	if err != nil {
		return 0, err
	}
	return created.GetID(), nil
}

// UpdateWebhook changes a webhook
func (s *Session) UpdateWebhook(ctx context.Context, repo string, id int64, p model.Payload) error {
	var hook github.Hook
	if err := decodeInto(p, &hook); err != nil {
		return err
	}
	return s.call(ctx, resourceName(s.org, repo, "webhook of"), func() (*github.Response, error) {
		var resp *github.Response
		var err error
		if repo == "" {
			_, resp, err = s.rest.Organizations.EditHook(ctx, s.org, id, &hook)
		} else {
			_, resp, err = s.rest.Repositories.EditHook(ctx, s.org, repo, id, &hook)
		}
		return resp, err
	})
}

// DeleteWebhook removes a webhook
func (s *Session) DeleteWebhook(ctx context.Context, repo string, id int64) error {
	return s.call(ctx, resourceName(s.org, repo, "webhook of"), func() (*github.Response, error) {
		if repo == "" {
			return s.rest.Organizations.DeleteHook(ctx, s.org, id)
		}
		return s.rest.Repositories.DeleteHook(ctx, s.org, repo, id)
	})
}

// PutSecret encrypts value with the scope's public key and stores it
func (s *Session) PutSecret(ctx context.Context, repo, name, value string, p model.Payload) error {
	resource := resourceName(s.org, repo, "secret "+name+" of")

	var key *github.PublicKey
	err := s.call(ctx, resource, func() (*github.Response, error) {
		var resp *github.Response
		var err error
		if repo == "" {
			key, resp, err = s.rest.Actions.GetOrgPublicKey(ctx, s.org)
		} else {
			key, resp, err = s.rest.Actions.GetRepoPublicKey(ctx, s.org, repo)
		}
		return resp, err
	})
	if err != nil {
		return err
	}

	sealed, err := sealSecret(key.GetKey(), value)
	if err != nil {
		return fmt.Errorf("failed to encrypt secret %s: %w", name, err)
	}
	secret := &github.EncryptedSecret{
		Name:           name,
		KeyID:          key.GetKeyID(),
		EncryptedValue: sealed,
	}
	if v, ok := p["visibility"].(string); ok && repo == "" {
		secret.Visibility = v
	}

	return s.call(ctx, resource, func() (*github.Response, error) {
		if repo == "" {
			if secret.Visibility == "" {
				secret.Visibility = "all"
			}
			return s.rest.Actions.CreateOrUpdateOrgSecret(ctx, s.org, secret)
		}
		return s.rest.Actions.CreateOrUpdateRepoSecret(ctx, s.org, repo, secret)
	})
}

// sealSecret encrypts value as an anonymous sealed box for a base64 public key
func sealSecret(publicKey, value string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(publicKey)
	if err != nil {
		return "", fmt.Errorf("failed to decode public key: %w", err)
	}
	if len(raw) != 32 {
		return "", fmt.Errorf("public key has %d bytes, expected 32", len(raw))
	}
	var key [32]byte
	copy(key[:], raw)

	sealed, err := box.SealAnonymous(nil, []byte(value), &key, rand.Reader)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// DeleteSecret removes a secret
func (s *Session) DeleteSecret(ctx context.Context, repo, name string) error {
	return s.call(ctx, resourceName(s.org, repo, "secret "+name+" of"), func() (*github.Response, error) {
		if repo == "" {
			return s.rest.Actions.DeleteOrgSecret(ctx, s.org, name)
		}
		return s.rest.Actions.DeleteRepoSecret(ctx, s.org, repo, name)
	})
}

func variableFrom(p model.Payload, name string) *github.ActionsVariable {
	v := &github.ActionsVariable{Name: name}
	if value, ok := p["value"].(string); ok {
		v.Value = value
	}
	if vis, ok := p["visibility"].(string); ok {
		v.Visibility = github.String(vis)
	}
	return v
}

// CreateVariable creates a variable
func (s *Session) CreateVariable(ctx context.Context, repo string, p model.Payload) error {
	name, _ := p["name"].(string)
	v := variableFrom(p, name)
	return s.call(ctx, resourceName(s.org, repo, "variable "+name+" of"), func() (*github.Response, error) {
		if repo == "" {
			if v.Visibility == nil {
				v.Visibility = github.String("all")
			}
			return s.rest.Actions.CreateOrgVariable(ctx, s.org, v)
		}
		return s.rest.Actions.CreateRepoVariable(ctx, s.org, repo, v)
	})
}

// UpdateVariable changes the variable currently called name. A different
// name in the payload renames it.
func (s *Session) UpdateVariable(ctx context.Context, repo, name string, p model.Payload) error {
	newName := name
	if n, ok := p["name"].(string); ok && n != "" {
		newName = n
	}
	v := variableFrom(p, newName)
	path := fmt.Sprintf("orgs/%s/actions/variables/%s", s.org, name)
	if repo != "" {
		path = fmt.Sprintf("repos/%s/%s/actions/variables/%s", s.org, repo, name)
	}
	return s.sendJSON(ctx, resourceName(s.org, repo, "variable "+name+" of"), "PATCH", path, v)
}

// DeleteVariable removes a variable
func (s *Session) DeleteVariable(ctx context.Context, repo, name string) error {
	return s.call(ctx, resourceName(s.org, repo, "variable "+name+" of"), func() (*github.Response, error) {
		if repo == "" {
			return s.rest.Actions.DeleteOrgVariable(ctx, s.org, name)
		}
		return s.rest.Actions.DeleteRepoVariable(ctx, s.org, repo, name)
	})
}

// CreateRepository creates a repository, from a template when one is given,
// then applies every setting the create call does not accept
func (s *Session) CreateRepository(ctx context.Context, p model.Payload, template string, autoInit bool) error {
	name, _ := p["name"].(string)
	resource := resourceName(s.org, name, "repository")

	var repo github.Repository
	if err := decodeInto(p, &repo); err != nil {
		return err
	}

	err := s.call(ctx, resource, func() (*github.Response, error) {
		if template != "" {
			owner, tmpl := splitTemplate(s.org, template)
			req := &github.TemplateRepoRequest{
				Name:        github.String(name),
				Owner:       github.String(s.org),
				Description: repo.Description,
			}
			if vis := repo.GetVisibility(); vis != "" {
				req.Private = github.Bool(vis != "public")
			}
			_, resp, err := s.rest.Repositories.CreateFromTemplate(ctx, owner, tmpl, req)
			return resp, err
		}
		if autoInit {
			repo.AutoInit = github.Bool(true)
		}
		_, resp, err := s.rest.Repositories.Create(ctx, s.org, &repo)
		return resp, err
	})
	if err != nil {
		return err
	}

	rest := model.Payload{}
	for k, v := range p {
		if k != "name" {
			rest[k] = v
		}
	}
	if len(rest) == 0 {
		return nil
	}
	return s.UpdateRepository(ctx, name, rest)
}

func splitTemplate(org, template string) (string, string) {
	for i := 0; i < len(template); i++ {
		if template[i] == '/' {
			return template[:i], template[i+1:]
		}
	}
	return org, template
}

// UpdateRepository changes the repository currently called name. Topics are
// replaced through their own endpoint.
func (s *Session) UpdateRepository(ctx context.Context, name string, p model.Payload) error {
	resource := resourceName(s.org, name, "repository")

	settings := model.Payload{}
	for k, v := range p {
		if k != "topics" {
			settings[k] = v
		}
	}
	if len(settings) > 0 {
		var repo github.Repository
		if err := decodeInto(settings, &repo); err != nil {
			return err
		}
		err := s.call(ctx, resource, func() (*github.Response, error) {
			_, resp, err := s.rest.Repositories.Edit(ctx, s.org, name, &repo)
			return resp, err
		})
		if err != nil {
			return err
		}
		if n := repo.GetName(); n != "" {
			name = n
		}
	}

	if topics, ok := p["topics"]; ok {
		list, _ := topics.([]string)
		if list == nil {
			list = []string{}
		}
		err := s.call(ctx, resource, func() (*github.Response, error) {
			_, resp, err := s.rest.Repositories.ReplaceAllTopics(ctx, s.org, name, list)
			return resp, err
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// DeleteRepository removes a repository
func (s *Session) DeleteRepository(ctx context.Context, name string) error {
	return s.call(ctx, resourceName(s.org, name, "repository"), func() (*github.Response, error) {
		return s.rest.Repositories.Delete(ctx, s.org, name)
	})
}

// PutEnvironment creates or updates an environment
func (s *Session) PutEnvironment(ctx context.Context, repo, name string, p model.Payload) error {
	var env github.CreateUpdateEnvironment
	if err := decodeInto(p, &env); err != nil {
		return err
	}
	return s.call(ctx, resourceName(s.org, repo, "environment "+name+" of"), func() (*github.Response, error) {
		_, resp, err := s.rest.Repositories.CreateUpdateEnvironment(ctx, s.org, repo, name, &env)
		return resp, err
	})
}

// DeleteEnvironment removes an environment
func (s *Session) DeleteEnvironment(ctx context.Context, repo, name string) error {
	return s.call(ctx, resourceName(s.org, repo, "environment "+name+" of"), func() (*github.Response, error) {
		return s.rest.Repositories.DeleteEnvironment(ctx, s.org, repo, name)
	})
}

func (s *Session) rulesetPath(repo string) string {
	if repo == "" {
		return fmt.Sprintf("orgs/%s/rulesets", s.org)
	}
	return fmt.Sprintf("repos/%s/%s/rulesets", s.org, repo)
}

// CreateRuleset creates a ruleset
func (s *Session) CreateRuleset(ctx context.Context, repo string, p model.Payload) error {
	return s.sendJSON(ctx, resourceName(s.org, repo, "ruleset of"), "POST", s.rulesetPath(repo), p)
}

// UpdateRuleset replaces a ruleset
func (s *Session) UpdateRuleset(ctx context.Context, repo string, id int64, p model.Payload) error {
	return s.sendJSON(ctx, resourceName(s.org, repo, "ruleset of"), "PUT", fmt.Sprintf("%s/%d", s.rulesetPath(repo), id), p)
}

// DeleteRuleset removes a ruleset
func (s *Session) DeleteRuleset(ctx context.Context, repo string, id int64) error {
	return s.sendJSON(ctx, resourceName(s.org, repo, "ruleset of"), "DELETE", fmt.Sprintf("%s/%d", s.rulesetPath(repo), id), nil)
}

func newTeam(p model.Payload, name string) github.NewTeam {
	team := github.NewTeam{Name: name}
	if n, ok := p["name"].(string); ok && n != "" {
		team.Name = n
	}
	if d, ok := p["description"].(string); ok {
		team.Description = github.String(d)
	}
	if v, ok := p["privacy"].(string); ok {
		team.Privacy = github.String(v)
	}
	return team
}

// CreateTeam creates a team and returns its slug
func (s *Session) CreateTeam(ctx context.Context, p model.Payload) (string, error) {
	team := newTeam(p, "")
	var created *github.Team
	err := s.call(ctx, fmt.Sprintf("team %s/%s", s.org, team.Name), func() (*github.Response, error) {
		var resp *github.Response
		var err error
		created, resp, err = s.rest.Teams.CreateTeam(ctx, s.org, team)
		return resp, err
	})
	if err != nil {
		return "", err
	}
	return created.GetSlug(), nil
}

// UpdateTeam changes a team's settings and returns its slug, which follows
// the team's name
func (s *Session) UpdateTeam(ctx context.Context, slug string, p model.Payload) (string, error) {
	team := newTeam(p, slug)
	var updated *github.Team
	err := s.call(ctx, fmt.Sprintf("team %s/%s", s.org, slug), func() (*github.Response, error) {
		var resp *github.Response
		var err error
		updated, resp, err = s.rest.Teams.EditTeamBySlug(ctx, s.org, slug, team, false)
		return resp, err
	})
	if err != nil {
		return "", err
	}
	if updated.GetSlug() != "" {
		return updated.GetSlug(), nil
	}
	return slug, nil
}

// DeleteTeam removes a team
func (s *Session) DeleteTeam(ctx context.Context, slug string) error {
	return s.call(ctx, fmt.Sprintf("team %s/%s", s.org, slug), func() (*github.Response, error) {
		return s.rest.Teams.DeleteTeamBySlug(ctx, s.org, slug)
	})
}

// AddTeamMember adds a user to a team
func (s *Session) AddTeamMember(ctx context.Context, slug, user string) error {
	return s.call(ctx, fmt.Sprintf("team %s/%s member %s", s.org, slug, user), func() (*github.Response, error) {
		_, resp, err := s.rest.Teams.AddTeamMembershipBySlug(ctx, s.org, slug, user, &github.TeamAddTeamMembershipOptions{Role: "member"})
		return resp, err
	})
}

// RemoveTeamMember removes a user from a team
func (s *Session) RemoveTeamMember(ctx context.Context, slug, user string) error {
	return s.call(ctx, fmt.Sprintf("team %s/%s member %s", s.org, slug, user), func() (*github.Response, error) {
		return s.rest.Teams.RemoveTeamMembershipBySlug(ctx, s.org, slug, user)
	})
}

// CreateRole creates a custom organization role
func (s *Session) CreateRole(ctx context.Context, p model.Payload) error {
	var opts github.CreateOrUpdateOrgRoleOptions
	if err := decodeInto(p, &opts); err != nil {
		return err
	}
	if opts.Permissions == nil {
		opts.Permissions = []string{}
	}
	return s.call(ctx, resourceName(s.org, "", "custom role of"), func() (*github.Response, error) {
		_, resp, err := s.rest.Organizations.CreateCustomOrgRole(ctx, s.org, &opts)
		return resp, err
	})
}

// UpdateRole changes a custom organization role
func (s *Session) UpdateRole(ctx context.Context, id int64, p model.Payload) error {
	var opts github.CreateOrUpdateOrgRoleOptions
	if err := decodeInto(p, &opts); err != nil {
		return err
	}
	return s.call(ctx, resourceName(s.org, "", "custom role of"), func() (*github.Response, error) {
		_, resp, err := s.rest.Organizations.UpdateCustomOrgRole(ctx, s.org, id, &opts)
		return resp, err
	})
}

// DeleteRole removes a custom organization role
func (s *Session) DeleteRole(ctx context.Context, id int64) error {
	return s.call(ctx, resourceName(s.org, "", "custom role of"), func() (*github.Response, error) {
		return s.rest.Organizations.DeleteCustomOrgRole(ctx, s.org, id)
	})
}

// PutCustomProperty creates or replaces a custom property definition
func (s *Session) PutCustomProperty(ctx context.Context, name string, p model.Payload) error {
	var prop github.CustomProperty
	if err := decodeInto(p, &prop); err != nil {
		return err
	}
	prop.PropertyName = nil
	return s.call(ctx, resourceName(s.org, "", "custom property "+name+" of"), func() (*github.Response, error) {
		_, resp, err := s.rest.Organizations.CreateOrUpdateCustomProperty(ctx, s.org, name, &prop)
		return resp, err
	})
}

// DeleteCustomProperty removes a custom property definition
func (s *Session) DeleteCustomProperty(ctx context.Context, name string) error {
	return s.call(ctx, resourceName(s.org, "", "custom property "+name+" of"), func() (*github.Response, error) {
		return s.rest.Organizations.RemoveCustomProperty(ctx, s.org, name)
	})
}
