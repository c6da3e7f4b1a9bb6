package model

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleOrganization = `
login: acme
name: Acme Inc
billing_email: billing@acme.test
default_repository_permission: read
members_can_create_teams: false
workflows:
  allowed_actions: selected
  allow_github_owned_actions: true
  allow_action_patterns: ["acme/*"]
webhooks:
  - url: https://hooks.acme.test/ci
    events: [push, pull_request]
    content_type: json
    secret: s3cret
secrets:
  - name: DEPLOY_KEY
    value: abc
    visibility: private
repositories:
  - name: api
    aliases: [api-server]
    description: The API
    topics: [go, api]
    branch_protection_rules:
      - pattern: main
        requires_approving_reviews: true
        required_approving_review_count: 2
    rulesets:
      - name: protect-tags
        target: tag
        enforcement: active
        include_refs: ["refs/tags/v*"]
        allows_deletions: false
`

func TestDecodeConfig(t *testing.T) {
	org, err := DecodeConfig(OrganizationSchema, "acme.yaml", []byte(sampleOrganization))
	require.NoError(t, err)

	assert.Equal(t, "acme", org.Key())
	assert.Equal(t, "Acme Inc", org.String("name"))
	assert.False(t, org.Bool("members_can_create_teams"))
	assert.True(t, org.Has("members_can_create_teams"))

	wf := org.Embedded(FieldWorkflows)
	require.NotNil(t, wf)
	assert.Equal(t, []string{"acme/*"}, wf.List("allow_action_patterns"))

	hooks := org.Children(FieldWebhooks)
	require.Len(t, hooks, 1)
	assert.Equal(t, "https://hooks.acme.test/ci", hooks[0].Key())
	assert.Equal(t, "s3cret", hooks[0].String("secret"))

	repo := org.Child(FieldRepositories, "API")
	require.NotNil(t, repo, "repository keys fold case")
	assert.Equal(t, []string{"api-server"}, repo.Aliases())
	assert.Equal(t, int64(2), repo.Children(FieldBranchProtectionRules)[0].Int("required_approving_review_count"))
	assert.False(t, org.HasCollection(FieldTeams))
}

func TestDecodeConfigErrors(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		wantFormat bool
		wantPath   string
	}{
		{
			name:       "malformed yaml",
			input:      "login: [acme",
			wantFormat: true,
		},
		{
			name:     "unknown field",
			input:    "login: acme\nnmae: typo\n",
			wantPath: "Organization.nmae",
		},
		{
			name:     "mistyped field",
			input:    "login: acme\nhas_repository_projects: \"yes\"\n",
			wantPath: "Organization.has_repository_projects",
		},
		{
			name:     "duplicate key",
			input:    "login: acme\nsecrets:\n  - name: A\n  - name: a\n",
			wantPath: "Organization.secrets[1]",
		},
		{
			name:     "missing key",
			input:    "login: acme\nteams:\n  - description: no name\n",
			wantPath: "Organization.teams[0]",
		},
		{
			name:     "collection is not a list",
			input:    "login: acme\nwebhooks: {}\n",
			wantPath: "Organization.webhooks",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeConfig(OrganizationSchema, "test.yaml", []byte(tt.input))
			require.Error(t, err)

			if tt.wantFormat {
				var formatErr *ConfigFormatError
				assert.True(t, errors.As(err, &formatErr))
				return
			}
			var schemaErr *ConfigSchemaError
			require.True(t, errors.As(err, &schemaErr), "got %T: %v", err, err)
			assert.Equal(t, tt.wantPath, schemaErr.Path)
		})
	}
}

// sample values for fields whose payload shape depends on the value
var sampleOverrides = map[string]any{
	"Environment.deployment_branch_policy": "protected",
	"Ruleset.bypass_actors":                []string{"Team:5:always", "OrganizationAdmin:1:pull_request"},
}

func sampleObject(s *Schema) *Object {
	o := New(s)
	for i := range s.Fields {
		f := &s.Fields[i]
		if v, ok := sampleOverrides[s.Type+"."+f.Name]; ok {
			o.Set(f.Name, v)
			continue
		}
		switch f.Kind {
		case KindEmbedded:
			o.SetEmbedded(f.Name, sampleObject(f.Schema))
			continue
		case KindCollection, KindReadOnly, KindModelOnly:
			continue
		}
		switch f.Type {
		case TypeString:
			o.Set(f.Name, "x-"+f.Name)
		case TypeBool:
			o.Set(f.Name, true)
		case TypeInt:
			o.Set(f.Name, 3)
		case TypeList:
			o.Set(f.Name, []string{"a", "b"})
		}
	}
	return o
}

func assertWritableEqual(t *testing.T, want, got *Object, path string) {
	t.Helper()
	s := want.Schema()
	for i := range s.Fields {
		f := &s.Fields[i]
		p := path + "." + f.Name
		switch {
		case f.Kind == KindEmbedded:
			require.NotNil(t, got.Embedded(f.Name), p)
			assertWritableEqual(t, want.Embedded(f.Name), got.Embedded(f.Name), p)
		case f.Writable():
			assert.True(t, Equal(want.Get(f.Name), got.Get(f.Name), f.Ordered), "%s: want %v, got %v", p, want.Get(f.Name), got.Get(f.Name))
		}
	}
}

func TestSerializeRoundTrip(t *testing.T) {
	seen := map[*Schema]bool{}
	var schemas []*Schema
	var collect func(s *Schema)
	collect = func(s *Schema) {
		if seen[s] {
			return
		}
		seen[s] = true
		schemas = append(schemas, s)
		for i := range s.Fields {
			if s.Fields[i].Schema != nil {
				collect(s.Fields[i].Schema)
			}
		}
	}
	collect(OrganizationSchema)

	for i, s := range schemas {
		t.Run(fmt.Sprintf("%02d_%s", i, s.Type), func(t *testing.T) {
			m := sampleObject(s)
			back, err := FromWritePayload(s, Serialize(m))
			require.NoError(t, err)
			assertWritableEqual(t, m, back, s.Type)
		})
	}
}

func TestSerializeOmitsNonWritableFields(t *testing.T) {
	repo := New(RepositorySchema).
		Set("name", "api").
		Set("node_id", "R_123").
		Set("auto_init", true).
		Set("secret_scanning", "enabled").
		AddChild(FieldWebhooks, New(WebhookSchema).Set("url", "https://a.test"))

	p := Serialize(repo)
	assert.Equal(t, "api", p["name"])
	assert.NotContains(t, p, "node_id")
	assert.NotContains(t, p, "auto_init")
	assert.NotContains(t, p, FieldWebhooks)
	v, ok := Lookup(p, "security_and_analysis.secret_scanning.status")
	assert.True(t, ok)
	assert.Equal(t, "enabled", v)
}

func TestFromProviderWebhook(t *testing.T) {
	payload := Payload{
		"id":     float64(42),
		"active": true,
		"events": []any{"push"},
		"config": map[string]any{
			"url":          "https://a.test",
			"content_type": "json",
			"insecure_ssl": "0",
			"secret":       Redacted,
		},
		"created_at": "2024-01-01T00:00:00Z",
	}

	hook, err := FromProvider(WebhookSchema, payload)
	require.NoError(t, err)
	assert.Equal(t, "https://a.test", hook.Key())
	assert.Equal(t, int64(42), hook.Int("id"))
	assert.True(t, IsRedacted(hook.Get("secret")))
	assert.Equal(t, []string{"push"}, hook.List("events"))
}

func TestFromProviderRuleset(t *testing.T) {
	payload := Payload{
		"id":          float64(7),
		"name":        "main",
		"target":      "branch",
		"enforcement": "active",
		"conditions": map[string]any{
			"ref_name": map[string]any{"include": []any{"~DEFAULT_BRANCH"}, "exclude": []any{}},
		},
		"bypass_actors": []any{
			map[string]any{"actor_id": float64(5), "actor_type": "Team", "bypass_mode": "always"},
		},
		"rules": []any{
			map[string]any{"type": "deletion"},
			map[string]any{"type": "pull_request", "parameters": map[string]any{"required_approving_review_count": float64(1)}},
			map[string]any{"type": "required_status_checks", "parameters": map[string]any{
				"strict_required_status_checks_policy": true,
				"required_status_checks":               []any{map[string]any{"context": "ci"}},
			}},
		},
	}

	rs, err := FromProvider(RepositoryRulesetSchema, payload)
	require.NoError(t, err)
	assert.False(t, rs.Bool("allows_deletions"))
	assert.True(t, rs.Bool("allows_force_pushes"))
	assert.True(t, rs.Bool("requires_pull_request"))
	assert.False(t, rs.Bool("requires_merge_queue"))
	assert.Equal(t, int64(1), rs.Embedded("pull_request").Int("required_approving_review_count"))
	assert.Nil(t, rs.Embedded("merge_queue"))
	assert.Equal(t, []string{"ci"}, rs.List("required_status_checks"))
	assert.True(t, rs.Bool("strict_status_checks"))
	assert.Equal(t, []string{"Team:5:always"}, rs.List("bypass_actors"))
	assert.Equal(t, []string{"~DEFAULT_BRANCH"}, rs.List("include_refs"))
}

func TestFromProviderEnvironment(t *testing.T) {
	payload := Payload{
		"name": "production",
		"protection_rules": []any{
			map[string]any{"type": "wait_timer", "wait_timer": float64(30)},
			map[string]any{"type": "required_reviewers", "prevent_self_review": true},
		},
		"deployment_branch_policy": nil,
	}

	env, err := FromProvider(EnvironmentSchema, payload)
	require.NoError(t, err)
	assert.Equal(t, int64(30), env.Int("wait_timer"))
	assert.True(t, env.Bool("prevent_self_review"))
	assert.Equal(t, "all", env.String("deployment_branch_policy"))
}

func TestToConfigRoundTrip(t *testing.T) {
	org, err := DecodeConfig(OrganizationSchema, "acme.yaml", []byte(sampleOrganization))
	require.NoError(t, err)

	again, err := FromConfig(OrganizationSchema, ToConfig(org))
	require.NoError(t, err)
	assert.Equal(t, ToConfig(org), ToConfig(again))
}

func TestExpandSecurityFeatures(t *testing.T) {
	repo := New(RepositorySchema).
		Set("name", "api").
		Set("security_features", true).
		Set("dependabot_security_updates", "disabled")

	expanded := repo.Expanded()
	assert.Equal(t, "enabled", expanded.String("secret_scanning"))
	assert.Equal(t, "enabled", expanded.String("secret_scanning_push_protection"))
	assert.Equal(t, "disabled", expanded.String("dependabot_security_updates"))
	assert.False(t, repo.Has("secret_scanning"), "original is left untouched")
}
