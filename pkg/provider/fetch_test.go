package provider

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orgsync/pkg/model"
)

// fakeWebClient serves web settings from memory
type fakeWebClient struct {
	settings model.Payload
	readErr  error
	written  []model.Payload
	closed   bool
}

func (f *fakeWebClient) ReadSettings(_ context.Context, _ string, fields []string) (model.Payload, error) {
	if f.readErr != nil {
		return nil, f.readErr
	}
	out := model.Payload{}
	for _, name := range fields {
		if v, ok := f.settings[name]; ok {
			out[name] = v
		}
	}
	return out, nil
}

func (f *fakeWebClient) WriteSettings(_ context.Context, _ string, settings model.Payload) error {
	f.written = append(f.written, settings)
	return nil
}

func (f *fakeWebClient) Close() error {
	f.closed = true
	return nil
}

func webFactory(client WebClient, err error) WebClientFactory {
	return func(context.Context, string, Credentials) (WebClient, error) {
		if err != nil {
			return nil, err
		}
		return client, nil
	}
}

// organizationResponses is a small but complete organization with one repository
func organizationResponses() map[string]any {
	return map[string]any{
		"GET /orgs/acme": map[string]any{
			"login":                          "acme",
			"name":                           "Acme",
			"billing_email":                  "billing@acme.test",
			"plan":                           map[string]any{"name": "team"},
			"two_factor_requirement_enabled": true,
			"default_repository_permission":  "read",
		},
		"GET /orgs/acme/actions/permissions": map[string]any{
			"enabled_repositories": "all",
			"allowed_actions":      "selected",
		},
		"GET /orgs/acme/actions/permissions/selected-actions": map[string]any{
			"github_owned_allowed": true,
			"verified_allowed":     false,
			"patterns_allowed":     []string{"acme/*"},
		},
		"GET /orgs/acme/actions/permissions/workflow": map[string]any{
			"default_workflow_permissions":     "read",
			"can_approve_pull_request_reviews": false,
		},
		"GET /orgs/acme/hooks": []any{
			map[string]any{
				"id":     11,
				"active": true,
				"events": []string{"push"},
				"config": map[string]any{"url": "https://hooks.acme.test/ci", "content_type": "json", "insecure_ssl": "0"},
			},
		},
		"GET /orgs/acme/actions/secrets": map[string]any{
			"total_count": 1,
			"secrets":     []any{map[string]any{"name": "DEPLOY_KEY", "visibility": "private"}},
		},
		"GET /orgs/acme/actions/variables": map[string]any{
			"total_count": 1,
			"variables":   []any{map[string]any{"name": "REGION", "value": "eu-west-1", "visibility": "all"}},
		},
		"GET /orgs/acme/rulesets": []any{},
		"GET /orgs/acme/teams": []any{
			map[string]any{"id": 7, "slug": "core", "name": "Core", "privacy": "closed"},
		},
		"GET /orgs/acme/teams/core/members": []any{
			map[string]any{"login": "alice"},
			map[string]any{"login": "bob"},
		},
		"GET /orgs/acme/organization-roles": map[string]any{
			"total_count": 2,
			"roles": []any{
				map[string]any{"id": 1, "name": "all_repo_admin", "source": "Predefined"},
				map[string]any{"id": 9, "name": "auditor", "source": "Organization", "permissions": []string{"read_audit_logs"}},
			},
		},
		"GET /orgs/acme/properties/schema": []any{
			map[string]any{"property_name": "tier", "value_type": "single_select", "allowed_values": []string{"gold", "silver"}},
		},
		"GET /orgs/acme/repos": []any{
			map[string]any{"id": 1, "name": "api", "node_id": "R_api", "visibility": "private", "topics": []string{"go"}},
		},
		"GET /repos/acme/api/actions/permissions": map[string]any{
			"enabled":         true,
			"allowed_actions": "all",
		},
		"GET /repos/acme/api/actions/permissions/workflow": map[string]any{
			"default_workflow_permissions":     "write",
			"can_approve_pull_request_reviews": true,
		},
		"GET /repos/acme/api/hooks":             []any{},
		"GET /repos/acme/api/actions/secrets":   map[string]any{"total_count": 0, "secrets": []any{}},
		"GET /repos/acme/api/actions/variables": map[string]any{"total_count": 0, "variables": []any{}},
		"GET /repos/acme/api/environments": map[string]any{
			"total_count": 1,
			"environments": []any{
				map[string]any{
					"name": "prod",
					"protection_rules": []any{
						map[string]any{"id": 1, "type": "wait_timer", "wait_timer": 30},
					},
				},
			},
		},
		"GET /repos/acme/api/rulesets": []any{
			map[string]any{"id": 42, "name": "main"},
		},
		"GET /repos/acme/api/rulesets/42": map[string]any{
			"id":          42,
			"name":        "main",
			"target":      "branch",
			"enforcement": "active",
			"conditions":  map[string]any{"ref_name": map[string]any{"include": []string{"~DEFAULT_BRANCH"}, "exclude": []string{}}},
			"rules":       []any{map[string]any{"type": "deletion"}},
		},
		"POST /graphql": map[string]any{
			"data": map[string]any{
				"organization": map[string]any{
					"repositories": map[string]any{
						"nodes": []any{
							map[string]any{
								"name": "api",
								"branchProtectionRules": map[string]any{
									"nodes": []any{protectionRuleNode("BPR_1", "main")},
								},
							},
						},
						"pageInfo": map[string]any{"endCursor": "c1", "hasNextPage": false},
					},
				},
			},
		},
	}
}

func protectionRuleNode(id, pattern string) map[string]any {
	return map[string]any{
		"id":                             id,
		"pattern":                        pattern,
		"allowsDeletions":                false,
		"allowsForcePushes":              false,
		"blocksCreations":                false,
		"isAdminEnforced":                true,
		"lockBranch":                     false,
		"requiresApprovingReviews":       true,
		"requiredApprovingReviewCount":   2,
		"dismissesStaleReviews":          true,
		"requiresCodeOwnerReviews":       false,
		"requireLastPushApproval":        false,
		"requiresCommitSignatures":       false,
		"requiresConversationResolution": true,
		"requiresLinearHistory":          true,
		"requiresStatusChecks":           true,
		"requiresStrictStatusChecks":     true,
		"requiredStatusCheckContexts":    []string{"ci/build"},
		"restrictsPushes":                false,
	}
}

func TestFetchLive(t *testing.T) {
	srv := newMockServer(t, organizationResponses())
	web := &fakeWebClient{settings: model.Payload{
		"members_can_create_teams":     false,
		"default_branch_name":          "main",
		"packages_containers_public":   true,
		"packages_containers_internal": true,
	}}
	p := newTestProvider(t, srv, WithWebClient(webFactory(web, nil)))

	live, warnings, err := p.FetchLive(context.Background(), "acme", testCreds)
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.True(t, web.closed)

	t.Run("organization", func(t *testing.T) {
		assert.Equal(t, "acme", live.Key())
		assert.Equal(t, "Acme", live.String("name"))
		assert.Equal(t, "team", live.String("plan"))
		assert.True(t, live.Bool("two_factor_requirement"))
		assert.Equal(t, "main", live.String("default_branch_name"))
		assert.False(t, live.Bool("members_can_create_teams"))
	})

	t.Run("workflow settings", func(t *testing.T) {
		wf := live.Embedded(model.FieldWorkflows)
		require.NotNil(t, wf)
		assert.Equal(t, "selected", wf.String("allowed_actions"))
		assert.True(t, wf.Bool("allow_github_owned_actions"))
		assert.Equal(t, []string{"acme/*"}, wf.List("allow_action_patterns"))
		assert.Equal(t, "read", wf.String("default_workflow_permissions"))
	})

	t.Run("organization collections", func(t *testing.T) {
		hook := live.Child(model.FieldWebhooks, "https://hooks.acme.test/ci")
		require.NotNil(t, hook)
		assert.Equal(t, int64(11), hook.Int("id"))
		assert.Equal(t, "json", hook.String("content_type"))

		secret := live.Child(model.FieldSecrets, "DEPLOY_KEY")
		require.NotNil(t, secret)
		assert.Equal(t, model.Redacted, secret.String("value"))
		assert.Equal(t, "private", secret.String("visibility"))

		variable := live.Child(model.FieldVariables, "REGION")
		require.NotNil(t, variable)
		assert.Equal(t, "eu-west-1", variable.String("value"))

		team := live.Child(model.FieldTeams, "Core")
		require.NotNil(t, team)
		assert.Equal(t, "core", team.String("slug"))
		assert.Equal(t, []string{"alice", "bob"}, team.List("members"))

		roles := live.Children(model.FieldRoles)
		require.Len(t, roles, 1)
		assert.Equal(t, "auditor", roles[0].Key())

		prop := live.Child(model.FieldCustomProperties, "tier")
		require.NotNil(t, prop)
		assert.Equal(t, []string{"gold", "silver"}, prop.List("allowed_values"))
	})

	t.Run("repository", func(t *testing.T) {
		repo := live.Child(model.FieldRepositories, "api")
		require.NotNil(t, repo)
		assert.Equal(t, "R_api", repo.String("node_id"))
		assert.Equal(t, []string{"go"}, repo.List("topics"))

		wf := repo.Embedded(model.FieldWorkflows)
		require.NotNil(t, wf)
		assert.True(t, wf.Bool("enabled"))
		assert.Equal(t, "write", wf.String("default_workflow_permissions"))

		env := repo.Child(model.FieldEnvironments, "prod")
		require.NotNil(t, env)
		assert.Equal(t, int64(30), env.Int("wait_timer"))
		assert.Equal(t, "all", env.String("deployment_branch_policy"))

		rule := repo.Child(model.FieldBranchProtectionRules, "main")
		require.NotNil(t, rule)
		assert.Equal(t, "BPR_1", rule.String("id"))
		assert.Equal(t, int64(2), rule.Int("required_approving_review_count"))
		assert.Equal(t, []string{"ci/build"}, rule.List("required_status_checks"))

		ruleset := repo.Child(model.FieldRulesets, "main")
		require.NotNil(t, ruleset)
		assert.Equal(t, int64(42), ruleset.Int("id"))
		assert.False(t, ruleset.Bool("allows_deletions"))
		assert.True(t, ruleset.Bool("allows_force_pushes"))
		assert.Equal(t, []string{"~DEFAULT_BRANCH"}, ruleset.List("include_refs"))

		assert.Empty(t, repo.Children(model.FieldWebhooks))
		assert.Empty(t, repo.Children(model.FieldSecrets))
	})

	t.Run("requests carry the token", func(t *testing.T) {
		requests := srv.received("GET /orgs/acme")
		require.NotEmpty(t, requests)
		assert.Equal(t, "Bearer test-token", requests[0].Header.Get("Authorization"))
	})
}

func TestFetchLive_WebFailureIsWarning(t *testing.T) {
	tests := []struct {
		name    string
		factory WebClientFactory
	}{
		{"web disabled", nil},
		{"login fails", webFactory(nil, &Error{Type: ErrorTypeAuth, Message: "web login rejected"})},
		{"read fails", webFactory(&fakeWebClient{readErr: errors.New("selector not found")}, nil)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newMockServer(t, organizationResponses())
			p := newTestProvider(t, srv, WithWebClient(tt.factory))

			live, warnings, err := p.FetchLive(context.Background(), "acme", testCreds)
			require.NoError(t, err)
			require.NotNil(t, live)
			require.Len(t, warnings, 1)
			assert.Equal(t, model.SourceWeb, warnings[0].Source)
			assert.Equal(t, "acme", warnings[0].Org)
			assert.False(t, live.Has("default_branch_name"))
			assert.Equal(t, "Acme", live.String("name"))
		})
	}
}

func TestFetchLive_Errors(t *testing.T) {
	t.Run("unauthorized token fails the fetch", func(t *testing.T) {
		srv := newMockServer(t, organizationResponses())
		srv.set("GET /orgs/acme", reply{status: http.StatusUnauthorized, body: map[string]any{"message": "Bad credentials"}})
		p := newTestProvider(t, srv)

		_, _, err := p.FetchLive(context.Background(), "acme", testCreds)
		assert.True(t, IsType(err, ErrorTypeAuth))
		assert.True(t, IsFatal(err))
	})

	t.Run("missing scope is reported", func(t *testing.T) {
		srv := newMockServer(t, organizationResponses())
		srv.set("GET /orgs/acme/hooks", reply{
			status: http.StatusNotFound,
			header: map[string]string{"X-Accepted-OAuth-Scopes": "admin:org_hook", "X-OAuth-Scopes": "repo"},
			body:   map[string]any{"message": "Not Found"},
		})
		p := newTestProvider(t, srv)

		_, _, err := p.FetchLive(context.Background(), "acme", testCreds)
		var perr *Error
		require.ErrorAs(t, err, &perr)
		assert.Equal(t, ErrorTypeInsufficientPermissions, perr.Type)
		assert.Equal(t, "admin:org_hook", perr.Scope)
	})

	t.Run("transient errors are retried", func(t *testing.T) {
		srv := newMockServer(t, organizationResponses())
		calls := 0
		srv.set("GET /orgs/acme/teams", func(r *http.Request) reply {
			calls++
			if calls == 1 {
				return reply{status: http.StatusBadGateway, body: map[string]any{"message": "Bad Gateway"}}
			}
			return reply{body: []any{}}
		})
		p := newTestProvider(t, srv)

		live, _, err := p.FetchLive(context.Background(), "acme", testCreds)
		require.NoError(t, err)
		assert.Empty(t, live.Children(model.FieldTeams))
		assert.Len(t, srv.received("GET /orgs/acme/teams"), 2)
	})

	t.Run("empty token", func(t *testing.T) {
		srv := newMockServer(t, organizationResponses())
		p := newTestProvider(t, srv)

		_, _, err := p.FetchLive(context.Background(), "acme", staticCredentials{})
		assert.True(t, IsType(err, ErrorTypeAuth))
		assert.Empty(t, srv.received("GET /orgs/acme"))
	})
}

func TestFetchLive_SharedCacheRevalidates(t *testing.T) {
	srv := newMockServer(t, organizationResponses())
	srv.set("GET /orgs/acme", func(r *http.Request) reply {
		if r.Header.Get("If-None-Match") == `"org-v1"` {
			return reply{status: http.StatusNotModified}
		}
		return reply{header: map[string]string{"ETag": `"org-v1"`}, body: map[string]any{"login": "acme", "name": "Acme"}}
	})
	p := newTestProvider(t, srv)

	for i := 0; i < 2; i++ {
		live, _, err := p.FetchLive(context.Background(), "acme", testCreds)
		require.NoError(t, err)
		assert.Equal(t, "Acme", live.String("name"))
	}

	requests := srv.received("GET /orgs/acme")
	require.Len(t, requests, 2)
	assert.Equal(t, `"org-v1"`, requests[1].Header.Get("If-None-Match"))
}

func TestFetchLive_OptionalCollections(t *testing.T) {
	srv := newMockServer(t, organizationResponses())
	srv.set("GET /orgs/acme/organization-roles", reply{status: http.StatusNotFound, body: map[string]any{"message": "Not Found"}})
	p := newTestProvider(t, srv, WithWebClient(webFactory(&fakeWebClient{}, nil)))

	live, warnings, err := p.FetchLive(context.Background(), "acme", testCreds)
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	assert.Equal(t, model.SourceREST, warnings[0].Source)
	assert.Contains(t, warnings[0].String(), "roles unavailable")
	assert.False(t, live.HasCollection(model.FieldRoles))
	assert.True(t, live.HasCollection(model.FieldCustomProperties))
}
