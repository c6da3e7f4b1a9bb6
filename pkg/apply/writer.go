package apply

import (
	"context"

	"orgsync/pkg/model"
)

// Writer performs provider write calls for one organization. An empty repo
// addresses the organization scope. *provider.Session implements it.
type Writer interface {
	UpdateOrganization(ctx context.Context, p model.Payload) error
	UpdateOrganizationWebSettings(ctx context.Context, p model.Payload) error
	UpdateWorkflowSettings(ctx context.Context, repo string, p model.Payload) error

	CreateRepository(ctx context.Context, p model.Payload, template string, autoInit bool) error
	UpdateRepository(ctx context.Context, name string, p model.Payload) error
	DeleteRepository(ctx context.Context, name string) error

	CreateWebhook(ctx context.Context, repo string, p model.Payload) (int64, error)
	UpdateWebhook(ctx context.Context, repo string, id int64, p model.Payload) error
	DeleteWebhook(ctx context.Context, repo string, id int64) error

	PutSecret(ctx context.Context, repo, name, value string, p model.Payload) error
	DeleteSecret(ctx context.Context, repo, name string) error

	CreateVariable(ctx context.Context, repo string, p model.Payload) error
	UpdateVariable(ctx context.Context, repo, name string, p model.Payload) error
	DeleteVariable(ctx context.Context, repo, name string) error

	PutEnvironment(ctx context.Context, repo, name string, p model.Payload) error
	DeleteEnvironment(ctx context.Context, repo, name string) error

	CreateBranchProtectionRule(ctx context.Context, repo string, p model.Payload) (string, error)
	UpdateBranchProtectionRule(ctx context.Context, id string, p model.Payload) error
	DeleteBranchProtectionRule(ctx context.Context, id string) error

	CreateRuleset(ctx context.Context, repo string, p model.Payload) error
	UpdateRuleset(ctx context.Context, repo string, id int64, p model.Payload) error
	DeleteRuleset(ctx context.Context, repo string, id int64) error

	CreateTeam(ctx context.Context, p model.Payload) (string, error)
	UpdateTeam(ctx context.Context, slug string, p model.Payload) (string, error)
	DeleteTeam(ctx context.Context, slug string) error
	AddTeamMember(ctx context.Context, slug, user string) error
	RemoveTeamMember(ctx context.Context, slug, user string) error

	CreateRole(ctx context.Context, p model.Payload) error
	UpdateRole(ctx context.Context, id int64, p model.Payload) error
	DeleteRole(ctx context.Context, id int64) error

	PutCustomProperty(ctx context.Context, name string, p model.Payload) error
	DeleteCustomProperty(ctx context.Context, name string) error
}
