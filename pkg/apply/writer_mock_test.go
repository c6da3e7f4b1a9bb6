package apply

import (
	"context"

	"github.com/stretchr/testify/mock"

	"orgsync/pkg/model"
)

// mockWriter records provider write calls. Contexts are not matched.
type mockWriter struct {
	mock.Mock
}

func (m *mockWriter) UpdateOrganization(_ context.Context, p model.Payload) error {
	return m.Called(p).Error(0)
}

func (m *mockWriter) UpdateOrganizationWebSettings(_ context.Context, p model.Payload) error {
	return m.Called(p).Error(0)
}

func (m *mockWriter) UpdateWorkflowSettings(_ context.Context, repo string, p model.Payload) error {
	return m.Called(repo, p).Error(0)
}

func (m *mockWriter) CreateRepository(_ context.Context, p model.Payload, template string, autoInit bool) error {
	return m.Called(p, template, autoInit).Error(0)
}

func (m *mockWriter) UpdateRepository(_ context.Context, name string, p model.Payload) error {
	return m.Called(name, p).Error(0)
}

func (m *mockWriter) DeleteRepository(_ context.Context, name string) error {
	return m.Called(name).Error(0)
}

func (m *mockWriter) CreateWebhook(_ context.Context, repo string, p model.Payload) (int64, error) {
	args := m.Called(repo, p)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockWriter) UpdateWebhook(_ context.Context, repo string, id int64, p model.Payload) error {
	return m.Called(repo, id, p).Error(0)
}

func (m *mockWriter) DeleteWebhook(_ context.Context, repo string, id int64) error {
	return m.Called(repo, id).Error(0)
}

func (m *mockWriter) PutSecret(_ context.Context, repo, name, value string, p model.Payload) error {
	return m.Called(repo, name, value, p).Error(0)
}

func (m *mockWriter) DeleteSecret(_ context.Context, repo, name string) error {
	return m.Called(repo, name).Error(0)
}

func (m *mockWriter) CreateVariable(_ context.Context, repo string, p model.Payload) error {
	return m.Called(repo, p).Error(0)
}

func (m *mockWriter) UpdateVariable(_ context.Context, repo, name string, p model.Payload) error {
	return m.Called(repo, name, p).Error(0)
}

func (m *mockWriter) DeleteVariable(_ context.Context, repo, name string) error {
	return m.Called(repo, name).Error(0)
}

func (m *mockWriter) PutEnvironment(_ context.Context, repo, name string, p model.Payload) error {
	return m.Called(repo, name, p).Error(0)
}

func (m *mockWriter) DeleteEnvironment(_ context.Context, repo, name string) error {
	return m.Called(repo, name).Error(0)
}

func (m *mockWriter) CreateBranchProtectionRule(_ context.Context, repo string, p model.Payload) (string, error) {
	args := m.Called(repo, p)
	return args.String(0), args.Error(1)
}

func (m *mockWriter) UpdateBranchProtectionRule(_ context.Context, id string, p model.Payload) error {
	return m.Called(id, p).Error(0)
}

func (m *mockWriter) DeleteBranchProtectionRule(_ context.Context, id string) error {
	return m.Called(id).Error(0)
}

func (m *mockWriter) CreateRuleset(_ context.Context, repo string, p model.Payload) error {
	return m.Called(repo, p).Error(0)
}

func (m *mockWriter) UpdateRuleset(_ context.Context, repo string, id int64, p model.Payload) error {
	return m.Called(repo, id, p).Error(0)
}

func (m *mockWriter) DeleteRuleset(_ context.Context, repo string, id int64) error {
	return m.Called(repo, id).Error(0)
}

func (m *mockWriter) CreateTeam(_ context.Context, p model.Payload) (string, error) {
	args := m.Called(p)
	return args.String(0), args.Error(1)
}

func (m *mockWriter) UpdateTeam(_ context.Context, slug string, p model.Payload) (string, error) {
	args := m.Called(slug, p)
	return args.String(0), args.Error(1)
}

func (m *mockWriter) DeleteTeam(_ context.Context, slug string) error {
	return m.Called(slug).Error(0)
}

func (m *mockWriter) AddTeamMember(_ context.Context, slug, user string) error {
	return m.Called(slug, user).Error(0)
}

func (m *mockWriter) RemoveTeamMember(_ context.Context, slug, user string) error {
	return m.Called(slug, user).Error(0)
}

func (m *mockWriter) CreateRole(_ context.Context, p model.Payload) error {
	return m.Called(p).Error(0)
}

func (m *mockWriter) UpdateRole(_ context.Context, id int64, p model.Payload) error {
	return m.Called(id, p).Error(0)
}

func (m *mockWriter) DeleteRole(_ context.Context, id int64) error {
	return m.Called(id).Error(0)
}

func (m *mockWriter) PutCustomProperty(_ context.Context, name string, p model.Payload) error {
	return m.Called(name, p).Error(0)
}

func (m *mockWriter) DeleteCustomProperty(_ context.Context, name string) error {
	return m.Called(name).Error(0)
}
