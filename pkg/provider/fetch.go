package provider

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/go-github/v66/github"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"orgsync/pkg/model"
	"orgsync/pkg/telemetry"
)

// liveState collects the payloads of one fetch. Fetches for different
// collections complete in any order; the mutex guards assembly only.
type liveState struct {
	mu         sync.Mutex
	org        model.Payload
	repos      []model.Payload
	protection map[string][]any
	warnings   []Warning
}

func (l *liveState) set(key string, v any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.org[key] = v
}

func (l *liveState) setRepo(i int, key string, v any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.repos[i][key] = v
}

func (l *liveState) warn(w Warning) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warnings = append(l.warnings, w)
}

// FetchLive reads the complete live state of the organization. Every
// collection is fetched concurrently through the shared pool and all
// fetches finish before the tree is assembled. Web interface failures are
// returned as warnings; any other failure fails the whole fetch.
func (s *Session) FetchLive(ctx context.Context) (_ *model.Object, _ []Warning, err error) {
	ctx, span := telemetry.StartSpan(ctx, "provider.FetchLive", attribute.String("org", s.org))
	defer func() { telemetry.EndSpan(span, err) }()

	start := time.Now()
	s.logger.Debug().Msg("Fetching live state")

	orgPayload, err := s.fetchOrganization(ctx)
	if err != nil {
		return nil, nil, err
	}
	state := &liveState{org: orgPayload}

	g, gctx := errgroup.WithContext(ctx)
	collect := func(name string, fetch func(ctx context.Context) (any, error)) {
		g.Go(func() error {
			v, err := s.traced(gctx, name, "", fetch)
			if err != nil {
				return err
			}
			if v != nil {
				state.set(name, v)
			}
			return nil
		})
	}

	collect(model.FieldWorkflows, func(ctx context.Context) (any, error) { return s.fetchWorkflowSettings(ctx, "") })
	collect(model.FieldWebhooks, func(ctx context.Context) (any, error) { return s.fetchWebhooks(ctx, "") })
	collect(model.FieldSecrets, func(ctx context.Context) (any, error) { return s.fetchSecrets(ctx, "") })
	collect(model.FieldVariables, func(ctx context.Context) (any, error) { return s.fetchVariables(ctx, "") })
	collect(model.FieldRulesets, func(ctx context.Context) (any, error) { return s.fetchRulesets(ctx, "") })
	collect(model.FieldTeams, s.fetchTeams)

	// plans without custom roles or properties answer 404 for these
	optional := func(name string, fetch func(ctx context.Context) (any, error)) {
		collect(name, func(ctx context.Context) (any, error) {
			v, err := fetch(ctx)
			if IsType(err, ErrorTypeNotFound) {
				state.warn(Warning{Org: s.org, Source: model.SourceREST, Message: name + " unavailable", Err: err})
				return nil, nil
			}
			return v, err
		})
	}
	optional(model.FieldRoles, s.fetchRoles)
	optional(model.FieldCustomProperties, s.fetchCustomProperties)

	g.Go(func() error {
		protection, err := s.fetchBranchProtectionRules(gctx)
		if err != nil {
			return err
		}
		state.mu.Lock()
		state.protection = protection
		state.mu.Unlock()
		return nil
	})

	g.Go(func() error {
		settings, err := s.fetchWebSettings(gctx)
		if err != nil {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			state.warn(Warning{Org: s.org, Source: model.SourceWeb, Message: "web-only settings unavailable", Err: err})
			return nil
		}
		state.mu.Lock()
		for k, v := range settings {
			state.org[k] = v
		}
		state.mu.Unlock()
		return nil
	})

	g.Go(func() error {
		repos, err := s.listRepositories(gctx)
		if err != nil {
			return err
		}
		state.mu.Lock()
		state.repos = repos
		state.mu.Unlock()

		for i, repo := range repos {
			name, _ := repo["name"].(string)
			s.fetchRepositoryChildren(gctx, g, state, i, name)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	items := make([]any, 0, len(state.repos))
	for _, repo := range state.repos {
		name, _ := repo["name"].(string)
		rules := state.protection[name]
		if rules == nil {
			rules = []any{}
		}
		repo[model.FieldBranchProtectionRules] = rules
		items = append(items, repo)
	}
	state.org[model.FieldRepositories] = items

	live, err := model.FromProvider(model.OrganizationSchema, state.org)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decode live state of %s: %w", s.org, err)
	}

	for _, w := range state.warnings {
		s.p.metrics.Warning(w.Source.String())
		s.logger.Warn().Err(w.Err).Str("source", w.Source.String()).Msg(w.Message)
	}
	s.logger.Info().
		Int("repositories", len(state.repos)).
		Int("warnings", len(state.warnings)).
		Dur("duration", time.Since(start)).
		Msg("Fetched live state")

	return live, state.warnings, nil
}

// fetchRepositoryChildren schedules the per-repository collection fetches
func (s *Session) fetchRepositoryChildren(ctx context.Context, g *errgroup.Group, state *liveState, i int, repo string) {
	fetch := func(name string, fn func(ctx context.Context, repo string) (any, error)) {
		g.Go(func() error {
			v, err := s.traced(ctx, name, repo, func(ctx context.Context) (any, error) { return fn(ctx, repo) })
			if err != nil {
				return err
			}
			state.setRepo(i, name, v)
			return nil
		})
	}

	fetch(model.FieldWorkflows, s.fetchWorkflowSettingsAny)
	fetch(model.FieldWebhooks, s.fetchWebhooks)
	fetch(model.FieldSecrets, s.fetchSecrets)
	fetch(model.FieldVariables, s.fetchVariables)
	fetch(model.FieldEnvironments, s.fetchEnvironments)
	fetch(model.FieldRulesets, s.fetchRulesets)
}

func (s *Session) traced(ctx context.Context, collection, repo string, fetch func(ctx context.Context) (any, error)) (v any, err error) {
	ctx, span := telemetry.StartSpan(ctx, "provider.fetch",
		attribute.String("org", s.org),
		attribute.String("repository", repo),
		attribute.String("collection", collection))
	defer func() { telemetry.EndSpan(span, err) }()
	return fetch(ctx)
}

func (s *Session) fetchOrganization(ctx context.Context) (model.Payload, error) {
	var org *github.Organization
	err := s.call(ctx, resourceName(s.org, "", "organization"), func() (*github.Response, error) {
		var resp *github.Response
		var err error
		org, resp, err = s.rest.Organizations.Get(ctx, s.org)
		return resp, err
	})
	if err != nil {
		return nil, err
	}
	return toPayload(org)
}

func (s *Session) listRepositories(ctx context.Context) ([]model.Payload, error) {
	repos, err := paginate(ctx, s, resourceName(s.org, "", "repositories of"), func(opts github.ListOptions) ([]*github.Repository, *github.Response, error) {
		return s.rest.Repositories.ListByOrg(ctx, s.org, &github.RepositoryListByOrgOptions{
			Type:        "all",
			Sort:        "full_name",
			ListOptions: opts,
		})
	})
	if err != nil {
		return nil, err
	}

	out := make([]model.Payload, 0, len(repos))
	for _, r := range repos {
		p, err := toPayload(r)
		if err != nil {
			return nil, err
		}
		if _, ok := p["topics"]; !ok {
			p["topics"] = []any{}
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *Session) fetchWorkflowSettingsAny(ctx context.Context, repo string) (any, error) {
	return s.fetchWorkflowSettings(ctx, repo)
}

func (s *Session) fetchWorkflowSettings(ctx context.Context, repo string) (model.Payload, error) {
	resource := resourceName(s.org, repo, "workflow settings of")
	out := model.Payload{}

	var perms any
	err := s.call(ctx, resource, func() (*github.Response, error) {
		if repo == "" {
			p, resp, err := s.rest.Actions.GetActionsPermissions(ctx, s.org)
			perms = p
			return resp, err
		}
		p, resp, err := s.rest.Repositories.GetActionsPermissions(ctx, s.org, repo)
		perms = p
		return resp, err
	})
	if err != nil {
		return nil, err
	}
	if err := merge(out, perms); err != nil {
		return nil, err
	}

	if out["allowed_actions"] == "selected" {
		var allowed *github.ActionsAllowed
		err := s.call(ctx, resource, func() (*github.Response, error) {
			var resp *github.Response
			var err error
			if repo == "" {
				allowed, resp, err = s.rest.Actions.GetActionsAllowed(ctx, s.org)
			} else {
				allowed, resp, err = s.rest.Repositories.GetActionsAllowed(ctx, s.org, repo)
			}
			return resp, err
		})
		if err != nil {
			return nil, err
		}
		if err := merge(out, allowed); err != nil {
			return nil, err
		}
	}

	var defaults any
	err = s.call(ctx, resource, func() (*github.Response, error) {
		if repo == "" {
			d, resp, err := s.rest.Actions.GetDefaultWorkflowPermissionsInOrganization(ctx, s.org)
			defaults = d
			return resp, err
		}
		d, resp, err := s.rest.Repositories.GetDefaultWorkflowPermissions(ctx, s.org, repo)
		defaults = d
		return resp, err
	})
	if err != nil {
		return nil, err
	}
	if err := merge(out, defaults); err != nil {
		return nil, err
	}
	return out, nil
}

func merge(dst model.Payload, v any) error {
	p, err := toPayload(v)
	if err != nil {
		return err
	}
	for k, val := range p {
		dst[k] = val
	}
	return nil
}

func (s *Session) fetchWebhooks(ctx context.Context, repo string) (any, error) {
	hooks, err := paginate(ctx, s, resourceName(s.org, repo, "webhooks of"), func(opts github.ListOptions) ([]*github.Hook, *github.Response, error) {
		if repo == "" {
			return s.rest.Organizations.ListHooks(ctx, s.org, &opts)
		}
		return s.rest.Repositories.ListHooks(ctx, s.org, repo, &opts)
	})
	if err != nil {
		return nil, err
	}
	return payloads(hooks)
}

func (s *Session) fetchSecrets(ctx context.Context, repo string) (any, error) {
	var all []*github.Secret
	opts := github.ListOptions{PerPage: 100}
	for {
		var page *github.Secrets
		var resp *github.Response
		err := s.call(ctx, resourceName(s.org, repo, "secrets of"), func() (*github.Response, error) {
			var err error
			if repo == "" {
				page, resp, err = s.rest.Actions.ListOrgSecrets(ctx, s.org, &opts)
			} else {
				page, resp, err = s.rest.Actions.ListRepoSecrets(ctx, s.org, repo, &opts)
			}
			return resp, err
		})
		if err != nil {
			return nil, err
		}
		all = append(all, page.Secrets...)
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	out := make([]any, 0, len(all))
	for _, sec := range all {
		p := model.Payload{"name": sec.Name, "value": model.Redacted}
		if repo == "" && sec.Visibility != "" {
			p["visibility"] = sec.Visibility
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *Session) fetchVariables(ctx context.Context, repo string) (any, error) {
	var all []*github.ActionsVariable
	opts := github.ListOptions{PerPage: 30}
	for {
		var page *github.ActionsVariables
		var resp *github.Response
		err := s.call(ctx, resourceName(s.org, repo, "variables of"), func() (*github.Response, error) {
			var err error
			if repo == "" {
				page, resp, err = s.rest.Actions.ListOrgVariables(ctx, s.org, &opts)
			} else {
				page, resp, err = s.rest.Actions.ListRepoVariables(ctx, s.org, repo, &opts)
			}
			return resp, err
		})
		if err != nil {
			return nil, err
		}
		all = append(all, page.Variables...)
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	out := make([]any, 0, len(all))
	for _, v := range all {
		p := model.Payload{"name": v.Name, "value": v.Value}
		if repo == "" && v.Visibility != nil {
			p["visibility"] = *v.Visibility
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *Session) fetchEnvironments(ctx context.Context, repo string) (any, error) {
	var all []*github.Environment
	opts := &github.EnvironmentListOptions{ListOptions: github.ListOptions{PerPage: 100}}
	for {
		var page *github.EnvResponse
		var resp *github.Response
		err := s.call(ctx, resourceName(s.org, repo, "environments of"), func() (*github.Response, error) {
			var err error
			page, resp, err = s.rest.Repositories.ListEnvironments(ctx, s.org, repo, opts)
			return resp, err
		})
		if err != nil {
			return nil, err
		}
		all = append(all, page.Environments...)
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	out := make([]any, 0, len(all))
	for _, env := range all {
		p, err := toPayload(env)
		if err != nil {
			return nil, err
		}
		// an absent policy means every branch may deploy
		if _, ok := p["deployment_branch_policy"]; !ok {
			p["deployment_branch_policy"] = nil
		}
		out = append(out, p)
	}
	return out, nil
}

// rulesets are read through the raw endpoints so their rules keep the
// platform's shape; the list endpoint omits the rules themselves
func (s *Session) fetchRulesets(ctx context.Context, repo string) (any, error) {
	base := fmt.Sprintf("orgs/%s/rulesets", s.org)
	if repo != "" {
		base = fmt.Sprintf("repos/%s/%s/rulesets", s.org, repo)
	}
	resource := resourceName(s.org, repo, "rulesets of")

	var summaries []model.Payload
	page := 1
	for {
		path := fmt.Sprintf("%s?per_page=100&page=%d", base, page)
		if repo != "" {
			path += "&includes_parents=false"
		}
		var batch []model.Payload
		resp, err := s.getJSON(ctx, resource, path, &batch)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, batch...)
		if resp == nil || resp.NextPage == 0 {
			break
		}
		page = resp.NextPage
	}

	out := make([]any, 0, len(summaries))
	for _, summary := range summaries {
		id, ok := summary["id"].(float64)
		if !ok {
			continue
		}
		var full model.Payload
		if _, err := s.getJSON(ctx, resource, fmt.Sprintf("%s/%d", base, int64(id)), &full); err != nil {
			return nil, err
		}
		out = append(out, full)
	}
	return out, nil
}

func (s *Session) fetchTeams(ctx context.Context) (any, error) {
	teams, err := paginate(ctx, s, resourceName(s.org, "", "teams of"), func(opts github.ListOptions) ([]*github.Team, *github.Response, error) {
		return s.rest.Teams.ListTeams(ctx, s.org, &opts)
	})
	if err != nil {
		return nil, err
	}

	out := make([]any, 0, len(teams))
	for _, team := range teams {
		p, err := toPayload(team)
		if err != nil {
			return nil, err
		}
		slug := team.GetSlug()
		members, err := paginate(ctx, s, fmt.Sprintf("team %s/%s", s.org, slug), func(opts github.ListOptions) ([]*github.User, *github.Response, error) {
			return s.rest.Teams.ListTeamMembersBySlug(ctx, s.org, slug, &github.TeamListTeamMembersOptions{ListOptions: opts})
		})
		if err != nil {
			return nil, err
		}
		logins := make([]any, 0, len(members))
		for _, m := range members {
			logins = append(logins, m.GetLogin())
		}
		p["members"] = logins
		out = append(out, p)
	}
	return out, nil
}

func (s *Session) fetchRoles(ctx context.Context) (any, error) {
	var roles *github.OrganizationCustomRoles
	err := s.call(ctx, resourceName(s.org, "", "custom roles of"), func() (*github.Response, error) {
		var resp *github.Response
		var err error
		roles, resp, err = s.rest.Organizations.ListRoles(ctx, s.org)
		return resp, err
	})
	if err != nil {
		return nil, err
	}

	out := []any{}
	for _, role := range roles.CustomRepoRoles {
		// predefined roles cannot be managed
		if src := role.GetSource(); src != "" && src != "Organization" {
			continue
		}
		p, err := toPayload(role)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *Session) fetchCustomProperties(ctx context.Context) (any, error) {
	var props []*github.CustomProperty
	err := s.call(ctx, resourceName(s.org, "", "custom properties of"), func() (*github.Response, error) {
		var resp *github.Response
		var err error
		props, resp, err = s.rest.Organizations.GetAllCustomProperties(ctx, s.org)
		return resp, err
	})
	if err != nil {
		return nil, err
	}
	return payloads(props)
}
