package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/go-github/v66/github"
	"github.com/shurcooL/githubv4"

	"orgsync/pkg/model"
)

// protectionRule is one branch protection rule as returned by the graph
// API. The JSON tags give the model's field names.
type protectionRule struct {
	ID                             githubv4.ID `json:"id"`
	Pattern                        string      `json:"pattern"`
	AllowsDeletions                bool        `json:"allows_deletions"`
	AllowsForcePushes              bool        `json:"allows_force_pushes"`
	BlocksCreations                bool        `json:"blocks_creations"`
	IsAdminEnforced                bool        `json:"is_admin_enforced"`
	LockBranch                     bool        `json:"lock_branch"`
	RequiresApprovingReviews       bool        `json:"requires_approving_reviews"`
	RequiredApprovingReviewCount   int         `json:"required_approving_review_count"`
	DismissesStaleReviews          bool        `json:"dismisses_stale_reviews"`
	RequiresCodeOwnerReviews       bool        `json:"requires_code_owner_reviews"`
	RequireLastPushApproval        bool        `json:"require_last_push_approval"`
	RequiresCommitSignatures       bool        `json:"requires_commit_signatures"`
	RequiresConversationResolution bool        `json:"requires_conversation_resolution"`
	RequiresLinearHistory          bool        `json:"requires_linear_history"`
	RequiresStatusChecks           bool        `json:"requires_status_checks"`
	RequiresStrictStatusChecks     bool        `json:"requires_strict_status_checks"`
	RequiredStatusCheckContexts    []string    `json:"required_status_checks"`
	RestrictsPushes                bool        `json:"restricts_pushes"`
}

// model field name to mutation input field name
var protectionInputFields = map[string]string{
	"pattern":                          "pattern",
	"allows_deletions":                 "allowsDeletions",
	"allows_force_pushes":              "allowsForcePushes",
	"blocks_creations":                 "blocksCreations",
	"is_admin_enforced":                "isAdminEnforced",
	"lock_branch":                      "lockBranch",
	"requires_approving_reviews":       "requiresApprovingReviews",
	"required_approving_review_count":  "requiredApprovingReviewCount",
	"dismisses_stale_reviews":          "dismissesStaleReviews",
	"requires_code_owner_reviews":      "requiresCodeOwnerReviews",
	"require_last_push_approval":       "requireLastPushApproval",
	"requires_commit_signatures":       "requiresCommitSignatures",
	"requires_conversation_resolution": "requiresConversationResolution",
	"requires_linear_history":          "requiresLinearHistory",
	"requires_status_checks":           "requiresStatusChecks",
	"requires_strict_status_checks":    "requiresStrictStatusChecks",
	"required_status_checks":           "requiredStatusCheckContexts",
	"restricts_pushes":                 "restrictsPushes",
}

// mutation inputs take camelCase keys
func protectionInput(p model.Payload) model.Payload {
	out := model.Payload{}
	for k, v := range p {
		if name, ok := protectionInputFields[k]; ok {
			out[name] = v
		}
	}
	return out
}

// gqlCall runs one graph API operation with retries, classifying its error
func (s *Session) gqlCall(ctx context.Context, resource string, fn func() error) error {
	return withRetry(ctx, s.p.cfg.Retry, s.p.sleep, func() error {
		return classifyGraphQLError(fn(), resource)
	})
}

// classifyGraphQLError maps graph API failures onto the error taxonomy. The
// client reports HTTP status and query errors only as text.
func classifyGraphQLError(err error, resource string) error {
	if err == nil {
		return nil
	}
	var perr *Error
	if errors.As(err, &perr) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Wrap(err, resource)
	}

	msg := err.Error()
	e := &Error{Type: ErrorTypeUnknown, Message: msg, Cause: err, Resource: resource}
	switch {
	case strings.Contains(msg, "status code: 401"), strings.Contains(msg, "Bad credentials"):
		e.Type = ErrorTypeAuth
		e.StatusCode = 401
	case strings.Contains(msg, "INSUFFICIENT_SCOPES"), strings.Contains(msg, "FORBIDDEN"), strings.Contains(msg, "status code: 403"):
		if strings.Contains(strings.ToLower(msg), "rate limit") {
			e.Type = ErrorTypeTransient
			e.Retryable = true
		} else {
			e.Type = ErrorTypeInsufficientPermissions
		}
	case strings.Contains(msg, "NOT_FOUND"), strings.Contains(msg, "Could not resolve to"):
		e.Type = ErrorTypeNotFound
	case strings.Contains(msg, "RATE_LIMITED"), strings.Contains(msg, "status code: 5"), isNetworkError(err):
		e.Type = ErrorTypeTransient
		e.Retryable = true
	}
	return e
}

// fetchBranchProtectionRules reads the rules of every repository in the
// organization in one paginated query, keyed by repository name
func (s *Session) fetchBranchProtectionRules(ctx context.Context) (map[string][]any, error) {
	vars := map[string]any{
		"login":  githubv4.String(s.org),
		"cursor": (*githubv4.String)(nil),
	}

	out := map[string][]any{}
	resource := resourceName(s.org, "", "branch protection rules of")
	for {
		var q protectionQuery
		err := s.gqlCall(ctx, resource, func() error {
			return s.gql.Query(ctx, &q, vars)
		})
		if err != nil {
			return nil, err
		}
		for _, repo := range q.Organization.Repositories.Nodes {
			rules := make([]any, 0, len(repo.BranchProtectionRules.Nodes))
			for _, rule := range repo.BranchProtectionRules.Nodes {
				p, err := toPayload(rule)
				if err != nil {
					return nil, err
				}
				rules = append(rules, p)
			}
			out[repo.Name] = rules
		}
		if !q.Organization.Repositories.PageInfo.HasNextPage {
			return out, nil
		}
		vars["cursor"] = githubv4.NewString(q.Organization.Repositories.PageInfo.EndCursor)
	}
}

type protectionQuery struct {
	Organization struct {
		Repositories struct {
			Nodes []struct {
				Name                  string
				BranchProtectionRules struct {
					Nodes []protectionRule
				} `graphql:"branchProtectionRules(first: 100)"`
			}
			PageInfo struct {
				EndCursor   githubv4.String
				HasNextPage bool
			}
		} `graphql:"repositories(first: 50, after: $cursor, orderBy: {field: NAME, direction: ASC})"`
	} `graphql:"organization(login: $login)"`
}

// CreateBranchProtectionRule creates a rule on a repository and returns its node id
func (s *Session) CreateBranchProtectionRule(ctx context.Context, repo string, p model.Payload) (string, error) {
	resource := resourceName(s.org, repo, "branch protection rule of")

	var r *github.Repository
	err := s.call(ctx, resource, func() (*github.Response, error) {
		var resp *github.Response
		var err error
		r, resp, err = s.rest.Repositories.Get(ctx, s.org, repo)
		return resp, err
	})
	if err != nil {
		return "", err
	}

	var input githubv4.CreateBranchProtectionRuleInput
	if err := decodeInto(protectionInput(p), &input); err != nil {
		return "", err
	}
	input.RepositoryID = githubv4.ID(r.GetNodeID())

	var m struct {
		CreateBranchProtectionRule struct {
			BranchProtectionRule struct {
				ID githubv4.ID
			}
		} `graphql:"createBranchProtectionRule(input: $input)"`
	}
	err = s.gqlCall(ctx, resource, func() error {
		return s.gql.Mutate(ctx, &m, input, nil)
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprint(m.CreateBranchProtectionRule.BranchProtectionRule.ID), nil
}

// UpdateBranchProtectionRule changes the given fields of a rule
func (s *Session) UpdateBranchProtectionRule(ctx context.Context, id string, p model.Payload) error {
	var input githubv4.UpdateBranchProtectionRuleInput
	if err := decodeInto(protectionInput(p), &input); err != nil {
		return err
	}
	input.BranchProtectionRuleID = githubv4.ID(id)

	var m struct {
		UpdateBranchProtectionRule struct {
			ClientMutationID *githubv4.String
		} `graphql:"updateBranchProtectionRule(input: $input)"`
	}
	return s.gqlCall(ctx, "branch protection rule "+id, func() error {
		return s.gql.Mutate(ctx, &m, input, nil)
	})
}

// DeleteBranchProtectionRule removes a rule
func (s *Session) DeleteBranchProtectionRule(ctx context.Context, id string) error {
	input := githubv4.DeleteBranchProtectionRuleInput{BranchProtectionRuleID: githubv4.ID(id)}

	var m struct {
		DeleteBranchProtectionRule struct {
			ClientMutationID *githubv4.String
		} `graphql:"deleteBranchProtectionRule(input: $input)"`
	}
	return s.gqlCall(ctx, "branch protection rule "+id, func() error {
		return s.gql.Mutate(ctx, &m, input, nil)
	})
}
