package validate

import (
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"orgsync/pkg/model"
)

// Resource is one object visited during validation together with its
// containment path
type Resource struct {
	Path   string
	Object *model.Object
	Parent *model.Object
}

// Rule inspects a single resource. Rules are called for every object of the
// tree, including embedded ones, and ignore types they do not know.
type Rule func(r Resource) []Finding

const (
	maxTopics              = 20
	maxTopicLength         = 50
	maxWebhooksPerEvent    = 20
	maxRulesetsPerScope    = 75
	maxAllowedValues       = 200
	maxRequiredReviewers   = 6
	maxEnvironmentWaitTime = 43200
)

var (
	validRepositoryName = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)
	validTopic          = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)
	validUsername       = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]*[a-zA-Z0-9])?$`)
)

// DefaultRules returns the built-in rule set
func DefaultRules() []Rule {
	return []Rule{
		uniqueKeys,
		enumValues,
		repositoryRules,
		scopeLimits,
		branchProtectionRules,
		rulesetRules,
		webhookRules,
		secretRules,
		teamRules,
		environmentRules,
		customPropertyRules,
		workflowRules,
	}
}

func errorf(r Resource, format string, args ...any) Finding {
	return Finding{Severity: SeverityError, ResourceKey: r.Path, Message: fmt.Sprintf(format, args...)}
}

func warnf(r Resource, format string, args ...any) Finding {
	return Finding{Severity: SeverityWarning, ResourceKey: r.Path, Message: fmt.Sprintf(format, args...)}
}

func infof(r Resource, format string, args ...any) Finding {
	return Finding{Severity: SeverityInfo, ResourceKey: r.Path, Message: fmt.Sprintf(format, args...)}
}

// enums lists the accepted values of string fields per resource type
var enums = map[string]map[string][]string{
	model.TypeOrganization: {
		"default_repository_permission": {"read", "write", "admin", "none"},
	},
	model.TypeOrganizationWorkflowSettings: {
		"enabled_repositories":         {"all", "none", "selected"},
		"allowed_actions":              {"all", "local_only", "selected"},
		"default_workflow_permissions": {"read", "write"},
	},
	model.TypeRepositoryWorkflowSettings: {
		"allowed_actions":              {"all", "local_only", "selected"},
		"default_workflow_permissions": {"read", "write"},
	},
	model.TypeRepository: {
		"visibility":                      {"public", "private", "internal"},
		"squash_merge_commit_title":       {"PR_TITLE", "COMMIT_OR_PR_TITLE"},
		"squash_merge_commit_message":     {"PR_BODY", "COMMIT_MESSAGES", "BLANK"},
		"merge_commit_title":              {"PR_TITLE", "MERGE_MESSAGE"},
		"merge_commit_message":            {"PR_BODY", "PR_TITLE", "BLANK"},
		"secret_scanning":                 {"enabled", "disabled"},
		"secret_scanning_push_protection": {"enabled", "disabled"},
		"dependabot_security_updates":     {"enabled", "disabled"},
	},
	model.TypeWebhook: {
		"content_type": {"json", "form"},
		"insecure_ssl": {"0", "1"},
	},
	model.TypeSecret: {
		"visibility": {"all", "private", "selected"},
	},
	model.TypeVariable: {
		"visibility": {"all", "private", "selected"},
	},
	model.TypeEnvironment: {
		"deployment_branch_policy": {"all", "protected", "selected"},
	},
	model.TypeRuleset: {
		"target":      {"branch", "tag", "push"},
		"enforcement": {"active", "disabled", "evaluate"},
	},
	model.TypeMergeQueueSettings: {
		"merge_method":      {"MERGE", "SQUASH", "REBASE"},
		"grouping_strategy": {"ALLGREEN", "HEADGREEN"},
	},
	model.TypeTeam: {
		"privacy": {"secret", "closed"},
	},
	model.TypeRole: {
		"base_role": {"read", "triage", "write", "maintain", "admin"},
	},
	model.TypeCustomProperty: {
		"value_type": {"string", "single_select", "multi_select", "true_false"},
	},
}

func enumValues(r Resource) []Finding {
	var out []Finding
	fields := enums[r.Object.Type()]
	for _, f := range r.Object.Schema().Fields {
		allowed, ok := fields[f.Name]
		if !ok || !r.Object.Has(f.Name) {
			continue
		}
		v := r.Object.String(f.Name)
		if !contains(allowed, v) {
			out = append(out, errorf(r, "%s must be one of %s, got %q", f.Name, strings.Join(allowed, ", "), v))
		}
	}
	return out
}

// uniqueKeys catches duplicate natural keys in trees that were not built by
// the configuration decoder
func uniqueKeys(r Resource) []Finding {
	var out []Finding
	for _, f := range r.Object.Schema().Collections() {
		seen := map[string]bool{}
		for _, child := range r.Object.Children(f.Name) {
			if child.Key() == "" {
				out = append(out, errorf(r, "%s entry without %s", f.Name, f.Schema.Key))
				continue
			}
			k := f.Schema.NormalizeKey(child.Key())
			if seen[k] {
				out = append(out, errorf(r, "duplicate %s %q in %s", f.Schema.Key, child.Key(), f.Name))
			}
			seen[k] = true
		}
	}
	return out
}

func repositoryRules(r Resource) []Finding {
	o := r.Object
	if o.Type() != model.TypeRepository {
		return nil
	}
	var out []Finding

	name := o.Key()
	switch {
	case len(name) > 100:
		out = append(out, errorf(r, "repository name must be 100 characters or less"))
	case !validRepositoryName.MatchString(name):
		out = append(out, errorf(r, "repository name can only contain alphanumeric characters, periods, hyphens, and underscores"))
	case strings.HasPrefix(name, ".") || strings.HasSuffix(name, "."):
		out = append(out, errorf(r, "repository name cannot start or end with a period"))
	}

	if len(o.String("description")) > 350 {
		out = append(out, errorf(r, "repository description must be 350 characters or less"))
	}

	topics := o.List("topics")
	if len(topics) > maxTopics {
		out = append(out, errorf(r, "repository can have at most %d topics, got %d", maxTopics, len(topics)))
	}
	for i, topic := range topics {
		if len(topic) > maxTopicLength {
			out = append(out, errorf(r, "topic %d must be %d characters or less", i+1, maxTopicLength))
		} else if !validTopic.MatchString(topic) {
			out = append(out, errorf(r, "topic %q can only contain lowercase letters, numbers, and hyphens", topic))
		}
	}

	if o.Has("allow_merge_commit") && o.Has("allow_squash_merge") && o.Has("allow_rebase_merge") &&
		!o.Bool("allow_merge_commit") && !o.Bool("allow_squash_merge") && !o.Bool("allow_rebase_merge") {
		out = append(out, errorf(r, "at least one of allow_merge_commit, allow_squash_merge or allow_rebase_merge must be enabled"))
	}

	if o.Bool("auto_init") && o.String("template_repository") != "" {
		out = append(out, errorf(r, "auto_init cannot be combined with template_repository"))
	}
	if tmpl := o.String("template_repository"); tmpl != "" && strings.Count(tmpl, "/") != 1 {
		out = append(out, errorf(r, "template_repository must be <owner>/<name>, got %q", tmpl))
	}

	if o.Bool("archived") && o.HasCollection(model.FieldBranchProtectionRules) && len(o.Children(model.FieldBranchProtectionRules)) > 0 {
		out = append(out, infof(r, "branch protection rules of an archived repository cannot be changed once it is archived"))
	}
	return out
}

// scopeLimits applies the platform's per-scope collection limits to an
// organization or repository
func scopeLimits(r Resource) []Finding {
	if t := r.Object.Type(); t != model.TypeOrganization && t != model.TypeRepository {
		return nil
	}
	var out []Finding
	if n := len(r.Object.Children(model.FieldRulesets)); n > maxRulesetsPerScope {
		out = append(out, errorf(r, "at most %d rulesets are allowed, got %d", maxRulesetsPerScope, n))
	}

	perEvent := map[string]int{}
	for _, hook := range r.Object.Children(model.FieldWebhooks) {
		for _, e := range hook.List("events") {
			perEvent[e]++
		}
	}
	events := make([]string, 0, len(perEvent))
	for e := range perEvent {
		events = append(events, e)
	}
	sort.Strings(events)
	for _, e := range events {
		if perEvent[e] > maxWebhooksPerEvent {
			out = append(out, errorf(r, "at most %d webhooks may subscribe to event %q, got %d", maxWebhooksPerEvent, e, perEvent[e]))
		}
	}
	return out
}

func branchProtectionRules(r Resource) []Finding {
	o := r.Object
	if o.Type() != model.TypeBranchProtectionRule {
		return nil
	}
	var out []Finding
	if o.Bool("requires_approving_reviews") && o.Has("required_approving_review_count") {
		if n := o.Int("required_approving_review_count"); n < 1 || n > maxRequiredReviewers {
			out = append(out, errorf(r, "required_approving_review_count must be between 1 and %d when reviews are required, got %d", maxRequiredReviewers, n))
		}
	}
	if o.Has("requires_status_checks") && !o.Bool("requires_status_checks") && len(o.List("required_status_checks")) > 0 {
		out = append(out, warnf(r, "required_status_checks is ignored while requires_status_checks is false"))
	}
	if o.Has("requires_approving_reviews") && !o.Bool("requires_approving_reviews") && o.Has("required_approving_review_count") {
		out = append(out, warnf(r, "required_approving_review_count is ignored while requires_approving_reviews is false"))
	}
	return out
}

func rulesetRules(r Resource) []Finding {
	o := r.Object
	var out []Finding
	switch o.Type() {
	case model.TypeRuleset:
		if o.Bool("requires_merge_queue") && o.Embedded("merge_queue") == nil {
			out = append(out, errorf(r, "requires_merge_queue needs a merge_queue block"))
		}
		if o.Bool("requires_merge_queue") && o.String("target") != "" && o.String("target") != "branch" {
			out = append(out, errorf(r, "a merge queue can only be required on branch rulesets"))
		}
		if o.Has("requires_status_checks") && !o.Bool("requires_status_checks") && len(o.List("required_status_checks")) > 0 {
			out = append(out, warnf(r, "required_status_checks is ignored while requires_status_checks is false"))
		}
		for _, actor := range o.List("bypass_actors") {
			if parts := strings.Split(actor, ":"); len(parts) < 2 || parts[0] == "" {
				out = append(out, errorf(r, "bypass actor %q must be <type>:<id>[:<mode>]", actor))
			}
		}
	case model.TypePullRequestSettings:
		if n := o.Int("required_approving_review_count"); n < 0 || n > 10 {
			out = append(out, errorf(r, "required_approving_review_count must be between 0 and 10, got %d", n))
		}
	case model.TypeMergeQueueSettings:
		if o.Has("min_group_size") && o.Has("max_group_size") && o.Int("min_group_size") > o.Int("max_group_size") {
			out = append(out, errorf(r, "min_group_size cannot exceed max_group_size"))
		}
	}
	return out
}

func webhookRules(r Resource) []Finding {
	o := r.Object
	if o.Type() != model.TypeWebhook {
		return nil
	}
	var out []Finding

	u, err := url.Parse(o.Key())
	switch {
	case err != nil:
		out = append(out, errorf(r, "invalid URL format: %v", err))
	case u.Scheme != "http" && u.Scheme != "https":
		out = append(out, errorf(r, "URL must use http or https scheme"))
	case u.Host == "":
		out = append(out, errorf(r, "URL must have a valid host"))
	}

	events := o.List("events")
	if o.Has("events") && len(events) == 0 {
		out = append(out, errorf(r, "at least one event is required"))
	}
	for _, e := range events {
		if !knownWebhookEvents[e] {
			out = append(out, warnf(r, "unknown webhook event %q", e))
		}
	}

	switch {
	case !o.Has("secret") || o.String("secret") == "":
		out = append(out, warnf(r, "webhook has no secret, deliveries cannot be verified"))
	case model.IsRedacted(o.Get("secret")):
		out = append(out, infof(r, "secret is redacted and will not be updated"))
	}
	if o.String("insecure_ssl") == "1" {
		out = append(out, warnf(r, "webhook disables TLS certificate verification"))
	}
	return out
}

func secretRules(r Resource) []Finding {
	o := r.Object
	if o.Type() != model.TypeSecret {
		return nil
	}
	if model.IsRedacted(o.Get("value")) {
		return []Finding{infof(r, "value is redacted and will not be updated")}
	}
	if !o.Has("value") {
		return []Finding{errorf(r, "secret has no value")}
	}
	return nil
}

func teamRules(r Resource) []Finding {
	o := r.Object
	if o.Type() != model.TypeTeam {
		return nil
	}
	var out []Finding
	for _, m := range o.List("members") {
		if len(m) > 39 || !validUsername.MatchString(m) || strings.Contains(m, "--") {
			out = append(out, errorf(r, "member %q is not a valid username", m))
		}
	}
	return out
}

func environmentRules(r Resource) []Finding {
	o := r.Object
	if o.Type() != model.TypeEnvironment {
		return nil
	}
	if n := o.Int("wait_timer"); n < 0 || n > maxEnvironmentWaitTime {
		return []Finding{errorf(r, "wait_timer must be between 0 and %d minutes, got %d", maxEnvironmentWaitTime, n)}
	}
	return nil
}

func customPropertyRules(r Resource) []Finding {
	o := r.Object
	if o.Type() != model.TypeCustomProperty {
		return nil
	}
	var out []Finding
	values := o.List("allowed_values")
	switch o.String("value_type") {
	case "single_select", "multi_select":
		if len(values) == 0 {
			out = append(out, errorf(r, "%s properties need allowed_values", o.String("value_type")))
		}
		if len(values) > maxAllowedValues {
			out = append(out, errorf(r, "at most %d allowed_values are supported, got %d", maxAllowedValues, len(values)))
		}
		if d := o.String("default_value"); d != "" && !contains(values, d) {
			out = append(out, errorf(r, "default_value %q is not one of allowed_values", d))
		}
	default:
		if len(values) > 0 {
			out = append(out, warnf(r, "allowed_values is ignored for %s properties", o.String("value_type")))
		}
	}
	if o.Bool("required") && !o.Has("default_value") {
		out = append(out, errorf(r, "required properties need a default_value"))
	}
	return out
}

func workflowRules(r Resource) []Finding {
	o := r.Object
	if o.Type() != model.TypeOrganizationWorkflowSettings && o.Type() != model.TypeRepositoryWorkflowSettings {
		return nil
	}
	if o.Has("allowed_actions") && o.String("allowed_actions") != "selected" && len(o.List("allow_action_patterns")) > 0 {
		return []Finding{warnf(r, "allow_action_patterns is ignored unless allowed_actions is selected")}
	}
	return nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

var knownWebhookEvents = map[string]bool{
	"*":                           true,
	"branch_protection_rule":      true,
	"check_run":                   true,
	"check_suite":                 true,
	"code_scanning_alert":         true,
	"commit_comment":              true,
	"create":                      true,
	"delete":                      true,
	"dependabot_alert":            true,
	"deploy_key":                  true,
	"deployment":                  true,
	"deployment_status":           true,
	"discussion":                  true,
	"discussion_comment":          true,
	"fork":                        true,
	"gollum":                      true,
	"issue_comment":               true,
	"issues":                      true,
	"label":                       true,
	"member":                      true,
	"membership":                  true,
	"merge_group":                 true,
	"meta":                        true,
	"milestone":                   true,
	"organization":                true,
	"package":                     true,
	"page_build":                  true,
	"ping":                        true,
	"project":                     true,
	"project_card":                true,
	"project_column":              true,
	"public":                      true,
	"pull_request":                true,
	"pull_request_review":         true,
	"pull_request_review_comment": true,
	"pull_request_review_thread":  true,
	"push":                        true,
	"registry_package":            true,
	"release":                     true,
	"repository":                  true,
	"repository_ruleset":          true,
	"secret_scanning_alert":       true,
	"security_advisory":           true,
	"star":                        true,
	"status":                      true,
	"team":                        true,
	"team_add":                    true,
	"watch":                       true,
	"workflow_dispatch":           true,
	"workflow_job":                true,
	"workflow_run":                true,
}
