package model

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// BranchProtectionRuleSchema is read and written through the graph API
var BranchProtectionRuleSchema = &Schema{
	Type: TypeBranchProtectionRule,
	Key:  "pattern",
	Fields: []Field{
		str("id").readOnly().graphql(),
		str("pattern").graphql(),
		flag("allows_deletions").graphql(),
		flag("allows_force_pushes").graphql(),
		flag("blocks_creations").graphql(),
		flag("is_admin_enforced").graphql(),
		flag("lock_branch").graphql(),
		flag("requires_approving_reviews").graphql(),
		num("required_approving_review_count").graphql(),
		flag("dismisses_stale_reviews").graphql(),
		flag("requires_code_owner_reviews").graphql(),
		flag("require_last_push_approval").graphql(),
		flag("requires_commit_signatures").graphql(),
		flag("requires_conversation_resolution").graphql(),
		flag("requires_linear_history").graphql(),
		flag("requires_status_checks").graphql(),
		flag("requires_strict_status_checks").graphql(),
		list("required_status_checks").graphql(),
		flag("restricts_pushes").graphql(),
	},
	Include: onlyWhen(map[string]string{
		"required_approving_review_count": "requires_approving_reviews",
		"dismisses_stale_reviews":         "requires_approving_reviews",
		"requires_code_owner_reviews":     "requires_approving_reviews",
		"require_last_push_approval":      "requires_approving_reviews",
		"requires_strict_status_checks":   "requires_status_checks",
		"required_status_checks":          "requires_status_checks",
	}),
}

var PullRequestSettingsSchema = &Schema{
	Type: TypePullRequestSettings,
	Fields: []Field{
		num("required_approving_review_count"),
		flag("dismiss_stale_reviews_on_push"),
		flag("require_code_owner_review"),
		flag("require_last_push_approval"),
		flag("required_review_thread_resolution"),
	},
}

var MergeQueueSettingsSchema = &Schema{
	Type: TypeMergeQueueSettings,
	Fields: []Field{
		str("merge_method"),
		str("grouping_strategy"),
		num("build_concurrency").provider("max_entries_to_build"),
		num("min_group_size").provider("min_entries_to_merge"),
		num("max_group_size").provider("max_entries_to_merge"),
		num("wait_time_for_minimum_group_size").provider("min_entries_to_merge_wait_minutes"),
		num("status_check_timeout").provider("check_response_timeout_minutes"),
	},
}

func rulesetFields(orgScoped bool) []Field {
	fields := []Field{
		num("id").readOnly(),
		str("name"),
		str("target"),
		str("enforcement"),
		list("include_refs"),
		list("exclude_refs"),
	}
	if orgScoped {
		fields = append(fields, list("include_repo_names"), list("exclude_repo_names"))
	}
	return append(fields,
		list("bypass_actors"),
		flag("allows_creations"),
		flag("allows_updates"),
		flag("allows_deletions"),
		flag("allows_force_pushes"),
		flag("requires_linear_history"),
		flag("requires_commit_signatures"),
		flag("requires_pull_request"),
		embedded("pull_request", PullRequestSettingsSchema),
		flag("requires_status_checks"),
		flag("strict_status_checks"),
		list("required_status_checks"),
		flag("requires_merge_queue"),
		embedded("merge_queue", MergeQueueSettingsSchema),
	)
}

var rulesetGates = map[string]string{
	"pull_request":           "requires_pull_request",
	"strict_status_checks":   "requires_status_checks",
	"required_status_checks": "requires_status_checks",
	"merge_queue":            "requires_merge_queue",
}

// a branch ruleset is never matched to a tag ruleset of the same name
func sameRulesetTarget(desired, live *Object) bool {
	return !desired.Has("target") || desired.String("target") == live.String("target")
}

var OrganizationRulesetSchema = &Schema{
	Type:         TypeRuleset,
	Key:          "name",
	Fields:       rulesetFields(true),
	Include:      onlyWhen(rulesetGates),
	ValidKey:     sameRulesetTarget,
	FromProvider: rulesetFromProvider,
	ToProvider:   rulesetToProvider,
}

var RepositoryRulesetSchema = &Schema{
	Type:         TypeRuleset,
	Key:          "name",
	Fields:       rulesetFields(false),
	Include:      onlyWhen(rulesetGates),
	ValidKey:     sameRulesetTarget,
	FromProvider: rulesetFromProvider,
	ToProvider:   rulesetToProvider,
}

// rule types whose presence forbids an action
var prohibitingRules = map[string]string{
	"creation":         "allows_creations",
	"update":           "allows_updates",
	"deletion":         "allows_deletions",
	"non_fast_forward": "allows_force_pushes",
}

// rule types whose presence requires something
var requiringRules = map[string]string{
	"required_linear_history": "requires_linear_history",
	"required_signatures":     "requires_commit_signatures",
	"pull_request":            "requires_pull_request",
	"required_status_checks":  "requires_status_checks",
	"merge_queue":             "requires_merge_queue",
}

// rulesetFromProvider flattens the platform's list of typed rules into
// boolean switches plus parameter blocks
func rulesetFromProvider(p Payload) Payload {
	out := Payload{}
	for _, k := range []string{"id", "name", "target", "enforcement"} {
		if v, ok := p[k]; ok {
			out[k] = v
		}
	}
	for from, to := range map[string]string{
		"conditions.ref_name.include":        "include_refs",
		"conditions.ref_name.exclude":        "exclude_refs",
		"conditions.repository_name.include": "include_repo_names",
		"conditions.repository_name.exclude": "exclude_repo_names",
	} {
		if v, ok := lookup(p, from); ok {
			out[to] = v
		}
	}

	if actors, ok := p["bypass_actors"].([]any); ok {
		encoded := make([]any, 0, len(actors))
		for _, a := range actors {
			if m, ok := a.(map[string]any); ok {
				encoded = append(encoded, encodeBypassActor(m))
			}
		}
		out["bypass_actors"] = encoded
	}

	present := map[string]map[string]any{}
	if rules, ok := p["rules"].([]any); ok {
		for _, r := range rules {
			rule, ok := r.(map[string]any)
			if !ok {
				continue
			}
			t, _ := rule["type"].(string)
			params, _ := rule["parameters"].(map[string]any)
			if params == nil {
				params = map[string]any{}
			}
			present[t] = params
		}
	}
	for t, field := range prohibitingRules {
		_, has := present[t]
		out[field] = !has
	}
	for t, field := range requiringRules {
		_, has := present[t]
		out[field] = has
	}
	if params, ok := present["pull_request"]; ok {
		out["pull_request"] = params
	}
	if params, ok := present["merge_queue"]; ok {
		out["merge_queue"] = params
	}
	if params, ok := present["required_status_checks"]; ok {
		out["strict_status_checks"] = params["strict_required_status_checks_policy"]
		var contexts []any
		if checks, ok := params["required_status_checks"].([]any); ok {
			for _, c := range checks {
				if m, ok := c.(map[string]any); ok {
					contexts = append(contexts, m["context"])
				}
			}
		}
		out["required_status_checks"] = contexts
	}
	return out
}

// rulesetToProvider is the inverse of rulesetFromProvider
func rulesetToProvider(p Payload) Payload {
	out := Payload{}
	for _, k := range []string{"name", "target", "enforcement"} {
		if v, ok := p[k]; ok {
			out[k] = v
		}
	}

	conditions := map[string]any{}
	if refs := refCondition(p, "include_refs", "exclude_refs"); refs != nil {
		conditions["ref_name"] = refs
	}
	if repos := refCondition(p, "include_repo_names", "exclude_repo_names"); repos != nil {
		conditions["repository_name"] = repos
	}
	if len(conditions) > 0 {
		out["conditions"] = conditions
	}

	if actors, ok := p["bypass_actors"].([]string); ok {
		decoded := make([]any, 0, len(actors))
		for _, a := range actors {
			decoded = append(decoded, decodeBypassActor(a))
		}
		out["bypass_actors"] = decoded
	}

	rules := []any{}
	for _, t := range sortedRuleTypes(prohibitingRules) {
		if allowed, ok := p[prohibitingRules[t]].(bool); ok && !allowed {
			rules = append(rules, map[string]any{"type": t})
		}
	}
	for _, t := range sortedRuleTypes(requiringRules) {
		if required, _ := p[requiringRules[t]].(bool); !required {
			continue
		}
		rule := map[string]any{"type": t}
		switch t {
		case "pull_request", "merge_queue":
			params, _ := p[t].(map[string]any)
			if params == nil {
				params = map[string]any{}
			}
			rule["parameters"] = params
		case "required_status_checks":
			checks := []any{}
			contexts, _ := p["required_status_checks"].([]string)
			for _, c := range contexts {
				checks = append(checks, map[string]any{"context": c})
			}
			strict, _ := p["strict_status_checks"].(bool)
			rule["parameters"] = map[string]any{
				"strict_required_status_checks_policy": strict,
				"required_status_checks":               checks,
			}
		}
		rules = append(rules, rule)
	}
	out["rules"] = rules
	return out
}

func refCondition(p Payload, includeKey, excludeKey string) map[string]any {
	include, hasInclude := p[includeKey].([]string)
	exclude, hasExclude := p[excludeKey].([]string)
	if !hasInclude && !hasExclude {
		return nil
	}
	if include == nil {
		include = []string{}
	}
	if exclude == nil {
		exclude = []string{}
	}
	return map[string]any{"include": include, "exclude": exclude}
}

func sortedRuleTypes(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// bypass actors are written in configuration as "<type>:<id>:<mode>"
func encodeBypassActor(m map[string]any) string {
	id := ""
	switch x := m["actor_id"].(type) {
	case float64:
		id = strconv.FormatInt(int64(x), 10)
	case int64:
		id = strconv.FormatInt(x, 10)
	case int:
		id = strconv.Itoa(x)
	}
	return fmt.Sprintf("%v:%s:%v", m["actor_type"], id, m["bypass_mode"])
}

func decodeBypassActor(s string) map[string]any {
	parts := strings.SplitN(s, ":", 3)
	for len(parts) < 3 {
		parts = append(parts, "")
	}
	actor := map[string]any{"actor_type": parts[0], "bypass_mode": parts[2]}
	if parts[2] == "" {
		actor["bypass_mode"] = "always"
	}
	if id, err := strconv.ParseInt(parts[1], 10, 64); err == nil {
		actor["actor_id"] = id
	} else {
		actor["actor_id"] = nil
	}
	return actor
}
