package model

// OrganizationSchema is the root of every desired and live tree
var OrganizationSchema = &Schema{
	Type:    TypeOrganization,
	Key:     "login",
	FoldKey: true,
	Fields: []Field{
		str("login").readOnly(),
		str("name"),
		str("description"),
		str("company"),
		str("email"),
		str("blog"),
		str("location"),
		str("twitter_username"),
		str("billing_email"),
		str("plan").readOnly().provider("plan.name"),
		flag("two_factor_requirement").readOnly().provider("two_factor_requirement_enabled"),
		str("default_repository_permission"),
		flag("members_can_create_public_repositories"),
		flag("members_can_create_private_repositories"),
		flag("members_can_create_internal_repositories"),
		flag("members_can_fork_private_repositories"),
		flag("members_can_create_pages"),
		flag("web_commit_signoff_required"),
		flag("has_organization_projects"),
		flag("has_repository_projects"),
		flag("dependabot_alerts_enabled_for_new_repositories"),
		flag("dependabot_security_updates_enabled_for_new_repositories"),
		flag("dependency_graph_enabled_for_new_repositories"),
		flag("secret_scanning_enabled_for_new_repositories"),
		flag("secret_scanning_push_protection_enabled_for_new_repositories"),

		// not exposed by any API
		flag("readers_can_create_discussions").web(),
		flag("members_can_change_repo_visibility").web(),
		flag("members_can_delete_repositories").web(),
		flag("members_can_delete_issues").web(),
		flag("members_can_create_teams").web(),
		flag("members_can_invite_outside_collaborators").web(),
		flag("display_commenter_full_name").web(),
		str("default_branch_name").web(),
		flag("packages_containers_public").web(),
		flag("packages_containers_internal").web(),

		embedded(FieldWorkflows, OrganizationWorkflowSettingsSchema),
		collection(FieldCustomProperties, CustomPropertySchema),
		collection(FieldRoles, RoleSchema),
		collection(FieldTeams, TeamSchema),
		collection(FieldWebhooks, WebhookSchema),
		collection(FieldSecrets, OrganizationSecretSchema),
		collection(FieldVariables, OrganizationVariableSchema),
		collection(FieldRulesets, OrganizationRulesetSchema),
		collection(FieldRepositories, RepositorySchema),
	},
}

// OrganizationWorkflowSettingsSchema holds the organization's Actions policy
var OrganizationWorkflowSettingsSchema = &Schema{
	Type: TypeOrganizationWorkflowSettings,
	Fields: []Field{
		str("enabled_repositories"),
		str("allowed_actions"),
		flag("allow_github_owned_actions").provider("github_owned_allowed"),
		flag("allow_verified_creator_actions").provider("verified_allowed"),
		list("allow_action_patterns").provider("patterns_allowed"),
		str("default_workflow_permissions"),
		flag("actions_can_approve_pull_request_reviews").provider("can_approve_pull_request_reviews"),
	},
	Include: selectedActionsOnly,
}

// RepositoryWorkflowSettingsSchema holds a repository's Actions policy
var RepositoryWorkflowSettingsSchema = &Schema{
	Type: TypeRepositoryWorkflowSettings,
	Fields: []Field{
		flag("enabled"),
		str("allowed_actions"),
		flag("allow_github_owned_actions").provider("github_owned_allowed"),
		flag("allow_verified_creator_actions").provider("verified_allowed"),
		list("allow_action_patterns").provider("patterns_allowed"),
		str("default_workflow_permissions"),
		flag("actions_can_approve_pull_request_reviews").provider("can_approve_pull_request_reviews"),
	},
	Include: selectedActionsOnly,
}

// the allow-list fields only exist while allowed_actions is "selected"
func selectedActionsOnly(f *Field, desired, live *Object) bool {
	switch f.Name {
	case "allow_github_owned_actions", "allow_verified_creator_actions", "allow_action_patterns":
	default:
		return true
	}
	if desired != nil && desired.Has("allowed_actions") {
		return desired.String("allowed_actions") == "selected"
	}
	return live != nil && live.String("allowed_actions") == "selected"
}
