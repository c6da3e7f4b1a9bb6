package model

// RepositorySchema describes a repository and everything scoped to it
var RepositorySchema = &Schema{
	Type:    TypeRepository,
	Key:     "name",
	FoldKey: true,
	Fields: []Field{
		str("name"),
		str("node_id").readOnly(),
		str("description"),
		str("homepage"),
		str("visibility"),
		flag("archived").terminal(),
		flag("is_template"),
		str("default_branch"),
		flag("has_issues"),
		flag("has_projects"),
		flag("has_wiki"),
		flag("has_discussions"),
		flag("allow_merge_commit"),
		flag("allow_squash_merge"),
		flag("allow_rebase_merge"),
		flag("allow_auto_merge"),
		flag("allow_update_branch"),
		flag("delete_branch_on_merge"),
		flag("web_commit_signoff_required"),
		str("squash_merge_commit_title"),
		str("squash_merge_commit_message"),
		str("merge_commit_title"),
		str("merge_commit_message"),
		list("topics"),
		str("secret_scanning").provider("security_and_analysis.secret_scanning.status"),
		str("secret_scanning_push_protection").provider("security_and_analysis.secret_scanning_push_protection.status"),
		str("dependabot_security_updates").provider("security_and_analysis.dependabot_security_updates.status"),

		flag("auto_init").modelOnly(),
		str("template_repository").modelOnly(),
		flag("security_features").modelOnly(),

		embedded(FieldWorkflows, RepositoryWorkflowSettingsSchema),
		collection(FieldWebhooks, WebhookSchema),
		collection(FieldSecrets, RepositorySecretSchema),
		collection(FieldVariables, RepositoryVariableSchema),
		collection(FieldEnvironments, EnvironmentSchema),
		collection(FieldBranchProtectionRules, BranchProtectionRuleSchema),
		collection(FieldRulesets, RepositoryRulesetSchema),
	},
	Include: onlyWhen(map[string]string{
		"squash_merge_commit_title":   "allow_squash_merge",
		"squash_merge_commit_message": "allow_squash_merge",
		"merge_commit_title":          "allow_merge_commit",
		"merge_commit_message":        "allow_merge_commit",
	}),
	Expand: expandSecurityFeatures,
}

// security_features switches every secret scanning setting at once unless a
// setting is given explicitly
func expandSecurityFeatures(o *Object) {
	if !o.Has("security_features") {
		return
	}
	status := "disabled"
	if o.Bool("security_features") {
		status = "enabled"
	}
	for _, name := range []string{"secret_scanning", "secret_scanning_push_protection", "dependabot_security_updates"} {
		if !o.Has(name) {
			o.Set(name, status)
		}
	}
}
