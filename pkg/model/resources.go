package model

// WebhookSchema is shared by organization and repository webhooks
var WebhookSchema = &Schema{
	Type: TypeWebhook,
	Key:  "url",
	Fields: []Field{
		num("id").readOnly(),
		str("url").provider("config.url"),
		flag("active"),
		list("events"),
		str("content_type").provider("config.content_type"),
		str("insecure_ssl").provider("config.insecure_ssl"),
		str("secret").secret().provider("config.secret"),
	},
}

var OrganizationSecretSchema = &Schema{
	Type:    TypeSecret,
	Key:     "name",
	FoldKey: true,
	Fields: []Field{
		str("name"),
		str("value").secret(),
		str("visibility"),
	},
}

var RepositorySecretSchema = &Schema{
	Type:    TypeSecret,
	Key:     "name",
	FoldKey: true,
	Fields: []Field{
		str("name"),
		str("value").secret(),
	},
}

var OrganizationVariableSchema = &Schema{
	Type:    TypeVariable,
	Key:     "name",
	FoldKey: true,
	Fields: []Field{
		str("name"),
		str("value"),
		str("visibility"),
	},
}

var RepositoryVariableSchema = &Schema{
	Type:    TypeVariable,
	Key:     "name",
	FoldKey: true,
	Fields: []Field{
		str("name"),
		str("value"),
	},
}

// EnvironmentSchema describes a deployment environment of a repository
var EnvironmentSchema = &Schema{
	Type: TypeEnvironment,
	Key:  "name",
	Fields: []Field{
		str("name"),
		num("wait_timer"),
		flag("prevent_self_review"),
		flag("can_admins_bypass"),
		str("deployment_branch_policy"),
	},
	FromProvider: environmentFromProvider,
	ToProvider:   environmentToProvider,
}

// environments report protection rules as a list of typed entries and the
// branch policy as an object; the model flattens both
func environmentFromProvider(p Payload) Payload {
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = v
	}
	if rules, ok := p["protection_rules"].([]any); ok {
		for _, r := range rules {
			rule, ok := r.(map[string]any)
			if !ok {
				continue
			}
			switch rule["type"] {
			case "wait_timer":
				out["wait_timer"] = rule["wait_timer"]
			case "required_reviewers":
				out["prevent_self_review"] = rule["prevent_self_review"]
			}
		}
	}
	if policy, present := p["deployment_branch_policy"]; present {
		switch x := policy.(type) {
		case nil:
			out["deployment_branch_policy"] = "all"
		case map[string]any:
			if b, _ := x["protected_branches"].(bool); b {
				out["deployment_branch_policy"] = "protected"
			} else {
				out["deployment_branch_policy"] = "selected"
			}
		}
	}
	return out
}

func environmentToProvider(p Payload) Payload {
	policy, ok := p["deployment_branch_policy"].(string)
	if !ok {
		return p
	}
	switch policy {
	case "protected":
		p["deployment_branch_policy"] = map[string]any{"protected_branches": true, "custom_branch_policies": false}
	case "selected":
		p["deployment_branch_policy"] = map[string]any{"protected_branches": false, "custom_branch_policies": true}
	default:
		p["deployment_branch_policy"] = nil
	}
	return p
}

var TeamSchema = &Schema{
	Type:    TypeTeam,
	Key:     "name",
	FoldKey: true,
	Fields: []Field{
		num("id").readOnly(),
		str("slug").readOnly(),
		str("name"),
		str("description"),
		str("privacy"),
		list("members").foldCase(),
	},
}

// RoleSchema describes a custom organization role
var RoleSchema = &Schema{
	Type: TypeRole,
	Key:  "name",
	Fields: []Field{
		num("id").readOnly(),
		str("name"),
		str("description"),
		str("base_role"),
		list("permissions"),
	},
}

var CustomPropertySchema = &Schema{
	Type: TypeCustomProperty,
	Key:  "name",
	Fields: []Field{
		str("name").provider("property_name"),
		str("value_type"),
		flag("required"),
		str("default_value"),
		str("description"),
		list("allowed_values").ordered(),
	},
	Include: func(f *Field, desired, live *Object) bool {
		if f.Name != "allowed_values" {
			return true
		}
		vt := desired.String("value_type")
		if vt == "" && live != nil {
			vt = live.String("value_type")
		}
		return vt == "single_select" || vt == "multi_select"
	},
	// a property cannot change its value type in place
	ValidKey: func(desired, live *Object) bool {
		return !desired.Has("value_type") || desired.String("value_type") == live.String("value_type")
	},
}
