package model

// Resource type names as reported in patches
const (
	TypeOrganization                 = "Organization"
	TypeOrganizationWorkflowSettings = "OrganizationWorkflowSettings"
	TypeRepository                   = "Repository"
	TypeRepositoryWorkflowSettings   = "RepositoryWorkflowSettings"
	TypeWebhook                      = "Webhook"
	TypeSecret                       = "Secret"
	TypeVariable                     = "Variable"
	TypeEnvironment                  = "Environment"
	TypeBranchProtectionRule         = "BranchProtectionRule"
	TypeRuleset                      = "Ruleset"
	TypePullRequestSettings          = "PullRequestSettings"
	TypeMergeQueueSettings           = "MergeQueueSettings"
	TypeTeam                         = "Team"
	TypeRole                         = "Role"
	TypeCustomProperty               = "CustomProperty"
)

// Field names shared by several resource types
const (
	FieldWorkflows             = "workflows"
	FieldWebhooks              = "webhooks"
	FieldSecrets               = "secrets"
	FieldVariables             = "variables"
	FieldEnvironments          = "environments"
	FieldBranchProtectionRules = "branch_protection_rules"
	FieldRulesets              = "rulesets"
	FieldRepositories          = "repositories"
	FieldTeams                 = "teams"
	FieldRoles                 = "roles"
	FieldCustomProperties      = "custom_properties"
)

func str(name string) Field  { return Field{Name: name, Type: TypeString} }
func flag(name string) Field { return Field{Name: name, Type: TypeBool} }
func num(name string) Field  { return Field{Name: name, Type: TypeInt} }
func list(name string) Field { return Field{Name: name, Type: TypeList} }

func embedded(name string, s *Schema) Field {
	return Field{Name: name, Kind: KindEmbedded, Schema: s}
}

func collection(name string, s *Schema) Field {
	return Field{Name: name, Kind: KindCollection, Schema: s}
}

func (f Field) readOnly() Field  { f.Kind = KindReadOnly; return f }
func (f Field) secret() Field    { f.Kind = KindSecret; return f }
func (f Field) modelOnly() Field { f.Kind = KindModelOnly; return f }
func (f Field) ordered() Field   { f.Ordered = true; return f }
func (f Field) terminal() Field  { f.Terminal = true; return f }
func (f Field) foldCase() Field  { f.FoldCase = true; return f }
func (f Field) web() Field       { f.Source = SourceWeb; return f }
func (f Field) graphql() Field   { f.Source = SourceGraphQL; return f }

func (f Field) provider(key string) Field {
	f.ProviderKey = key
	return f
}

func (f Field) config(key string) Field {
	f.ConfigKey = key
	return f
}

// onlyWhen builds an inclusion predicate that drops the listed fields unless
// the gate field is true on the desired side, falling back to the live side
func onlyWhen(gates map[string]string) func(f *Field, desired, live *Object) bool {
	return func(f *Field, desired, live *Object) bool {
		gate, ok := gates[f.Name]
		if !ok {
			return true
		}
		if desired != nil && desired.Has(gate) {
			return desired.Bool(gate)
		}
		return live != nil && live.Bool(gate)
	}
}

// Schemas returns every registered resource type keyed by name. Types that
// exist at both organization and repository scope return the organization one.
func Schemas() map[string]*Schema {
	out := map[string]*Schema{}
	var walk func(s *Schema)
	walk = func(s *Schema) {
		if _, seen := out[s.Type]; seen {
			return
		}
		out[s.Type] = s
		for i := range s.Fields {
			if s.Fields[i].Schema != nil {
				walk(s.Fields[i].Schema)
			}
		}
	}
	walk(OrganizationSchema)
	return out
}
