package auth

// Options select the credential sources of a Manager
type Options struct {
	// CredentialsFile is an INI file with one section per organization.
	// Empty disables the file source.
	CredentialsFile string
	// Interactive enables terminal prompts for anything not found elsewhere
	Interactive bool
}

// Manager hands out per-organization credentials backed by a chain of
// sources: environment, credentials file, then terminal prompt
type Manager struct {
	source Source
}

// NewManager creates a manager with the sources selected by opts
func NewManager(opts Options) (*Manager, error) {
	chain := Chain{NewEnvSource()}

	if opts.CredentialsFile != "" {
		file, err := LoadFile(opts.CredentialsFile)
		if err != nil {
			return nil, err
		}
		chain = append(chain, file)
	}

	if opts.Interactive {
		chain = append(chain, NewPromptSource())
	}

	return &Manager{source: chain}, nil
}

// NewManagerWithSource creates a manager reading a single source
func NewManagerWithSource(source Source) *Manager {
	return &Manager{source: source}
}

// For returns the credentials of org
func (m *Manager) For(org string) *Credentials {
	return For(org, m.source)
}
