package engine

import (
	"context"

	"orgsync/pkg/apply"
	"orgsync/pkg/model"
	"orgsync/pkg/provider"
)

// Session is one organization's connection to the platform
type Session interface {
	apply.Writer
	FetchLive(ctx context.Context) (*model.Object, []provider.Warning, error)
	Close() error
}

// Opener starts sessions. It is implemented by the provider and by test
// doubles.
type Opener interface {
	Open(ctx context.Context, org string, creds provider.Credentials) (Session, error)
}

type providerOpener struct {
	p *provider.Provider
}

// FromProvider adapts a provider to the Opener interface
func FromProvider(p *provider.Provider) Opener {
	return providerOpener{p: p}
}

func (o providerOpener) Open(ctx context.Context, org string, creds provider.Credentials) (Session, error) {
	s, err := o.p.Open(ctx, org, creds)
	if err != nil {
		return nil, err
	}
	return s, nil
}
