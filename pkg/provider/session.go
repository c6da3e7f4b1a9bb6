package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/go-github/v66/github"
	"github.com/rs/zerolog"
	"github.com/shurcooL/githubv4"

	"orgsync/pkg/model"
)

// Session is the provider bound to one organization and its credentials.
// It reads live state and performs the writes the applier asks for. The
// web session behind it is created on first use and released by Close.
type Session struct {
	org    string
	p      *Provider
	creds  Credentials
	rest   *github.Client
	gql    *githubv4.Client
	logger zerolog.Logger

	webMu  sync.Mutex
	web    WebClient
	webErr error
}

// Org returns the organization the session is bound to
func (s *Session) Org() string { return s.org }

// Close releases the web session, if one was started
func (s *Session) Close() error {
	s.webMu.Lock()
	defer s.webMu.Unlock()
	if s.web == nil {
		return nil
	}
	err := s.web.Close()
	s.web = nil
	return err
}

// call runs one REST request with retries, converting its error
func (s *Session) call(ctx context.Context, resource string, fn func() (*github.Response, error)) error {
	return withRetry(ctx, s.p.cfg.Retry, s.p.sleep, func() error {
		_, err := fn()
		return Wrap(err, resource)
	})
}

// paginate collects every page of a list endpoint
func paginate[T any](ctx context.Context, s *Session, resource string, list func(opts github.ListOptions) ([]T, *github.Response, error)) ([]T, error) {
	var all []T
	opts := github.ListOptions{PerPage: 100}
	for {
		var page []T
		var resp *github.Response
		err := s.call(ctx, resource, func() (*github.Response, error) {
			var err error
			page, resp, err = list(opts)
			return resp, err
		})
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if resp == nil || resp.NextPage == 0 {
			return all, nil
		}
		opts.Page = resp.NextPage
	}
}

// getJSON reads an endpoint without a typed binding into v
func (s *Session) getJSON(ctx context.Context, resource, path string, v any) (*github.Response, error) {
	var resp *github.Response
	err := s.call(ctx, resource, func() (*github.Response, error) {
		req, err := s.rest.NewRequest("GET", path, nil)
		if err != nil {
			return nil, err
		}
		resp, err = s.rest.Do(ctx, req, v)
		return resp, err
	})
	return resp, err
}

// sendJSON writes to an endpoint without a typed binding
func (s *Session) sendJSON(ctx context.Context, resource, method, path string, body any) error {
	return s.call(ctx, resource, func() (*github.Response, error) {
		req, err := s.rest.NewRequest(method, path, body)
		if err != nil {
			return nil, err
		}
		return s.rest.Do(ctx, req, nil)
	})
}

// toPayload converts an API struct into a generic payload
func toPayload(v any) (model.Payload, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}
	var p model.Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to decode payload: %w", err)
	}
	if p == nil {
		p = model.Payload{}
	}
	return p, nil
}

// decodeInto converts a generic payload into an API struct
func decodeInto(p model.Payload, v any) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode payload into %T: %w", v, err)
	}
	return nil
}

func payloads[T any](items []T) ([]any, error) {
	out := make([]any, 0, len(items))
	for _, item := range items {
		p, err := toPayload(item)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func resourceName(org, repo, kind string) string {
	if repo == "" {
		return fmt.Sprintf("%s %s", kind, org)
	}
	return fmt.Sprintf("%s %s/%s", kind, org, repo)
}
