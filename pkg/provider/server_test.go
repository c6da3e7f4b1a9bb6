package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

// reply is a canned response with a non-default status or headers
type reply struct {
	status int
	header map[string]string
	body   any
}

// recordedRequest is one request received by the mock server
type recordedRequest struct {
	Method string
	Path   string
	Header http.Header
	Body   map[string]any
}

type mockServer struct {
	*httptest.Server

	mu        sync.Mutex
	responses map[string]any
	requests  []recordedRequest
}

// newMockServer creates a test HTTP server that mocks platform API
// responses. Keys are "METHOD path" with REST paths relative to the API
// root; the graph API is served as "POST /graphql". A value may be a reply,
// a func returning one, or any JSON body served with 200.
func newMockServer(t *testing.T, responses map[string]any) *mockServer {
	t.Helper()
	m := &mockServer{responses: responses}
	m.Server = httptest.NewServer(http.HandlerFunc(m.handle))
	t.Cleanup(m.Close)
	return m
}

func (m *mockServer) handle(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v3")
	if r.URL.Path == "/api/graphql" {
		path = "/graphql"
	}

	rec := recordedRequest{Method: r.Method, Path: path, Header: r.Header.Clone()}
	if data, _ := io.ReadAll(r.Body); len(data) > 0 {
		_ = json.Unmarshal(data, &rec.Body)
	}

	key := fmt.Sprintf("%s %s", r.Method, path)
	m.mu.Lock()
	m.requests = append(m.requests, rec)
	response, exists := m.responses[key]
	m.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if !exists {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "Not Found"})
		return
	}

	if fn, ok := response.(func(r *http.Request) reply); ok {
		response = fn(r)
	}
	rep, ok := response.(reply)
	if !ok {
		rep = reply{status: http.StatusOK, body: response}
	}
	for k, v := range rep.header {
		w.Header().Set(k, v)
	}
	if rep.status == 0 {
		rep.status = http.StatusOK
	}
	w.WriteHeader(rep.status)
	if rep.body != nil {
		_ = json.NewEncoder(w).Encode(rep.body)
	}
}

// set replaces the response for one key
func (m *mockServer) set(key string, response any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[key] = response
}

// received returns the requests matching "METHOD path"
func (m *mockServer) received(key string) []recordedRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []recordedRequest
	for _, r := range m.requests {
		if r.Method+" "+r.Path == key {
			out = append(out, r)
		}
	}
	return out
}

// staticCredentials returns fixed values
type staticCredentials struct {
	token, username, password, otp string
}

func (c staticCredentials) Token() (string, error)    { return c.token, nil }
func (c staticCredentials) Username() (string, error) { return c.username, nil }
func (c staticCredentials) Password() (string, error) { return c.password, nil }
func (c staticCredentials) OTP() (string, error)      { return c.otp, nil }

var testCreds = staticCredentials{token: "test-token", username: "octo", password: "secret", otp: "123456"}

// newTestProvider creates a provider pointed at the mock server that never
// sleeps between retries
func newTestProvider(t *testing.T, srv *mockServer, opts ...Option) *Provider {
	t.Helper()
	cfg := DefaultConfig()
	cfg.BaseURL = srv.URL + "/api/v3/"
	cfg.GraphQLURL = srv.URL + "/api/graphql"
	cfg.RequestTimeout = 5 * time.Second

	opts = append([]Option{WithWebClient(nil), WithPool(NewPool(PoolConfig{Size: 4}))}, opts...)
	p := New(cfg, opts...)
	p.sleep = func(context.Context, time.Duration) error { return nil }
	return p
}

func openSession(t *testing.T, p *Provider) *Session {
	t.Helper()
	s, err := p.Open(context.Background(), "acme", testCreds)
	if err != nil {
		t.Fatalf("failed to open session: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}
