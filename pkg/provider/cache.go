package provider

import (
	"bytes"
	"io"
	"net/http"
	"sync"

	"orgsync/pkg/telemetry"
)

// Cache is an append-only store of conditional-request validators and the
// payloads they validate. Entries are locked individually so concurrent
// requests for different resources never wait on each other.
type Cache struct {
	entries sync.Map // string -> *cacheEntry
}

type cacheEntry struct {
	mu     sync.Mutex
	etag   string
	header http.Header
	body   []byte
}

// NewCache creates an empty cache
func NewCache() *Cache {
	return &Cache{}
}

func (c *Cache) entry(key string) *cacheEntry {
	if e, ok := c.entries.Load(key); ok {
		return e.(*cacheEntry)
	}
	e, _ := c.entries.LoadOrStore(key, &cacheEntry{})
	return e.(*cacheEntry)
}

// Len returns the number of stored responses
func (c *Cache) Len() int {
	n := 0
	c.entries.Range(func(_, v any) bool {
		e := v.(*cacheEntry)
		e.mu.Lock()
		if e.etag != "" {
			n++
		}
		e.mu.Unlock()
		return true
	})
	return n
}

// cacheTransport revalidates GET requests with If-None-Match. A 304 is
// turned back into the stored 200 so callers never see it.
type cacheTransport struct {
	cache   *Cache
	metrics *telemetry.Metrics
	base    http.RoundTripper
}

// NewTransport wraps base with conditional-request caching backed by c
func NewTransport(c *Cache, base http.RoundTripper) http.RoundTripper {
	return &cacheTransport{cache: c, base: base}
}

func cacheKey(req *http.Request) string {
	// the token is part of the key so organizations never read each other's entries
	return req.Method + " " + req.URL.String() + " " + req.Header.Get("Authorization") + " " + req.Header.Get("Accept")
}

func (t *cacheTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Method != http.MethodGet || t.cache == nil {
		return t.base.RoundTrip(req)
	}

	e := t.cache.entry(cacheKey(req))
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.etag != "" {
		req = req.Clone(req.Context())
		req.Header.Set("If-None-Match", e.etag)
	}

	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusNotModified && e.etag != "" {
		t.metrics.CacheResult(true)
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		return e.response(req, resp), nil
	}
	t.metrics.CacheResult(false)

	etag := resp.Header.Get("ETag")
	if resp.StatusCode != http.StatusOK || etag == "" {
		return resp, nil
	}

	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, err
	}
	e.etag = etag
	e.header = resp.Header.Clone()
	e.body = body

	resp.Body = io.NopCloser(bytes.NewReader(body))
	return resp, nil
}

// response rebuilds the stored 200 while keeping the fresh rate limit
// headers of the 304
func (e *cacheEntry) response(req *http.Request, notModified *http.Response) *http.Response {
	header := e.header.Clone()
	for _, h := range []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "X-RateLimit-Used"} {
		if v := notModified.Header.Get(h); v != "" {
			header.Set(h, v)
		}
	}
	return &http.Response{
		Status:        "200 OK",
		StatusCode:    http.StatusOK,
		Proto:         notModified.Proto,
		ProtoMajor:    notModified.ProtoMajor,
		ProtoMinor:    notModified.ProtoMinor,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(e.body)),
		ContentLength: int64(len(e.body)),
		Request:       req,
	}
}
