package provider

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
)

// CachingTransport is an http.RoundTripper that caches successful POST
// responses on disk keyed by request body. Deterministic LLM calls
// (temperature 0 prompts in tests and local development) replay from disk
// instead of hitting the provider.
type CachingTransport struct {
	dir   string
	inner http.RoundTripper
}

// NewCachingTransport creates a transport caching into dir. A nil inner
// falls back to http.DefaultTransport.
func NewCachingTransport(dir string, inner http.RoundTripper) *CachingTransport {
	if inner == nil {
		inner = http.DefaultTransport
	}
	return &CachingTransport{dir: dir, inner: inner}
}

type cachedResponse struct {
	StatusCode int         `json:"statusCode"`
	Header     http.Header `json:"header"`
	Body       []byte      `json:"body"`
}

// RoundTrip serves from cache when possible, otherwise forwards and caches
// 2xx responses. Non-POST requests and body read failures bypass the cache.
func (t *CachingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Method != http.MethodPost || req.Body == nil {
		return t.inner.RoundTrip(req)
	}

	body, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, err
	}
	req.Body = io.NopCloser(bytes.NewReader(body))

	path := filepath.Join(t.dir, t.cacheKey(req.Method, req.URL.String(), body))
	if resp, ok := t.readCache(path, req); ok {
		return resp, nil
	}

	resp, err := t.inner.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	respBody, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, err
	}
	resp.Body = io.NopCloser(bytes.NewReader(respBody))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		t.writeCache(path, resp.StatusCode, resp.Header, respBody)
	}
	return resp, nil
}

func (t *CachingTransport) cacheKey(method, url string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte(url))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil)) + ".json"
}

func (t *CachingTransport) readCache(path string, req *http.Request) (*http.Response, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	var cached cachedResponse
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, false
	}
	return &http.Response{
		StatusCode: cached.StatusCode,
		Header:     cached.Header,
		Body:       io.NopCloser(bytes.NewReader(cached.Body)),
		Request:    req,
	}, true
}

func (t *CachingTransport) writeCache(path string, statusCode int, header http.Header, body []byte) {
	if err := os.MkdirAll(t.dir, 0o755); err != nil {
		return
	}
	data, err := json.Marshal(cachedResponse{StatusCode: statusCode, Header: header, Body: body})
	if err != nil {
		return
	}
	_ = os.WriteFile(path, data, 0o644)
}
