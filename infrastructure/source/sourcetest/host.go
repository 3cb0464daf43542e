// Package sourcetest provides an in-process fake repository host for
// adapter tests. It speaks the same GitHub-shaped REST dialect the
// remote adapter consumes, with seedable repositories, failure
// injection, and request counting.
package sourcetest

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
)

// SeedBranch is one branch of a seeded repository.
type SeedBranch struct {
	Name string
	SHA  string
}

// SeedCommit is one commit of a seeded repository, newest first in the
// branch's slice.
type SeedCommit struct {
	SHA         string
	Message     string
	AuthorName  string
	AuthorEmail string
	At          time.Time
}

// SeedRepo is a repository the host serves.
type SeedRepo struct {
	Owner         string
	Name          string
	Description   string
	DefaultBranch string
	Language      string
	Private       bool
	Fork          bool
	Archived      bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
	PushedAt      time.Time

	Branches []SeedBranch
	// Commits maps branch name to its history, newest first.
	Commits map[string][]SeedCommit
	// Files maps path to content; the same snapshot is served for every
	// ref.
	Files map[string]string
}

// Host is a fake repository host backed by httptest.Server.
type Host struct {
	server *httptest.Server

	mu         sync.Mutex
	repos      map[string]SeedRepo
	token      string
	failures   int
	throttles  int
	retryAfter time.Duration
	total      int
	hits       map[string]int
}

// NewHost starts a fake host with no repositories seeded.
func NewHost() *Host {
	h := &Host{
		repos: make(map[string]SeedRepo),
		hits:  make(map[string]int),
	}

	router := chi.NewRouter()
	router.Use(h.gate)
	router.Get("/repos/{owner}/{name}", h.getRepo)
	router.Get("/repos/{owner}/{name}/branches", h.getBranches)
	router.Get("/repos/{owner}/{name}/commits", h.getCommits)
	router.Get("/repos/{owner}/{name}/git/trees/{ref}", h.getTree)
	router.Get("/repos/{owner}/{name}/contents/*", h.getContents)

	h.server = httptest.NewServer(router)
	return h
}

// URL returns the API base URL of the fake host.
func (h *Host) URL() string { return h.server.URL }

// Close shuts the host down.
func (h *Host) Close() { h.server.Close() }

// Seed adds or replaces a repository.
func (h *Host) Seed(r SeedRepo) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.repos[r.Owner+"/"+r.Name] = r
}

// RequireToken makes every request demand the given bearer token.
func (h *Host) RequireToken(token string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.token = token
}

// FailNext makes the next n requests answer 500.
func (h *Host) FailNext(n int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failures = n
}

// ThrottleNext makes the next n requests answer 429 with the given
// Retry-After delay.
func (h *Host) ThrottleNext(n int, retryAfter time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.throttles = n
	h.retryAfter = retryAfter
}

// Requests returns how many requests the host has seen, including
// injected failures.
func (h *Host) Requests() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.total
}

// Hits returns how many requests reached the given method and path.
func (h *Host) Hits(method, path string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.hits[method+" "+path]
}

// gate counts every request and applies injected throttling, failures,
// and the token requirement before the route handlers run.
func (h *Host) gate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.mu.Lock()
		h.total++
		h.hits[r.Method+" "+r.URL.Path]++
		throttled := h.throttles > 0
		if throttled {
			h.throttles--
		}
		failing := !throttled && h.failures > 0
		if failing {
			h.failures--
		}
		token := h.token
		retryAfter := h.retryAfter
		h.mu.Unlock()

		switch {
		case throttled:
			if retryAfter > 0 {
				w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())))
			}
			writeJSON(w, http.StatusTooManyRequests, map[string]string{"message": "rate limited"})
		case failing:
			writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "server error"})
		case token != "" && r.Header.Get("Authorization") != "Bearer "+token:
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "bad credentials"})
		default:
			next.ServeHTTP(w, r)
		}
	})
}

func (h *Host) repoFor(r *http.Request) (SeedRepo, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	seed, ok := h.repos[chi.URLParam(r, "owner")+"/"+chi.URLParam(r, "name")]
	return seed, ok
}

func (h *Host) getRepo(w http.ResponseWriter, r *http.Request) {
	seed, ok := h.repoFor(r)
	if !ok {
		notFound(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"name":           seed.Name,
		"owner":          map[string]string{"login": seed.Owner},
		"description":    seed.Description,
		"default_branch": seed.DefaultBranch,
		"language":       seed.Language,
		"private":        seed.Private,
		"fork":           seed.Fork,
		"archived":       seed.Archived,
		"created_at":     seed.CreatedAt,
		"updated_at":     seed.UpdatedAt,
		"pushed_at":      seed.PushedAt,
	})
}

func (h *Host) getBranches(w http.ResponseWriter, r *http.Request) {
	seed, ok := h.repoFor(r)
	if !ok {
		notFound(w)
		return
	}

	branches := make([]map[string]any, 0, len(seed.Branches))
	for _, b := range seed.Branches {
		branches = append(branches, map[string]any{
			"name":   b.Name,
			"commit": map[string]string{"sha": b.SHA},
		})
	}
	writeJSON(w, http.StatusOK, branches)
}

func (h *Host) getCommits(w http.ResponseWriter, r *http.Request) {
	seed, ok := h.repoFor(r)
	if !ok {
		notFound(w)
		return
	}

	branch := r.URL.Query().Get("sha")
	if branch == "" {
		branch = seed.DefaultBranch
	}
	history, ok := seed.Commits[branch]
	if !ok {
		notFound(w)
		return
	}

	perPage := len(history)
	if raw := r.URL.Query().Get("per_page"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n < perPage {
			perPage = n
		}
	}

	commits := make([]map[string]any, 0, perPage)
	for _, c := range history[:perPage] {
		commits = append(commits, map[string]any{
			"sha": c.SHA,
			"commit": map[string]any{
				"message": c.Message,
				"author": map[string]any{
					"name":  c.AuthorName,
					"email": c.AuthorEmail,
					"date":  c.At,
				},
			},
		})
	}
	writeJSON(w, http.StatusOK, commits)
}

func (h *Host) getTree(w http.ResponseWriter, r *http.Request) {
	seed, ok := h.repoFor(r)
	if !ok {
		notFound(w)
		return
	}

	paths := make([]string, 0, len(seed.Files))
	for path := range seed.Files {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	entries := make([]map[string]any, 0, len(paths))
	for _, path := range paths {
		content := seed.Files[path]
		entries = append(entries, map[string]any{
			"path": path,
			"type": "blob",
			"size": len(content),
			"sha":  blobSHA(content),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tree":      entries,
		"truncated": false,
	})
}

func (h *Host) getContents(w http.ResponseWriter, r *http.Request) {
	seed, ok := h.repoFor(r)
	if !ok {
		notFound(w)
		return
	}

	path := chi.URLParam(r, "*")
	content, ok := seed.Files[path]
	if !ok {
		notFound(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"encoding": "base64",
		"size":     len(content),
		"content":  wrapBase64(content),
	})
}

func notFound(w http.ResponseWriter) {
	writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// blobSHA derives a stable pseudo blob id from content.
func blobSHA(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:20])
}

// wrapBase64 encodes content the way real hosts do, with the payload
// broken into newline-terminated lines.
func wrapBase64(content string) string {
	enc := base64.StdEncoding.EncodeToString([]byte(content))
	var b strings.Builder
	for len(enc) > 60 {
		b.WriteString(enc[:60])
		b.WriteByte('\n')
		enc = enc[60:]
	}
	b.WriteString(enc)
	b.WriteByte('\n')
	return b.String()
}
