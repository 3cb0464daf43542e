package source

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/codelore/codelore/domain/fault"
	"github.com/codelore/codelore/domain/repo"
	"github.com/codelore/codelore/internal/config"
)

// remoteBytesPerLine estimates line counts from blob sizes. Tree listings
// carry byte sizes only; the estimate keeps language shares proportional
// to content volume without downloading every file.
const remoteBytesPerLine = 32

// RemoteAdapter reads repositories through a GitHub-shaped REST API.
// It never clones; metadata, trees, and file contents all come from the
// host's HTTP endpoints.
type RemoteAdapter struct {
	apiBase string
	client  *http.Client
	logger  *slog.Logger
}

// NewRemoteAdapter creates a RemoteAdapter against the API root in cfg.
func NewRemoteAdapter(cfg config.SourceConfig, logger *slog.Logger) *RemoteAdapter {
	if logger == nil {
		logger = slog.Default()
	}

	timeout := cfg.Timeout()
	if timeout <= 0 {
		timeout = config.DefaultSourceTimeout
	}

	client := &http.Client{Timeout: timeout}
	if !cfg.VerifySSL() {
		client.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec // operator opt-in for self-hosted instances
		}
	}

	return &RemoteAdapter{
		apiBase: strings.TrimSuffix(cfg.APIBaseURL(), "/"),
		client:  client,
		logger:  logger,
	}
}

// ValidateAccess reports whether the repository answers with the given
// credential. Rejected credentials and missing repositories report false;
// throttling and host failures are returned as errors.
func (a *RemoteAdapter) ValidateAccess(ctx context.Context, remoteURL string, cred Credential) (bool, error) {
	seed, err := repo.NewRepository(remoteURL)
	if err != nil {
		return false, err
	}

	err = a.get(ctx, repoAPIPath(seed.Owner(), seed.Name()), nil, cred, nil)
	switch {
	case err == nil:
		return true, nil
	case fault.Is(err, fault.KindSourceAuth) || fault.Is(err, fault.KindSourceNotFound):
		return false, nil
	default:
		return false, err
	}
}

// ConnectRepository fetches normalized metadata for the repository at
// remoteURL.
func (a *RemoteAdapter) ConnectRepository(ctx context.Context, remoteURL string, cred Credential) (repo.RemoteMetadata, error) {
	seed, err := repo.NewRepository(remoteURL)
	if err != nil {
		return repo.RemoteMetadata{}, err
	}

	var payload remoteRepo
	if err := a.get(ctx, repoAPIPath(seed.Owner(), seed.Name()), nil, cred, &payload); err != nil {
		return repo.RemoteMetadata{}, err
	}

	meta := repo.RemoteMetadata{
		Owner:           payload.Owner.Login,
		Name:            payload.Name,
		Description:     payload.Description,
		DefaultBranch:   payload.DefaultBranch,
		PrimaryLanguage: strings.ToLower(payload.Language),
		Private:         payload.Private,
		Fork:            payload.Fork,
		Archived:        payload.Archived,
		CreatedAt:       payload.CreatedAt,
		UpdatedAt:       payload.UpdatedAt,
		LastPushedAt:    payload.PushedAt,
	}
	if meta.Owner == "" {
		meta.Owner = seed.Owner()
	}
	if meta.Name == "" {
		meta.Name = seed.Name()
	}

	a.logger.Info("connected repository",
		slog.String("repository", meta.Owner+"/"+meta.Name),
		slog.String("default_branch", meta.DefaultBranch),
	)

	return meta, nil
}

// ListBranches returns the repository's branches. The default flag comes
// from the repository's connected metadata.
func (a *RemoteAdapter) ListBranches(ctx context.Context, repository repo.Repository, cred Credential) ([]repo.Branch, error) {
	var payload []remoteBranch
	path := repoAPIPath(repository.Owner(), repository.Name()) + "/branches"
	if err := a.get(ctx, path, nil, cred, &payload); err != nil {
		return nil, err
	}

	branches := make([]repo.Branch, 0, len(payload))
	for _, b := range payload {
		branch, err := repo.NewBranch(repository.ID(), b.Name, b.Name == repository.DefaultBranch())
		if err != nil {
			continue
		}
		branches = append(branches, branch.WithLastCommit(b.Commit.SHA))
	}

	return branches, nil
}

// ListCommits returns up to limit commits of a branch, newest first.
func (a *RemoteAdapter) ListCommits(ctx context.Context, repository repo.Repository, branch string, limit int, cred Credential) ([]repo.Commit, error) {
	if limit <= 0 {
		limit = 30
	}
	if limit > 100 {
		limit = 100
	}

	query := url.Values{}
	query.Set("sha", branchOrDefault(repository, branch))
	query.Set("per_page", strconv.Itoa(limit))

	var payload []remoteCommit
	path := repoAPIPath(repository.Owner(), repository.Name()) + "/commits"
	if err := a.get(ctx, path, query, cred, &payload); err != nil {
		return nil, err
	}

	commits := make([]repo.Commit, 0, len(payload))
	for _, c := range payload {
		commit, err := repo.NewCommit(
			repository.ID(),
			c.SHA,
			c.Commit.Message,
			commitAuthor(c.Commit.Author.Name, c.Commit.Author.Email),
			c.Commit.Author.Date,
		)
		if err != nil {
			continue
		}
		commits = append(commits, commit)
		if len(commits) == limit {
			break
		}
	}

	return commits, nil
}

// AnalyzeStructure computes statistics from the branch's recursive tree
// listing.
func (a *RemoteAdapter) AnalyzeStructure(ctx context.Context, repository repo.Repository, branch string, cred Credential) (repo.Statistics, error) {
	inventory, err := a.Inventory(ctx, repository, branch, cred)
	if err != nil {
		return repo.Statistics{}, err
	}
	return inventory.Statistics, nil
}

// Inventory walks the branch's recursive tree listing. The digest hashes
// path:size:blobSHA lines, so any content change on the host changes it.
func (a *RemoteAdapter) Inventory(ctx context.Context, repository repo.Repository, branch string, cred Credential) (Inventory, error) {
	query := url.Values{}
	query.Set("recursive", "1")

	var payload remoteTree
	path := repoAPIPath(repository.Owner(), repository.Name()) + "/git/trees/" + url.PathEscape(branchOrDefault(repository, branch))
	if err := a.get(ctx, path, query, cred, &payload); err != nil {
		return Inventory{}, err
	}

	tallies := make(map[string]repo.LanguageStat)
	entries := make([]inventoryEntry, 0, len(payload.Tree))
	for _, e := range payload.Tree {
		if e.Type != "blob" || pathDepth(e.Path) > MaxTreeDepth {
			continue
		}

		entries = append(entries, inventoryEntry{path: e.Path, size: e.Size, modHash: e.SHA})

		lang := LanguageForPath(e.Path)
		if lang == "" {
			continue
		}

		tally := tallies[lang]
		tally.FileCount++
		tally.LineCount += estimateLines(e.Size)
		tallies[lang] = tally
	}

	if payload.Truncated {
		a.logger.Warn("tree listing truncated by host",
			slog.String("repository", repository.FullName()),
			slog.Int("entries", len(payload.Tree)),
		)
	}

	digest := digestEntries(entries)
	return Inventory{
		Statistics: repo.ComputeStatistics(tallies),
		Digest:     digest,
		Files:      fileRecords(entries),
	}, nil
}

// ReadFile fetches one file through the base64 contents endpoint.
func (a *RemoteAdapter) ReadFile(ctx context.Context, repository repo.Repository, branch, path string, cred Credential) ([]byte, error) {
	query := url.Values{}
	query.Set("ref", branchOrDefault(repository, branch))

	var payload remoteContent
	apiPath := repoAPIPath(repository.Owner(), repository.Name()) + "/contents/" + escapeFilePath(path)
	if err := a.get(ctx, apiPath, query, cred, &payload); err != nil {
		return nil, err
	}

	if payload.Size > MaxFileBytes {
		return nil, fault.Validationf("file %q is %d bytes, above the %d byte read limit", path, payload.Size, MaxFileBytes)
	}

	if payload.Encoding != "base64" {
		return []byte(payload.Content), nil
	}

	// Hosts wrap base64 payloads in newlines.
	compact := strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' {
			return -1
		}
		return r
	}, payload.Content)

	content, err := base64.StdEncoding.DecodeString(compact)
	if err != nil {
		return nil, fault.Wrap(fault.KindSourceUnavailable, "decode file content", err)
	}

	return content, nil
}

// get issues one GET against the host, mapping failures onto the fault
// taxonomy. It does not retry: the orchestrator owns the retry budget and
// the retry-after hint.
func (a *RemoteAdapter) get(ctx context.Context, path string, query url.Values, cred Credential, out any) error {
	target := a.apiBase + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fault.Wrap(fault.KindValidation, "build source request", err)
	}
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", "application/json")
	if !cred.Empty() {
		req.Header.Set("Authorization", "Bearer "+cred.Token)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return fault.Wrap(fault.KindSourceUnavailable, "source host unreachable", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := faultFromStatus(resp); err != nil {
		return err
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fault.Wrap(fault.KindSourceUnavailable, "decode source response", err)
	}
	return nil
}

// faultFromStatus maps a non-2xx response onto the fault taxonomy:
// 401/403 reject the credential, 404 means the repository or path does
// not exist, 429 is throttling with a retry-after hint, and everything
// 5xx is a transient host failure.
func faultFromStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fault.Newf(fault.KindSourceAuth, "source host rejected credentials (status %d)", resp.StatusCode)
	case resp.StatusCode == http.StatusNotFound:
		return fault.New(fault.KindSourceNotFound, "resource not found on source host")
	case resp.StatusCode == http.StatusTooManyRequests:
		err := fault.New(fault.KindRateLimited, "source host throttled the request")
		if after := retryAfterFrom(resp.Header); after > 0 {
			err = err.WithRetryAfter(after)
		}
		return err
	default:
		return fault.Newf(fault.KindSourceUnavailable, "source host returned status %d", resp.StatusCode)
	}
}

// retryAfterFrom parses a Retry-After header, accepting both delay
// seconds and HTTP dates.
func retryAfterFrom(h http.Header) time.Duration {
	raw := h.Get("Retry-After")
	if raw == "" {
		return 0
	}
	if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(raw); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}

func repoAPIPath(owner, name string) string {
	return fmt.Sprintf("/repos/%s/%s", url.PathEscape(owner), url.PathEscape(name))
}

// escapeFilePath escapes each path segment while keeping separators.
func escapeFilePath(path string) string {
	segments := strings.Split(strings.TrimPrefix(path, "/"), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}

func commitAuthor(name, email string) string {
	if email == "" {
		return name
	}
	if name == "" {
		return email
	}
	return name + " <" + email + ">"
}

func estimateLines(size int64) int {
	if size <= 0 {
		return 0
	}
	lines := int(size / remoteBytesPerLine)
	if lines == 0 {
		return 1
	}
	return lines
}

// Wire shapes of the GitHub-style REST API.

type remoteRepo struct {
	Name  string `json:"name"`
	Owner struct {
		Login string `json:"login"`
	} `json:"owner"`
	Description   string    `json:"description"`
	DefaultBranch string    `json:"default_branch"`
	Language      string    `json:"language"`
	Private       bool      `json:"private"`
	Fork          bool      `json:"fork"`
	Archived      bool      `json:"archived"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	PushedAt      time.Time `json:"pushed_at"`
}

type remoteBranch struct {
	Name   string `json:"name"`
	Commit struct {
		SHA string `json:"sha"`
	} `json:"commit"`
}

type remoteCommit struct {
	SHA    string `json:"sha"`
	Commit struct {
		Message string `json:"message"`
		Author  struct {
			Name  string    `json:"name"`
			Email string    `json:"email"`
			Date  time.Time `json:"date"`
		} `json:"author"`
	} `json:"commit"`
}

type remoteTree struct {
	Tree      []remoteTreeEntry `json:"tree"`
	Truncated bool              `json:"truncated"`
}

type remoteTreeEntry struct {
	Path string `json:"path"`
	Type string `json:"type"`
	Size int64  `json:"size"`
	SHA  string `json:"sha"`
}

type remoteContent struct {
	Encoding string `json:"encoding"`
	Size     int64  `json:"size"`
	Content  string `json:"content"`
}

// Ensure RemoteAdapter implements the adapter contracts.
var (
	_ Adapter         = (*RemoteAdapter)(nil)
	_ InventorySource = (*RemoteAdapter)(nil)
)
