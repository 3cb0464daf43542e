// Package source connects the ingestion pipeline to repository hosts.
// One Adapter contract covers REST hosts and git transports; every
// implementation maps host failures onto the fault taxonomy so the
// orchestrator can decide what to retry and when.
package source

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/codelore/codelore/domain/repo"
)

const (
	// UserAgent identifies the service to source hosts.
	UserAgent = "codelore/1.0"

	// MaxTreeDepth bounds recursive tree traversal; deeper paths are
	// skipped during structural analysis.
	MaxTreeDepth = 10

	// MaxFileBytes bounds ReadFile payloads.
	MaxFileBytes = 32 * 1024

	// shallowCloneDepth is the history depth fetched by the git-backed
	// adapters. Deep history is never needed for analysis; commit
	// listings are capped well below this.
	shallowCloneDepth = 100
)

// Credential authorizes calls against a source host. The zero value is
// anonymous access.
type Credential struct {
	Token string
}

// Empty reports whether the credential carries no secret.
func (c Credential) Empty() bool { return c.Token == "" }

// Adapter reads repository data from a source host. Implementations are
// read-only and rate-limit aware: a throttled call returns a
// fault.RateLimited error carrying the host's retry-after hint, and the
// caller decides whether to wait.
type Adapter interface {
	// ValidateAccess reports whether the repository is reachable with the
	// given credential. Missing repositories and rejected credentials
	// report false without an error; host failures are errors.
	ValidateAccess(ctx context.Context, remoteURL string, cred Credential) (bool, error)

	// ConnectRepository returns normalized remote metadata for the
	// repository at remoteURL.
	ConnectRepository(ctx context.Context, remoteURL string, cred Credential) (repo.RemoteMetadata, error)

	// ListBranches returns the repository's branches with head SHAs.
	ListBranches(ctx context.Context, repository repo.Repository, cred Credential) ([]repo.Branch, error)

	// ListCommits returns up to limit commits of a branch, newest first.
	// An empty branch name means the default branch.
	ListCommits(ctx context.Context, repository repo.Repository, branch string, limit int, cred Credential) ([]repo.Commit, error)

	// AnalyzeStructure computes file, line, and language statistics for
	// a branch.
	AnalyzeStructure(ctx context.Context, repository repo.Repository, branch string, cred Credential) (repo.Statistics, error)

	// ReadFile returns the content of one file on a branch, bounded by
	// MaxFileBytes.
	ReadFile(ctx context.Context, repository repo.Repository, branch, path string, cred Credential) ([]byte, error)
}

// InventorySource is implemented by adapters that can produce a file
// inventory with a change-detection digest alongside statistics. All
// bundled adapters implement it; the analyzer uses it for cheap
// has-the-repository-changed checks.
type InventorySource interface {
	Inventory(ctx context.Context, repository repo.Repository, branch string, cred Credential) (Inventory, error)
}

// ClonePathFromURI maps a remote URI to a directory under baseDir that is
// safe on every filesystem the service runs on.
func ClonePathFromURI(baseDir, uri string) string {
	return filepath.Join(baseDir, sanitizeURIForPath(uri))
}

func sanitizeURIForPath(uri string) string {
	result := make([]byte, 0, len(uri))
	for _, b := range []byte(uri) {
		switch b {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', '@':
			result = append(result, '_')
		default:
			result = append(result, b)
		}
	}

	s := string(result)
	for _, prefix := range []string{"https___", "http___", "git___", "file____", "file___"} {
		if len(s) > len(prefix) && s[:len(prefix)] == prefix {
			s = s[len(prefix):]
			break
		}
	}

	// Windows MAX_PATH is 260 chars. Keep the directory name short enough
	// that the full clone path (baseDir + name + .git/objects/...) stays
	// under the limit.
	const maxLen = 80
	if len(s) > maxLen {
		hash := sha256.Sum256([]byte(uri))
		suffix := hex.EncodeToString(hash[:8])
		s = s[:maxLen-len(suffix)-1] + "-" + suffix
	}

	return s
}

// ownerNameFromURL extracts a best-effort owner/name pair from a remote
// URL or local path. Unlike the repository aggregate, git-backed adapters
// accept plain paths, so this never fails.
func ownerNameFromURL(remoteURL string) (owner, name string) {
	trimmed := strings.TrimSuffix(remoteURL, "/")
	trimmed = strings.TrimSuffix(trimmed, ".git")

	if u, err := url.Parse(trimmed); err == nil {
		segments := strings.Split(strings.Trim(u.Path, "/"), "/")
		if len(segments) >= 2 && segments[len(segments)-1] != "" {
			return segments[len(segments)-2], segments[len(segments)-1]
		}
	}

	return "", filepath.Base(trimmed)
}

// authURL injects the credential into an HTTP(S) remote URL for git
// transports. Non-HTTP remotes and anonymous access pass through.
func authURL(remote string, cred Credential) string {
	if cred.Empty() {
		return remote
	}
	u, err := url.Parse(remote)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return remote
	}
	u.User = url.UserPassword("x-access-token", cred.Token)
	return u.String()
}

// branchOrDefault resolves an empty branch name to the repository's
// default branch.
func branchOrDefault(repository repo.Repository, branch string) string {
	if branch == "" {
		return repository.DefaultBranch()
	}
	return branch
}

// remoteOf returns the URL to clone from, preferring the dedicated clone URL.
func remoteOf(repository repo.Repository) string {
	if u := repository.CloneURL(); u != "" {
		return u
	}
	return repository.URL()
}
