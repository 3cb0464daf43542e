// Package repo defines the repository aggregate and its ingestion
// lifecycle, plus the store query vocabulary shared by every persistence
// interface in the system.
package repo

import (
	"net/url"
	"strings"
	"time"

	"github.com/codelore/codelore/domain/fault"
)

// RemoteMetadata is the normalized metadata a source adapter reports when
// connecting a repository.
type RemoteMetadata struct {
	Owner           string
	Name            string
	Description     string
	DefaultBranch   string
	PrimaryLanguage string
	Private         bool
	Fork            bool
	Archived        bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
	LastPushedAt    time.Time
}

// Repository is the aggregate root for an ingested source repository.
// All mutation goes through copy-on-write methods; the ingestion
// orchestrator is the only component that advances status.
type Repository struct {
	id              int64
	owner           string
	name            string
	url             string
	cloneURL        string
	meta            RemoteMetadata
	status          Status
	stats           Statistics
	inventoryDigest string
	lastError       string
	createdAt       time.Time
	updatedAt       time.Time
	lastIndexedAt   time.Time
}

// NewRepository creates a repository from its remote URL in the Connecting
// state. The URL must be absolute HTTP(S) with an owner/name path.
func NewRepository(rawURL string) (Repository, error) {
	owner, name, err := splitOwnerName(rawURL)
	if err != nil {
		return Repository{}, err
	}

	now := time.Now().UTC()
	return Repository{
		owner:     owner,
		name:      name,
		url:       strings.TrimSuffix(rawURL, "/"),
		cloneURL:  cloneURLFor(rawURL),
		status:    StatusConnecting,
		createdAt: now,
		updatedAt: now,
	}, nil
}

// ReconstructRepository rebuilds a repository from persistence without
// validation.
func ReconstructRepository(
	id int64,
	repoURL string,
	cloneURL string,
	meta RemoteMetadata,
	status Status,
	stats Statistics,
	inventoryDigest string,
	lastError string,
	createdAt time.Time,
	updatedAt time.Time,
	lastIndexedAt time.Time,
) Repository {
	return Repository{
		id:              id,
		owner:           meta.Owner,
		name:            meta.Name,
		url:             repoURL,
		cloneURL:        cloneURL,
		meta:            meta,
		status:          status,
		stats:           stats,
		inventoryDigest: inventoryDigest,
		lastError:       lastError,
		createdAt:       createdAt,
		updatedAt:       updatedAt,
		lastIndexedAt:   lastIndexedAt,
	}
}

func splitOwnerName(rawURL string) (owner, name string, err error) {
	u, parseErr := url.Parse(rawURL)
	if parseErr != nil {
		return "", "", fault.Validationf("repository URL %q is not a valid URL", rawURL)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", "", fault.Validationf("repository URL %q must be absolute HTTP(S)", rawURL)
	}

	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(segments) < 2 || segments[0] == "" || segments[1] == "" {
		return "", "", fault.Validationf("repository URL %q must contain an owner/name path", rawURL)
	}

	return segments[0], strings.TrimSuffix(segments[1], ".git"), nil
}

func cloneURLFor(rawURL string) string {
	trimmed := strings.TrimSuffix(rawURL, "/")
	if strings.HasSuffix(trimmed, ".git") {
		return trimmed
	}
	return trimmed + ".git"
}

// ID returns the database identifier (0 until first save).
func (r Repository) ID() int64 { return r.id }

// Owner returns the repository owner (user or organization).
func (r Repository) Owner() string { return r.owner }

// Name returns the repository name.
func (r Repository) Name() string { return r.name }

// FullName returns owner/name.
func (r Repository) FullName() string { return r.owner + "/" + r.name }

// URL returns the canonical repository URL.
func (r Repository) URL() string { return r.url }

// CloneURL returns the clone URL (always with a .git suffix).
func (r Repository) CloneURL() string { return r.cloneURL }

// Description returns the remote description, if any.
func (r Repository) Description() string { return r.meta.Description }

// DefaultBranch returns the default branch name ("main" until connected).
func (r Repository) DefaultBranch() string {
	if r.meta.DefaultBranch == "" {
		return "main"
	}
	return r.meta.DefaultBranch
}

// PrimaryLanguage returns the dominant language, set by analysis or remote
// metadata.
func (r Repository) PrimaryLanguage() string { return r.meta.PrimaryLanguage }

// IsPrivate reports remote visibility.
func (r Repository) IsPrivate() bool { return r.meta.Private }

// IsFork reports whether the remote marks this repository as a fork.
func (r Repository) IsFork() bool { return r.meta.Fork }

// IsArchived reports whether the remote marks this repository archived.
func (r Repository) IsArchived() bool { return r.meta.Archived }

// LastPushedAt returns the remote's last push time (zero if unknown).
func (r Repository) LastPushedAt() time.Time { return r.meta.LastPushedAt }

// Status returns the ingestion lifecycle state.
func (r Repository) Status() Status { return r.status }

// Statistics returns the structural statistics from the last analysis.
func (r Repository) Statistics() Statistics { return r.stats }

// InventoryDigest returns the file-inventory digest recorded by the last
// structural analysis (empty if never analyzed).
func (r Repository) InventoryDigest() string { return r.inventoryDigest }

// LastError returns the diagnostic recorded with the Error status.
func (r Repository) LastError() string { return r.lastError }

// CreatedAt returns when the repository was registered.
func (r Repository) CreatedAt() time.Time { return r.createdAt }

// UpdatedAt returns the last mutation time.
func (r Repository) UpdatedAt() time.Time { return r.updatedAt }

// LastIndexedAt returns when the last full index run completed (zero if
// never).
func (r Repository) LastIndexedAt() time.Time { return r.lastIndexedAt }

// Metadata returns the normalized remote metadata.
func (r Repository) Metadata() RemoteMetadata { return r.meta }

// WithID returns a copy with the database identifier set.
func (r Repository) WithID(id int64) Repository {
	r.id = id
	return r
}

// WithMetadata applies normalized remote metadata, keeping the original
// owner/name when the remote omits them.
func (r Repository) WithMetadata(meta RemoteMetadata) Repository {
	if meta.Owner == "" {
		meta.Owner = r.owner
	}
	if meta.Name == "" {
		meta.Name = r.name
	}
	r.owner = meta.Owner
	r.name = meta.Name
	r.meta = meta
	r.updatedAt = time.Now().UTC()
	return r
}

// WithStatistics returns a copy with analysis statistics applied.
func (r Repository) WithStatistics(stats Statistics) Repository {
	r.stats = stats
	if lang := stats.PrimaryLanguage(); lang != "" {
		r.meta.PrimaryLanguage = lang
	}
	r.updatedAt = time.Now().UTC()
	return r
}

// WithInventoryDigest returns a copy with the file-inventory digest from a
// structural analysis applied.
func (r Repository) WithInventoryDigest(digest string) Repository {
	r.inventoryDigest = digest
	r.updatedAt = time.Now().UTC()
	return r
}

// Transition advances the lifecycle along an allowed edge. Leaving the
// Error state clears the diagnostic.
func (r Repository) Transition(next Status) (Repository, error) {
	status, err := r.status.TransitionTo(next)
	if err != nil {
		return r, err
	}
	r.status = status
	if next != StatusError {
		r.lastError = ""
	}
	r.updatedAt = time.Now().UTC()
	return r, nil
}

// Fail transitions to Error recording a diagnostic message.
func (r Repository) Fail(diagnostic string) (Repository, error) {
	failed, err := r.Transition(StatusError)
	if err != nil {
		return r, err
	}
	failed.lastError = diagnostic
	return failed, nil
}

// MarkIndexed records the completion time of a full index run.
func (r Repository) MarkIndexed(at time.Time) Repository {
	r.lastIndexedAt = at.UTC()
	r.updatedAt = time.Now().UTC()
	return r
}
