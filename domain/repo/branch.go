package repo

import (
	"time"

	"github.com/codelore/codelore/domain/fault"
)

// Branch is a named ref of a repository. Exactly one branch per repository
// is the default when any branches are recorded.
type Branch struct {
	id            int64
	repositoryID  int64
	name          string
	isDefault     bool
	lastCommitSHA string
	createdAt     time.Time
}

// NewBranch creates a branch record.
func NewBranch(repositoryID int64, name string, isDefault bool) (Branch, error) {
	if name == "" {
		return Branch{}, fault.Validation("branch name cannot be empty")
	}
	return Branch{
		repositoryID: repositoryID,
		name:         name,
		isDefault:    isDefault,
		createdAt:    time.Now().UTC(),
	}, nil
}

// ReconstructBranch rebuilds a branch from persistence.
func ReconstructBranch(id, repositoryID int64, name string, isDefault bool, lastCommitSHA string, createdAt time.Time) Branch {
	return Branch{
		id:            id,
		repositoryID:  repositoryID,
		name:          name,
		isDefault:     isDefault,
		lastCommitSHA: lastCommitSHA,
		createdAt:     createdAt,
	}
}

// ID returns the database identifier.
func (b Branch) ID() int64 { return b.id }

// RepositoryID returns the owning repository.
func (b Branch) RepositoryID() int64 { return b.repositoryID }

// Name returns the branch name.
func (b Branch) Name() string { return b.name }

// IsDefault reports whether this is the repository's default branch.
func (b Branch) IsDefault() bool { return b.isDefault }

// LastCommitSHA returns the head commit SHA seen for this branch.
func (b Branch) LastCommitSHA() string { return b.lastCommitSHA }

// CreatedAt returns when the branch was recorded.
func (b Branch) CreatedAt() time.Time { return b.createdAt }

// WithID returns a copy with the database identifier set.
func (b Branch) WithID(id int64) Branch {
	b.id = id
	return b
}

// WithLastCommit returns a copy with the head commit SHA updated.
func (b Branch) WithLastCommit(sha string) Branch {
	b.lastCommitSHA = sha
	return b
}

// DefaultBranchCount returns how many branches are flagged default.
// Valid branch sets have exactly one when non-empty.
func DefaultBranchCount(branches []Branch) int {
	n := 0
	for _, b := range branches {
		if b.isDefault {
			n++
		}
	}
	return n
}
