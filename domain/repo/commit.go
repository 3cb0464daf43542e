package repo

import (
	"time"

	"github.com/codelore/codelore/domain/fault"
)

// DefaultCommitMessage replaces blank commit messages.
const DefaultCommitMessage = "No commit message"

// Commit is a point-in-time record of a repository commit.
type Commit struct {
	id           int64
	repositoryID int64
	sha          string
	message      string
	author       string
	authoredAt   time.Time
}

// NewCommit creates a commit record. Blank messages are replaced with
// DefaultCommitMessage.
func NewCommit(repositoryID int64, sha, message, author string, authoredAt time.Time) (Commit, error) {
	if sha == "" {
		return Commit{}, fault.Validation("commit SHA cannot be empty")
	}
	if message == "" {
		message = DefaultCommitMessage
	}
	return Commit{
		repositoryID: repositoryID,
		sha:          sha,
		message:      message,
		author:       author,
		authoredAt:   authoredAt.UTC(),
	}, nil
}

// ReconstructCommit rebuilds a commit from persistence.
func ReconstructCommit(id, repositoryID int64, sha, message, author string, authoredAt time.Time) Commit {
	return Commit{
		id:           id,
		repositoryID: repositoryID,
		sha:          sha,
		message:      message,
		author:       author,
		authoredAt:   authoredAt,
	}
}

// ID returns the database identifier.
func (c Commit) ID() int64 { return c.id }

// RepositoryID returns the owning repository.
func (c Commit) RepositoryID() int64 { return c.repositoryID }

// SHA returns the commit hash.
func (c Commit) SHA() string { return c.sha }

// Message returns the commit message (never blank).
func (c Commit) Message() string { return c.message }

// Author returns the author identity string.
func (c Commit) Author() string { return c.author }

// AuthoredAt returns the author timestamp (UTC).
func (c Commit) AuthoredAt() time.Time { return c.authoredAt }

// WithID returns a copy with the database identifier set.
func (c Commit) WithID(id int64) Commit {
	c.id = id
	return c
}
