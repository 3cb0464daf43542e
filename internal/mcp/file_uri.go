package mcp

import "fmt"

// SourceURI builds source locators for MCP tool results.
// Immutable value object — methods return copies.
type SourceURI struct {
	repoID    int64
	path      string
	startLine int
	endLine   int
}

// NewSourceURI creates a SourceURI with the required fields.
func NewSourceURI(repoID int64, path string) SourceURI {
	return SourceURI{
		repoID: repoID,
		path:   path,
	}
}

// WithLineRange returns a copy with line range set.
func (u SourceURI) WithLineRange(start, end int) SourceURI {
	u.startLine = start
	u.endLine = end
	return u
}

// String builds the codelore:// URI string.
func (u SourceURI) String() string {
	base := fmt.Sprintf("codelore://%d/%s", u.repoID, u.path)
	if u.startLine > 0 {
		return fmt.Sprintf("%s?lines=L%d-L%d", base, u.startLine, u.endLine)
	}
	return base
}
