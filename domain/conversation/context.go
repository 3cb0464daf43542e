package conversation

// Context scopes a conversation to repositories and carries retrieval
// preferences. RepositoryIDs limit search to those repositories; an empty
// list means all indexed repositories are in scope.
type Context struct {
	RepositoryIDs []int64
	Preferences   map[string]string
	Domain        string
	IntentHint    string
}

// Clone returns a deep copy of the context.
func (c Context) Clone() Context {
	out := Context{Domain: c.Domain, IntentHint: c.IntentHint}
	if len(c.RepositoryIDs) > 0 {
		out.RepositoryIDs = make([]int64, len(c.RepositoryIDs))
		copy(out.RepositoryIDs, c.RepositoryIDs)
	}
	if len(c.Preferences) > 0 {
		out.Preferences = make(map[string]string, len(c.Preferences))
		for k, v := range c.Preferences {
			out.Preferences[k] = v
		}
	}
	return out
}

// ScopedTo reports whether the context limits retrieval to specific
// repositories.
func (c Context) ScopedTo() bool {
	return len(c.RepositoryIDs) > 0
}

// Includes reports whether the repository is in scope. An unscoped context
// includes every repository.
func (c Context) Includes(repositoryID int64) bool {
	if !c.ScopedTo() {
		return true
	}
	for _, id := range c.RepositoryIDs {
		if id == repositoryID {
			return true
		}
	}
	return false
}
