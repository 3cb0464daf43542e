package source

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

// IgnorePattern decides which working-tree paths are excluded from
// scanning. It combines the repository's gitignore rules with custom
// .noindex patterns placed at the tree root.
type IgnorePattern struct {
	base         string
	matcher      gitignore.Matcher
	noIndexRules []string
}

// NewIgnorePattern creates an IgnorePattern for the given base directory.
func NewIgnorePattern(base string) (IgnorePattern, error) {
	info, err := os.Stat(base)
	if err != nil {
		return IgnorePattern{}, err
	}
	if !info.IsDir() {
		return IgnorePattern{}, &NotDirectoryError{Path: base}
	}

	pattern := IgnorePattern{base: base}

	// gitignore rules are matched in-process so the scanner works in
	// environments without a git binary.
	if patterns, err := gitignore.ReadPatterns(osfs.New(base), nil); err == nil && len(patterns) > 0 {
		pattern.matcher = gitignore.NewMatcher(patterns)
	}

	if rules, err := loadNoIndexPatterns(filepath.Join(base, ".noindex")); err == nil {
		pattern.noIndexRules = rules
	}

	return pattern, nil
}

// ShouldIgnore checks whether a file at the given slash-separated relative
// path is excluded.
func (p IgnorePattern) ShouldIgnore(relPath string) bool {
	return p.match(relPath, false)
}

// ShouldIgnoreDir checks whether a directory at the given slash-separated
// relative path is excluded, pruning the walk below it.
func (p IgnorePattern) ShouldIgnoreDir(relPath string) bool {
	return p.match(relPath, true)
}

func (p IgnorePattern) match(relPath string, isDir bool) bool {
	if relPath == "" || relPath == "." {
		return false
	}

	// Git bookkeeping is always excluded.
	if relPath == ".git" || strings.HasPrefix(relPath, ".git/") {
		return true
	}

	if p.matcher != nil && p.matcher.Match(strings.Split(relPath, "/"), isDir) {
		return true
	}

	return p.matchNoIndex(relPath)
}

// matchNoIndex checks the path against .noindex patterns, both as a whole
// and per path component.
func (p IgnorePattern) matchNoIndex(relPath string) bool {
	if len(p.noIndexRules) == 0 {
		return false
	}

	for _, pattern := range p.noIndexRules {
		if matched, err := filepath.Match(pattern, relPath); err == nil && matched {
			return true
		}
		for _, part := range strings.Split(relPath, "/") {
			if matched, err := filepath.Match(pattern, part); err == nil && matched {
				return true
			}
		}
	}

	return false
}

// loadNoIndexPatterns reads patterns from a .noindex file.
func loadNoIndexPatterns(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = file.Close() }()

	var patterns []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return patterns, nil
}

// NotDirectoryError indicates the path is not a directory.
type NotDirectoryError struct {
	Path string
}

func (e *NotDirectoryError) Error() string {
	return "path is not a directory: " + e.Path
}
