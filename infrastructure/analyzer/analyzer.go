// Package analyzer builds a structural profile of a repository from its
// file inventory: language shares, dependency manifests, important files,
// and coarse architectural hints. The profile feeds entity extraction and
// documentation generation; it never mutates the repository.
package analyzer

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/codelore/codelore/domain/repo"
	"github.com/codelore/codelore/infrastructure/source"
)

// maxImportantFiles caps how many ranked files an analysis keeps.
const maxImportantFiles = 64

// Source is the adapter surface the analyzer needs: read operations plus
// the file inventory.
type Source interface {
	source.Adapter
	source.InventorySource
}

// AnalysisContext is the structural profile of one repository at one
// point in time.
type AnalysisContext struct {
	PrimaryLanguage string
	Languages       map[string]repo.LanguageStat
	Structure       StructureAnalysis
	Dependencies    []Dependency
	PatternHints    []PatternHint
	ImportantFiles  []ImportantFile
	Metadata        map[string]any
}

// StructureAnalysis describes the shape of the tree.
type StructureAnalysis struct {
	FileCount   int
	LineCount   int
	Directories []string
	EntryPoints []string
	ConfigFiles []string
	TestFiles   int
	DocFiles    int
	HasCI       bool
}

// ImportantFile is one ranked tree entry worth deep analysis.
type ImportantFile struct {
	Path     string
	Language string
	Role     FileRole
	Size     int64
	Rank     int
}

// Analyzer profiles repositories through a source adapter.
type Analyzer struct {
	src    Source
	logger *slog.Logger
}

// NewAnalyzer creates an Analyzer reading through src.
func NewAnalyzer(src Source, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{src: src, logger: logger}
}

// Analyze profiles the repository's default branch. Manifest reads are
// best-effort: an unreadable or unparsable manifest is logged and skipped,
// never failing the analysis.
func (a *Analyzer) Analyze(ctx context.Context, repository repo.Repository, cred source.Credential) (AnalysisContext, error) {
	started := time.Now()

	inventory, err := a.src.Inventory(ctx, repository, "", cred)
	if err != nil {
		return AnalysisContext{}, fmt.Errorf("inventory %s: %w", repository.FullName(), err)
	}

	files := classifyFiles(inventory.Files)
	manifests := manifestFiles(files)

	dependencies, err := a.collectDependencies(ctx, repository, manifests, cred)
	if err != nil {
		return AnalysisContext{}, err
	}

	analysis := AnalysisContext{
		PrimaryLanguage: inventory.Statistics.PrimaryLanguage(),
		Languages:       inventory.Statistics.Languages(),
		Structure:       buildStructure(inventory.Statistics, files, manifests),
		Dependencies:    dependencies,
		PatternHints:    detectHints(files, dependencies),
		ImportantFiles:  rankImportantFiles(files),
		Metadata: map[string]any{
			"analyzed_at":      time.Now().UTC(),
			"duration_ms":      time.Since(started).Milliseconds(),
			"inventory_digest": inventory.Digest,
			"manifest_count":   len(manifests),
		},
	}

	a.logger.Info("repository analysis complete",
		slog.String("repository", repository.FullName()),
		slog.String("primary_language", analysis.PrimaryLanguage),
		slog.Int("dependencies", len(analysis.Dependencies)),
		slog.Int("important_files", len(analysis.ImportantFiles)),
		slog.Int("pattern_hints", len(analysis.PatternHints)),
	)

	return analysis, nil
}

// HasRepositoryChanged reports whether the default branch moved past since
// or the file inventory digest no longer matches the one recorded on the
// repository. A repository without a recorded digest always reports
// changed: there is no baseline to compare against.
func (a *Analyzer) HasRepositoryChanged(ctx context.Context, repository repo.Repository, since time.Time, cred source.Credential) (bool, error) {
	commits, err := a.src.ListCommits(ctx, repository, "", 1, cred)
	if err != nil {
		return false, fmt.Errorf("head commit of %s: %w", repository.FullName(), err)
	}
	if len(commits) > 0 && commits[0].AuthoredAt().After(since) {
		return true, nil
	}

	if repository.InventoryDigest() == "" {
		return true, nil
	}

	inventory, err := a.src.Inventory(ctx, repository, "", cred)
	if err != nil {
		return false, fmt.Errorf("inventory %s: %w", repository.FullName(), err)
	}
	return inventory.Digest != repository.InventoryDigest(), nil
}

func (a *Analyzer) collectDependencies(ctx context.Context, repository repo.Repository, manifests []classifiedFile, cred source.Credential) ([]Dependency, error) {
	var all []Dependency
	for _, m := range manifests {
		parse := manifestParsers[strings.ToLower(baseName(m.file.Path))]

		content, err := a.src.ReadFile(ctx, repository, "", m.file.Path, cred)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			a.logger.Warn("manifest read failed",
				slog.String("repository", repository.FullName()),
				slog.String("path", m.file.Path),
				slog.String("error", err.Error()),
			)
			continue
		}

		deps, err := parse(m.file.Path, content)
		if err != nil {
			a.logger.Warn("manifest parse failed",
				slog.String("repository", repository.FullName()),
				slog.String("path", m.file.Path),
				slog.String("error", err.Error()),
			)
			continue
		}
		all = append(all, deps...)
	}

	sort.Slice(all, func(i, j int) bool {
		if all[i].Manifest != all[j].Manifest {
			return all[i].Manifest < all[j].Manifest
		}
		if all[i].Name != all[j].Name {
			return all[i].Name < all[j].Name
		}
		return all[i].Scope < all[j].Scope
	})
	return all, nil
}

// Summary renders the analysis as plain text for prompt assembly.
func (c AnalysisContext) Summary() string {
	var b strings.Builder

	fmt.Fprintf(&b, "Primary language: %s\n", orUnknown(c.PrimaryLanguage))
	fmt.Fprintf(&b, "Files: %d, lines: %d\n", c.Structure.FileCount, c.Structure.LineCount)

	if len(c.Languages) > 0 {
		names := make([]string, 0, len(c.Languages))
		for name := range c.Languages {
			names = append(names, name)
		}
		sort.Slice(names, func(i, j int) bool {
			pi, pj := c.Languages[names[i]].Percentage, c.Languages[names[j]].Percentage
			if pi != pj {
				return pi > pj
			}
			return names[i] < names[j]
		})
		parts := make([]string, 0, len(names))
		for _, name := range names {
			parts = append(parts, fmt.Sprintf("%s %.1f%%", name, c.Languages[name].Percentage))
		}
		fmt.Fprintf(&b, "Languages: %s\n", strings.Join(parts, ", "))
	}

	if len(c.Structure.Directories) > 0 {
		fmt.Fprintf(&b, "Top-level directories: %s\n", strings.Join(c.Structure.Directories, ", "))
	}
	if len(c.Structure.EntryPoints) > 0 {
		fmt.Fprintf(&b, "Entry points: %s\n", strings.Join(c.Structure.EntryPoints, ", "))
	}

	if len(c.Dependencies) > 0 {
		shown := c.Dependencies
		if len(shown) > 20 {
			shown = shown[:20]
		}
		names := make([]string, 0, len(shown))
		for _, d := range shown {
			names = append(names, d.Name)
		}
		fmt.Fprintf(&b, "Dependencies (%d total): %s\n", len(c.Dependencies), strings.Join(names, ", "))
	}

	if len(c.PatternHints) > 0 {
		parts := make([]string, 0, len(c.PatternHints))
		for _, h := range c.PatternHints {
			parts = append(parts, fmt.Sprintf("%s (%.2f)", h.Name, h.Confidence))
		}
		fmt.Fprintf(&b, "Architecture hints: %s\n", strings.Join(parts, ", "))
	}

	if len(c.ImportantFiles) > 0 {
		shown := c.ImportantFiles
		if len(shown) > 10 {
			shown = shown[:10]
		}
		paths := make([]string, 0, len(shown))
		for _, f := range shown {
			paths = append(paths, f.Path)
		}
		fmt.Fprintf(&b, "Key files: %s\n", strings.Join(paths, ", "))
	}

	return b.String()
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
