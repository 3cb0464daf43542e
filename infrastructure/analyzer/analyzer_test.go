package analyzer

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codelore/codelore/domain/repo"
	"github.com/codelore/codelore/infrastructure/source"
	"github.com/codelore/codelore/infrastructure/source/sourcetest"
	"github.com/codelore/codelore/internal/config"
)

var layercakeHead = time.Date(2024, 3, 5, 10, 11, 12, 0, time.UTC)

func newHostAnalyzer(t *testing.T) (*sourcetest.Host, *source.RemoteAdapter, *Analyzer) {
	t.Helper()
	host := sourcetest.NewHost()
	t.Cleanup(host.Close)

	cfg := config.NewSourceConfigWithOptions(config.WithSourceAPIBase(host.URL()))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	adapter := source.NewRemoteAdapter(cfg, logger)
	return host, adapter, NewAnalyzer(adapter, logger)
}

func seedLayercake() sourcetest.SeedRepo {
	return sourcetest.SeedRepo{
		Owner:         "acme",
		Name:          "layercake",
		DefaultBranch: "main",
		Language:      "Go",
		Branches:      []sourcetest.SeedBranch{{Name: "main", SHA: "aaa111"}},
		Commits: map[string][]sourcetest.SeedCommit{
			"main": {
				{SHA: "aaa111", Message: "wire layers", AuthorName: "Alice", AuthorEmail: "alice@example.com", At: layercakeHead},
			},
		},
		Files: map[string]string{
			"main.go":                      "package main\n\nfunc main() {\n\trun()\n}\n",
			"go.mod":                       "module example.com/acme/layercake\n\ngo 1.22\n\nrequire (\n\tgithub.com/go-chi/chi/v5 v5.0.12\n\tgolang.org/x/sync v0.6.0 // indirect\n)\n",
			"README.md":                    "# Layercake\n\nDemo service.\n",
			"Dockerfile":                   "FROM golang:1.22\n",
			".github/workflows/ci.yml":     "name: ci\non: push\n",
			"api/handlers/user.go":         "package handlers\n\nfunc Get() {}\n",
			"application/services/user.go": "package services\n\nfunc Create() {}\n",
			"domain/user.go":               "package domain\n\ntype User struct{}\n",
			"infrastructure/store.go":      "package infrastructure\n\ntype Store struct{}\n",
			"api/handlers/user_test.go":    "package handlers\n\nfunc TestGet(t *T) {}\n",
			"docs/design.md":               "# Design\n",
		},
	}
}

func layercakeRepository(t *testing.T) repo.Repository {
	t.Helper()
	r, err := repo.NewRepository("https://git.example.com/acme/layercake")
	require.NoError(t, err)
	return r.WithID(1).WithMetadata(repo.RemoteMetadata{DefaultBranch: "main"})
}

func TestAnalyzer_Analyze(t *testing.T) {
	host, _, analyzer := newHostAnalyzer(t)
	host.Seed(seedLayercake())
	repository := layercakeRepository(t)

	analysis, err := analyzer.Analyze(context.Background(), repository, source.Credential{})
	require.NoError(t, err)

	assert.Equal(t, "go", analysis.PrimaryLanguage)
	assert.Contains(t, analysis.Languages, "go")
	assert.Contains(t, analysis.Languages, "markdown")

	require.Len(t, analysis.Dependencies, 2)
	assert.Equal(t, "github.com/go-chi/chi/v5", analysis.Dependencies[0].Name)
	assert.Equal(t, "v5.0.12", analysis.Dependencies[0].Version)
	assert.Equal(t, ScopeRuntime, analysis.Dependencies[0].Scope)
	assert.Equal(t, EcosystemGo, analysis.Dependencies[0].Ecosystem)
	assert.Equal(t, "golang.org/x/sync", analysis.Dependencies[1].Name)
	assert.Equal(t, ScopeIndirect, analysis.Dependencies[1].Scope)

	assert.True(t, analysis.Structure.HasCI)
	assert.Equal(t, []string{"main.go"}, analysis.Structure.EntryPoints)
	assert.Equal(t, []string{"go.mod"}, analysis.Structure.ConfigFiles)
	assert.Equal(t, 1, analysis.Structure.TestFiles)
	assert.Equal(t, 2, analysis.Structure.DocFiles)
	assert.Subset(t, analysis.Structure.Directories,
		[]string{"api", "application", "domain", "docs", "infrastructure"})

	names := make([]string, len(analysis.PatternHints))
	for i, h := range analysis.PatternHints {
		names[i] = h.Name
		assert.Less(t, h.Confidence, 0.7, "hint %s must stay below authoritative confidence", h.Name)
	}
	assert.Equal(t, []string{HintContainerized, HintContinuousIntegration, HintLayeredArchitecture}, names)

	require.NotEmpty(t, analysis.ImportantFiles)
	top := make([]string, 4)
	for i := range top {
		top[i] = analysis.ImportantFiles[i].Path
	}
	assert.Equal(t, []string{"go.mod", "Dockerfile", "README.md", "main.go"}, top)

	roles := map[string]FileRole{}
	for _, f := range analysis.ImportantFiles {
		roles[f.Path] = f.Role
	}
	assert.Equal(t, RoleEntryPoint, roles["main.go"])
	assert.Equal(t, RoleConfig, roles["go.mod"])
	assert.Equal(t, RoleDoc, roles["README.md"])
	assert.Equal(t, RoleTest, roles["api/handlers/user_test.go"])

	assert.Equal(t, 1, analysis.Metadata["manifest_count"])
	assert.Len(t, analysis.Metadata["inventory_digest"], 64)
}

func TestAnalyzer_AnalyzeIsDeterministic(t *testing.T) {
	host, _, analyzer := newHostAnalyzer(t)
	host.Seed(seedLayercake())
	repository := layercakeRepository(t)

	first, err := analyzer.Analyze(context.Background(), repository, source.Credential{})
	require.NoError(t, err)
	second, err := analyzer.Analyze(context.Background(), repository, source.Credential{})
	require.NoError(t, err)

	assert.Equal(t, first.Dependencies, second.Dependencies)
	assert.Equal(t, first.ImportantFiles, second.ImportantFiles)
	assert.Equal(t, first.PatternHints, second.PatternHints)
	assert.Equal(t, first.Structure, second.Structure)
}

func TestAnalyzer_AnalyzeSkipsUnparsableManifest(t *testing.T) {
	host, _, analyzer := newHostAnalyzer(t)
	seed := seedLayercake()
	seed.Files["package.json"] = "{ not json"
	host.Seed(seed)

	analysis, err := analyzer.Analyze(context.Background(), layercakeRepository(t), source.Credential{})
	require.NoError(t, err)

	// go.mod still parses; the broken package.json is counted but skipped.
	assert.Len(t, analysis.Dependencies, 2)
	assert.Equal(t, 2, analysis.Metadata["manifest_count"])
}

func TestAnalyzer_HasRepositoryChanged(t *testing.T) {
	host, adapter, analyzer := newHostAnalyzer(t)
	host.Seed(seedLayercake())
	repository := layercakeRepository(t)
	ctx := context.Background()

	// Head commit newer than since.
	changed, err := analyzer.HasRepositoryChanged(ctx, repository, layercakeHead.Add(-time.Hour), source.Credential{})
	require.NoError(t, err)
	assert.True(t, changed)

	// No recorded digest: no baseline, always changed.
	changed, err = analyzer.HasRepositoryChanged(ctx, repository, layercakeHead.Add(time.Hour), source.Credential{})
	require.NoError(t, err)
	assert.True(t, changed)

	inventory, err := adapter.Inventory(ctx, repository, "", source.Credential{})
	require.NoError(t, err)

	current := repository.WithInventoryDigest(inventory.Digest)
	changed, err = analyzer.HasRepositoryChanged(ctx, current, layercakeHead.Add(time.Hour), source.Credential{})
	require.NoError(t, err)
	assert.False(t, changed)

	stale := repository.WithInventoryDigest(strings.Repeat("0", 64))
	changed, err = analyzer.HasRepositoryChanged(ctx, stale, layercakeHead.Add(time.Hour), source.Credential{})
	require.NoError(t, err)
	assert.True(t, changed)
}

func TestAnalysisContext_Summary(t *testing.T) {
	analysis := AnalysisContext{
		PrimaryLanguage: "go",
		Languages: map[string]repo.LanguageStat{
			"go":       {FileCount: 8, LineCount: 800, Percentage: 80},
			"markdown": {FileCount: 2, LineCount: 200, Percentage: 20},
		},
		Structure: StructureAnalysis{
			FileCount:   10,
			LineCount:   1000,
			Directories: []string{"api", "domain"},
			EntryPoints: []string{"main.go"},
		},
		Dependencies: []Dependency{
			{Name: "github.com/go-chi/chi/v5", Ecosystem: EcosystemGo},
		},
		PatternHints: []PatternHint{
			{Name: HintLayeredArchitecture, Confidence: 0.6},
		},
		ImportantFiles: []ImportantFile{
			{Path: "go.mod"}, {Path: "main.go"},
		},
	}

	summary := analysis.Summary()
	assert.Contains(t, summary, "Primary language: go")
	assert.Contains(t, summary, "Files: 10, lines: 1000")
	assert.Contains(t, summary, "go 80.0%, markdown 20.0%")
	assert.Contains(t, summary, "Entry points: main.go")
	assert.Contains(t, summary, "github.com/go-chi/chi/v5")
	assert.Contains(t, summary, "layered_architecture (0.60)")
	assert.Contains(t, summary, "Key files: go.mod, main.go")
}
