package source

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codelore/codelore/domain/fault"
	"github.com/codelore/codelore/domain/repo"
)

// requireGitTransport skips tests that clone from local paths, which
// go-git serves by spawning git-upload-pack.
func requireGitTransport(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git-upload-pack"); err != nil {
		t.Skip("git-upload-pack not installed; local clones unavailable")
	}
}

func newGoGitAdapter(t *testing.T) *GoGitAdapter {
	t.Helper()
	adapter, err := NewGoGitAdapter(t.TempDir(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return adapter
}

// initFixture creates a source repository with one initial commit on
// master.
func initFixture(t *testing.T, files map[string]string) (string, *gogit.Repository) {
	t.Helper()
	dir := t.TempDir()
	gitRepo, err := gogit.PlainInit(dir, false)
	require.NoError(t, err)
	commitFixture(t, gitRepo, dir, files, "initial import")
	return dir, gitRepo
}

func commitFixture(t *testing.T, gitRepo *gogit.Repository, dir string, files map[string]string, message string) {
	t.Helper()
	worktree, err := gitRepo.Worktree()
	require.NoError(t, err)

	for path, content := range files {
		full := filepath.Join(dir, filepath.FromSlash(path))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
		_, err = worktree.Add(path)
		require.NoError(t, err)
	}

	_, err = worktree.Commit(message, &gogit.CommitOptions{
		Author: &object.Signature{Name: "Dev One", Email: "dev@example.com", When: time.Now()},
	})
	require.NoError(t, err)
}

// localFixtureRepository builds an aggregate pointing at a local source
// path; local paths never pass NewRepository's URL validation.
func localFixtureRepository(t *testing.T, srcDir string) repo.Repository {
	t.Helper()
	now := time.Now().UTC()
	return repo.ReconstructRepository(
		1, srcDir, "",
		repo.RemoteMetadata{Owner: "local", Name: filepath.Base(srcDir), DefaultBranch: "master"},
		repo.StatusConnected, repo.Statistics{}, "", "",
		now, now, time.Time{},
	)
}

func TestGoGitAdapter_ConnectRepository(t *testing.T) {
	requireGitTransport(t)
	srcDir, _ := initFixture(t, map[string]string{"main.go": "package main\n"})
	adapter := newGoGitAdapter(t)

	meta, err := adapter.ConnectRepository(context.Background(), srcDir, Credential{})
	require.NoError(t, err)

	assert.Equal(t, "master", meta.DefaultBranch)
	assert.Equal(t, filepath.Base(srcDir), meta.Name)
	assert.False(t, meta.LastPushedAt.IsZero())
}

func TestGoGitAdapter_ValidateAccess(t *testing.T) {
	requireGitTransport(t)
	srcDir, _ := initFixture(t, map[string]string{"main.go": "package main\n"})
	adapter := newGoGitAdapter(t)
	ctx := context.Background()

	ok, err := adapter.ValidateAccess(ctx, srcDir, Credential{})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = adapter.ValidateAccess(ctx, filepath.Join(t.TempDir(), "void"), Credential{})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGoGitAdapter_ListBranches(t *testing.T) {
	requireGitTransport(t)
	srcDir, gitRepo := initFixture(t, map[string]string{"main.go": "package main\n"})

	worktree, err := gitRepo.Worktree()
	require.NoError(t, err)
	require.NoError(t, worktree.Checkout(&gogit.CheckoutOptions{
		Branch: plumbing.NewBranchReferenceName("feature"),
		Create: true,
	}))
	commitFixture(t, gitRepo, srcDir, map[string]string{"feature.go": "package feature\n"}, "start feature work")
	require.NoError(t, worktree.Checkout(&gogit.CheckoutOptions{
		Branch: plumbing.NewBranchReferenceName("master"),
	}))

	adapter := newGoGitAdapter(t)
	branches, err := adapter.ListBranches(context.Background(), localFixtureRepository(t, srcDir), Credential{})
	require.NoError(t, err)
	require.Len(t, branches, 2)

	assert.Equal(t, "feature", branches[0].Name())
	assert.False(t, branches[0].IsDefault())
	assert.Equal(t, "master", branches[1].Name())
	assert.True(t, branches[1].IsDefault())
	assert.NotEmpty(t, branches[1].LastCommitSHA())
}

func TestGoGitAdapter_ListCommits(t *testing.T) {
	requireGitTransport(t)
	srcDir, gitRepo := initFixture(t, map[string]string{"main.go": "package main\n"})
	commitFixture(t, gitRepo, srcDir, map[string]string{"lib/helper.go": "package lib\n"}, "add helper")

	adapter := newGoGitAdapter(t)
	repository := localFixtureRepository(t, srcDir)

	commits, err := adapter.ListCommits(context.Background(), repository, "", 10, Credential{})
	require.NoError(t, err)
	require.Len(t, commits, 2)
	assert.Equal(t, "add helper", commits[0].Message())
	assert.Equal(t, "initial import", commits[1].Message())
	assert.Equal(t, "Dev One <dev@example.com>", commits[0].Author())

	commits, err = adapter.ListCommits(context.Background(), repository, "", 1, Credential{})
	require.NoError(t, err)
	assert.Len(t, commits, 1)
}

func TestGoGitAdapter_ListCommitsUnknownBranch(t *testing.T) {
	requireGitTransport(t)
	srcDir, _ := initFixture(t, map[string]string{"main.go": "package main\n"})

	adapter := newGoGitAdapter(t)
	_, err := adapter.ListCommits(context.Background(), localFixtureRepository(t, srcDir), "ghost", 10, Credential{})
	require.Error(t, err)
	assert.True(t, fault.Is(err, fault.KindSourceNotFound), "got kind %s", fault.KindOf(err))
}

func TestGoGitAdapter_AnalyzeStructure(t *testing.T) {
	requireGitTransport(t)
	srcDir, _ := initFixture(t, map[string]string{
		"main.go":     "package main\n\nfunc main() {}\n",
		"lib/util.go": "package lib\n",
		"README.md":   "# Fixture\n",
	})

	adapter := newGoGitAdapter(t)
	stats, err := adapter.AnalyzeStructure(context.Background(), localFixtureRepository(t, srcDir), "", Credential{})
	require.NoError(t, err)

	assert.Equal(t, "go", stats.PrimaryLanguage())
	assert.Equal(t, 3, stats.FileCount())
	assert.Equal(t, 5, stats.LineCount())
}

func TestGoGitAdapter_InventoryDigestChangesAfterNewCommit(t *testing.T) {
	requireGitTransport(t)
	srcDir, gitRepo := initFixture(t, map[string]string{"main.go": "package main\n"})

	adapter := newGoGitAdapter(t)
	repository := localFixtureRepository(t, srcDir)
	ctx := context.Background()

	before, err := adapter.Inventory(ctx, repository, "", Credential{})
	require.NoError(t, err)
	require.NotEmpty(t, before.Digest)

	commitFixture(t, gitRepo, srcDir, map[string]string{"CHANGELOG.md": "# Changes\n"}, "start changelog")

	after, err := adapter.Inventory(ctx, repository, "", Credential{})
	require.NoError(t, err)
	assert.NotEqual(t, before.Digest, after.Digest)
}

func TestGoGitAdapter_ReadFile(t *testing.T) {
	requireGitTransport(t)
	content := "package main\n\nfunc main() {}\n"
	srcDir, _ := initFixture(t, map[string]string{"main.go": content})

	adapter := newGoGitAdapter(t)
	repository := localFixtureRepository(t, srcDir)
	ctx := context.Background()

	got, err := adapter.ReadFile(ctx, repository, "", "main.go", Credential{})
	require.NoError(t, err)
	assert.Equal(t, content, string(got))

	_, err = adapter.ReadFile(ctx, repository, "", "missing.go", Credential{})
	require.Error(t, err)
	assert.True(t, fault.Is(err, fault.KindSourceNotFound), "got kind %s", fault.KindOf(err))
}

func TestGoGitAdapter_ReadFileRejectsOversized(t *testing.T) {
	requireGitTransport(t)
	srcDir, _ := initFixture(t, map[string]string{
		"big.bin": strings.Repeat("a", MaxFileBytes+1),
	})

	adapter := newGoGitAdapter(t)
	_, err := adapter.ReadFile(context.Background(), localFixtureRepository(t, srcDir), "", "big.bin", Credential{})
	require.Error(t, err)
	assert.True(t, fault.Is(err, fault.KindValidation), "got kind %s", fault.KindOf(err))
}
