package source

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codelore/codelore/domain/fault"
	"github.com/codelore/codelore/infrastructure/source/sourcetest"
	"github.com/codelore/codelore/internal/config"
)

func newHostAdapter(t *testing.T) (*sourcetest.Host, *RemoteAdapter) {
	t.Helper()
	host := sourcetest.NewHost()
	t.Cleanup(host.Close)

	cfg := config.NewSourceConfigWithOptions(config.WithSourceAPIBase(host.URL()))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return host, NewRemoteAdapter(cfg, logger)
}

func seedWidget() sourcetest.SeedRepo {
	newer := time.Date(2024, 3, 5, 10, 11, 12, 0, time.UTC)
	older := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)

	return sourcetest.SeedRepo{
		Owner:         "acme",
		Name:          "widget",
		Description:   "Payment widget service",
		DefaultBranch: "main",
		Language:      "Go",
		CreatedAt:     time.Date(2023, 1, 2, 3, 4, 5, 0, time.UTC),
		UpdatedAt:     newer,
		PushedAt:      newer,
		Branches: []sourcetest.SeedBranch{
			{Name: "main", SHA: "aaa111"},
			{Name: "dev", SHA: "bbb222"},
		},
		Commits: map[string][]sourcetest.SeedCommit{
			"main": {
				{SHA: "aaa111", Message: "add checkout flow", AuthorName: "Alice", AuthorEmail: "alice@example.com", At: newer},
				{SHA: "aaa000", Message: "initial import", AuthorName: "Bob", AuthorEmail: "bob@example.com", At: older},
			},
		},
		Files: map[string]string{
			"main.go":   strings.Repeat("package main // filler line\n", 4),
			"util.py":   strings.Repeat("print('ok')\n", 4),
			"logo.png":  "\x89PNG not really",
			"README.md": "# Widget\n\nHandles payments.\n",
		},
	}
}

func TestRemoteAdapter_ConnectRepository(t *testing.T) {
	host, adapter := newHostAdapter(t)
	seed := seedWidget()
	host.Seed(seed)

	meta, err := adapter.ConnectRepository(context.Background(), "https://git.example.com/acme/widget", Credential{})
	require.NoError(t, err)

	assert.Equal(t, "acme", meta.Owner)
	assert.Equal(t, "widget", meta.Name)
	assert.Equal(t, "Payment widget service", meta.Description)
	assert.Equal(t, "main", meta.DefaultBranch)
	assert.Equal(t, "go", meta.PrimaryLanguage)
	assert.True(t, meta.CreatedAt.Equal(seed.CreatedAt))
	assert.True(t, meta.LastPushedAt.Equal(seed.PushedAt))
	assert.Equal(t, 1, host.Hits(http.MethodGet, "/repos/acme/widget"))
}

func TestRemoteAdapter_ConnectRepositoryNotFound(t *testing.T) {
	_, adapter := newHostAdapter(t)

	_, err := adapter.ConnectRepository(context.Background(), "https://git.example.com/acme/ghost", Credential{})
	require.Error(t, err)
	assert.True(t, fault.Is(err, fault.KindSourceNotFound), "got kind %s", fault.KindOf(err))
}

func TestRemoteAdapter_ValidateAccess(t *testing.T) {
	host, adapter := newHostAdapter(t)
	host.Seed(seedWidget())
	ctx := context.Background()

	ok, err := adapter.ValidateAccess(ctx, "https://git.example.com/acme/widget", Credential{})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = adapter.ValidateAccess(ctx, "https://git.example.com/acme/ghost", Credential{})
	require.NoError(t, err)
	assert.False(t, ok)

	host.RequireToken("s3cret")

	ok, err = adapter.ValidateAccess(ctx, "https://git.example.com/acme/widget", Credential{})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = adapter.ValidateAccess(ctx, "https://git.example.com/acme/widget", Credential{Token: "s3cret"})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRemoteAdapter_ValidateAccessHostFailure(t *testing.T) {
	host, adapter := newHostAdapter(t)
	host.Seed(seedWidget())
	host.FailNext(1)

	_, err := adapter.ValidateAccess(context.Background(), "https://git.example.com/acme/widget", Credential{})
	require.Error(t, err)
	assert.True(t, fault.Is(err, fault.KindSourceUnavailable), "got kind %s", fault.KindOf(err))
}

func TestRemoteAdapter_ListBranches(t *testing.T) {
	host, adapter := newHostAdapter(t)
	host.Seed(seedWidget())

	branches, err := adapter.ListBranches(context.Background(), testSourceRepository(t, "main"), Credential{})
	require.NoError(t, err)
	require.Len(t, branches, 2)

	assert.Equal(t, "main", branches[0].Name())
	assert.True(t, branches[0].IsDefault())
	assert.Equal(t, "aaa111", branches[0].LastCommitSHA())

	assert.Equal(t, "dev", branches[1].Name())
	assert.False(t, branches[1].IsDefault())
}

func TestRemoteAdapter_ListCommits(t *testing.T) {
	host, adapter := newHostAdapter(t)
	host.Seed(seedWidget())
	repository := testSourceRepository(t, "main")

	commits, err := adapter.ListCommits(context.Background(), repository, "", 1, Credential{})
	require.NoError(t, err)
	require.Len(t, commits, 1)
	assert.Equal(t, "aaa111", commits[0].SHA())
	assert.Equal(t, "add checkout flow", commits[0].Message())
	assert.Equal(t, "Alice <alice@example.com>", commits[0].Author())

	commits, err = adapter.ListCommits(context.Background(), repository, "main", 0, Credential{})
	require.NoError(t, err)
	assert.Len(t, commits, 2)
}

func TestRemoteAdapter_ListCommitsUnknownBranch(t *testing.T) {
	host, adapter := newHostAdapter(t)
	host.Seed(seedWidget())

	_, err := adapter.ListCommits(context.Background(), testSourceRepository(t, "main"), "ghost", 10, Credential{})
	require.Error(t, err)
	assert.True(t, fault.Is(err, fault.KindSourceNotFound), "got kind %s", fault.KindOf(err))
}

func TestRemoteAdapter_ThrottledRequestCarriesRetryAfter(t *testing.T) {
	host, adapter := newHostAdapter(t)
	host.Seed(seedWidget())
	host.ThrottleNext(1, 3*time.Second)

	_, err := adapter.ListBranches(context.Background(), testSourceRepository(t, "main"), Credential{})
	require.Error(t, err)
	assert.True(t, fault.Is(err, fault.KindRateLimited), "got kind %s", fault.KindOf(err))

	hint, ok := fault.RetryAfterHint(err)
	require.True(t, ok)
	assert.Equal(t, 3*time.Second, hint)

	// The injected throttle is consumed; the next call succeeds.
	branches, err := adapter.ListBranches(context.Background(), testSourceRepository(t, "main"), Credential{})
	require.NoError(t, err)
	assert.Len(t, branches, 2)
}

func TestRemoteAdapter_AnalyzeStructure(t *testing.T) {
	host, adapter := newHostAdapter(t)
	host.Seed(seedWidget())

	stats, err := adapter.AnalyzeStructure(context.Background(), testSourceRepository(t, "main"), "", Credential{})
	require.NoError(t, err)

	languages := stats.Languages()
	require.Contains(t, languages, "go")
	require.Contains(t, languages, "python")
	require.Contains(t, languages, "markdown")
	assert.NotContains(t, languages, "png")

	assert.Equal(t, "go", stats.PrimaryLanguage())
	assert.Equal(t, 3, stats.FileCount())
}

func TestRemoteAdapter_InventoryDigestTracksContent(t *testing.T) {
	host, adapter := newHostAdapter(t)
	seed := seedWidget()
	host.Seed(seed)
	repository := testSourceRepository(t, "main")
	ctx := context.Background()

	first, err := adapter.Inventory(ctx, repository, "", Credential{})
	require.NoError(t, err)
	require.NotEmpty(t, first.Digest)

	// Same content, same digest: the remote digest is content-addressed.
	again, err := adapter.Inventory(ctx, repository, "", Credential{})
	require.NoError(t, err)
	assert.Equal(t, first.Digest, again.Digest)

	seed.Files["main.go"] += "// trailing comment\n"
	host.Seed(seed)

	changed, err := adapter.Inventory(ctx, repository, "", Credential{})
	require.NoError(t, err)
	assert.NotEqual(t, first.Digest, changed.Digest)
}

func TestRemoteAdapter_ReadFile(t *testing.T) {
	host, adapter := newHostAdapter(t)
	seed := seedWidget()
	host.Seed(seed)
	repository := testSourceRepository(t, "main")
	ctx := context.Background()

	content, err := adapter.ReadFile(ctx, repository, "", "main.go", Credential{})
	require.NoError(t, err)
	assert.Equal(t, seed.Files["main.go"], string(content))

	_, err = adapter.ReadFile(ctx, repository, "", "missing.go", Credential{})
	require.Error(t, err)
	assert.True(t, fault.Is(err, fault.KindSourceNotFound), "got kind %s", fault.KindOf(err))
}

func TestRemoteAdapter_ReadFileRejectsOversized(t *testing.T) {
	host, adapter := newHostAdapter(t)
	seed := seedWidget()
	seed.Files["big.bin"] = strings.Repeat("a", MaxFileBytes+1)
	host.Seed(seed)

	_, err := adapter.ReadFile(context.Background(), testSourceRepository(t, "main"), "", "big.bin", Credential{})
	require.Error(t, err)
	assert.True(t, fault.Is(err, fault.KindValidation), "got kind %s", fault.KindOf(err))
}

func TestEstimateLines(t *testing.T) {
	assert.Equal(t, 0, estimateLines(0))
	assert.Equal(t, 1, estimateLines(10))
	assert.Equal(t, 1, estimateLines(remoteBytesPerLine))
	assert.Equal(t, 4, estimateLines(4*remoteBytesPerLine))
}

func TestRetryAfterFrom(t *testing.T) {
	h := http.Header{}
	assert.Equal(t, time.Duration(0), retryAfterFrom(h))

	h.Set("Retry-After", "5")
	assert.Equal(t, 5*time.Second, retryAfterFrom(h))

	h.Set("Retry-After", time.Now().Add(90*time.Second).UTC().Format(http.TimeFormat))
	got := retryAfterFrom(h)
	assert.Greater(t, got, time.Second)
	assert.LessOrEqual(t, got, 90*time.Second)

	h.Set("Retry-After", "garbage")
	assert.Equal(t, time.Duration(0), retryAfterFrom(h))
}
