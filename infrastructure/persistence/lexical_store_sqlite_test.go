package persistence

import (
	"context"
	"testing"

	"github.com/codelore/codelore/domain/repo"
	"github.com/codelore/codelore/domain/search"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSQLiteLexicalStore(t *testing.T) *SQLiteLexicalStore {
	t.Helper()
	store, err := NewSQLiteLexicalStore(newTestDB(t), nil)
	require.NoError(t, err)
	return store
}

func lexicalDoc(t *testing.T, id string, repositoryID int64, kind search.DocumentKind, title, content string) search.Document {
	t.Helper()
	doc, err := search.NewDocument(id, repositoryID, kind, content)
	require.NoError(t, err)
	return doc.WithTitle(title)
}

func TestSQLiteLexicalStore_IndexAndFind(t *testing.T) {
	store := newSQLiteLexicalStore(t)
	ctx := context.Background()

	err := store.Index(ctx, search.NewIndexRequest([]search.Document{
		lexicalDoc(t, "chunk-1", 1, search.KindCodeChunk,
			"login handler",
			"func Login validates the login request and issues a session token for the login flow"),
		lexicalDoc(t, "section-1", 1, search.KindDocSection,
			"Authentication",
			"Login is handled by the auth package"),
		lexicalDoc(t, "chunk-2", 2, search.KindCodeChunk,
			"billing",
			"func Charge posts an invoice"),
	}))
	require.NoError(t, err)

	results, err := store.Find(ctx, search.WithQuery("login"))
	require.NoError(t, err)
	require.Len(t, results, 2)

	// Scores surface higher-is-better; the term-dense chunk ranks first.
	assert.Equal(t, "chunk-1", results[0].DocumentID())
	assert.Greater(t, results[0].Score(), 0.0)
	assert.GreaterOrEqual(t, results[0].Score(), results[1].Score())
}

func TestSQLiteLexicalStore_IndexReplacesDocument(t *testing.T) {
	store := newSQLiteLexicalStore(t)
	ctx := context.Background()

	err := store.Index(ctx, search.NewIndexRequest([]search.Document{
		lexicalDoc(t, "chunk-1", 1, search.KindCodeChunk, "parser", "tokenizes the wire format"),
	}))
	require.NoError(t, err)

	err = store.Index(ctx, search.NewIndexRequest([]search.Document{
		lexicalDoc(t, "chunk-1", 1, search.KindCodeChunk, "parser", "decodes the frame header"),
	}))
	require.NoError(t, err)

	stale, err := store.Find(ctx, search.WithQuery("tokenizes"))
	require.NoError(t, err)
	assert.Empty(t, stale)

	fresh, err := store.Find(ctx, search.WithQuery("frame header"))
	require.NoError(t, err)
	require.Len(t, fresh, 1)
	assert.Equal(t, "chunk-1", fresh[0].DocumentID())
}

func TestSQLiteLexicalStore_IndexSkipsEmptyCorpus(t *testing.T) {
	store := newSQLiteLexicalStore(t)

	err := store.Index(context.Background(), search.NewIndexRequest(nil))
	require.NoError(t, err)
}

func TestSQLiteLexicalStore_FindFiltersByRepository(t *testing.T) {
	store := newSQLiteLexicalStore(t)
	ctx := context.Background()

	err := store.Index(ctx, search.NewIndexRequest([]search.Document{
		lexicalDoc(t, "chunk-1", 1, search.KindCodeChunk, "worker", "the worker drains the queue"),
		lexicalDoc(t, "chunk-2", 2, search.KindCodeChunk, "worker", "the worker polls the queue"),
	}))
	require.NoError(t, err)

	results, err := store.Find(ctx,
		search.WithQuery("worker"),
		search.WithFilters(search.NewFilters(search.WithRepositories(2))),
	)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "chunk-2", results[0].DocumentID())
}

func TestSQLiteLexicalStore_FindFiltersByKindAndPath(t *testing.T) {
	store := newSQLiteLexicalStore(t)
	ctx := context.Background()

	code, err := search.NewDocument("chunk-1", 1, search.KindCodeChunk, "retry with backoff")
	require.NoError(t, err)
	code = code.WithPath("internal/retry/retry.go")
	section, err := search.NewDocument("section-1", 1, search.KindDocSection, "retry semantics are documented here")
	require.NoError(t, err)

	require.NoError(t, store.Index(ctx, search.NewIndexRequest([]search.Document{code, section})))

	results, err := store.Find(ctx,
		search.WithQuery("retry"),
		search.WithFilters(search.NewFilters(search.WithKinds(search.KindDocSection))),
	)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "section-1", results[0].DocumentID())

	results, err = store.Find(ctx,
		search.WithQuery("retry"),
		search.WithFilters(search.NewFilters(search.WithPathPrefix("internal/"))),
	)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "chunk-1", results[0].DocumentID())
}

func TestSQLiteLexicalStore_FindRespectsTopK(t *testing.T) {
	store := newSQLiteLexicalStore(t)
	ctx := context.Background()

	err := store.Index(ctx, search.NewIndexRequest([]search.Document{
		lexicalDoc(t, "chunk-1", 1, search.KindCodeChunk, "cache", "cache get"),
		lexicalDoc(t, "chunk-2", 1, search.KindCodeChunk, "cache", "cache set"),
		lexicalDoc(t, "chunk-3", 1, search.KindCodeChunk, "cache", "cache evict"),
	}))
	require.NoError(t, err)

	results, err := store.Find(ctx, search.WithQuery("cache"), search.WithTopK(2))
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestSQLiteLexicalStore_FindTreatsOperatorsAsText(t *testing.T) {
	store := newSQLiteLexicalStore(t)
	ctx := context.Background()

	err := store.Index(ctx, search.NewIndexRequest([]search.Document{
		lexicalDoc(t, "chunk-1", 1, search.KindCodeChunk, "retry", "retry AND backoff"),
	}))
	require.NoError(t, err)

	// Raw FTS5 would parse these as syntax; the store treats them as a
	// phrase.
	for _, query := range []string{`retry AND backoff`, `"retry"`, `retry*`} {
		_, err := store.Find(ctx, search.WithQuery(query))
		require.NoError(t, err, "query %q", query)
	}

	results, err := store.Find(ctx, search.WithQuery("retry AND backoff"))
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestSQLiteLexicalStore_FindWithoutQueryReturnsNothing(t *testing.T) {
	store := newSQLiteLexicalStore(t)

	results, err := store.Find(context.Background())
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSQLiteLexicalStore_DeleteBy(t *testing.T) {
	store := newSQLiteLexicalStore(t)
	ctx := context.Background()

	err := store.Index(ctx, search.NewIndexRequest([]search.Document{
		lexicalDoc(t, "chunk-1", 1, search.KindCodeChunk, "alpha", "alpha body"),
		lexicalDoc(t, "chunk-2", 1, search.KindCodeChunk, "alpha", "alpha body two"),
		lexicalDoc(t, "chunk-3", 2, search.KindCodeChunk, "alpha", "alpha body three"),
	}))
	require.NoError(t, err)

	require.NoError(t, store.DeleteBy(ctx, search.WithDocumentIDs([]string{"chunk-1"})))
	results, err := store.Find(ctx, search.WithQuery("alpha"))
	require.NoError(t, err)
	assert.Len(t, results, 2)

	require.NoError(t, store.DeleteBy(ctx, repo.WithRepositoryID(1)))
	results, err = store.Find(ctx, search.WithQuery("alpha"))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "chunk-3", results[0].DocumentID())
}
