package persistence

import (
	"context"
	"testing"

	"github.com/codelore/codelore/domain/repo"
	"github.com/codelore/codelore/domain/search"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func searchDoc(t *testing.T, id string, repositoryID int64, kind search.DocumentKind, content string) search.Document {
	t.Helper()
	doc, err := search.NewDocument(id, repositoryID, kind, content)
	require.NoError(t, err)
	return doc
}

func TestSearchDocumentStore_UpsertAndByIDs(t *testing.T) {
	db := newTestDB(t)
	store := NewSearchDocumentStore(db)
	ctx := context.Background()

	original := searchDoc(t, "chunk-1", 1, search.KindCodeChunk, "original body").
		WithTitle("handler").
		WithPath("pkg/auth/handler.go").
		WithLanguage("go").
		WithLines(10, 42).
		WithTags([]string{"auth"})

	require.NoError(t, store.Upsert(ctx, []search.Document{original}))

	docs, err := store.ByIDs(ctx, []string{"chunk-1", "missing"})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "handler", docs[0].Title())
	assert.Equal(t, "pkg/auth/handler.go", docs[0].Path())
	assert.Equal(t, 10, docs[0].StartLine())
	assert.Equal(t, 42, docs[0].EndLine())
	assert.Equal(t, []string{"auth"}, docs[0].Tags())

	// Same id replaces the payload.
	require.NoError(t, store.Upsert(ctx, []search.Document{
		searchDoc(t, "chunk-1", 1, search.KindCodeChunk, "rewritten body"),
	}))

	docs, err = store.ByIDs(ctx, []string{"chunk-1"})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "rewritten body", docs[0].Content())

	var rows int64
	require.NoError(t, db.GORM().Model(&SearchDocumentModel{}).Count(&rows).Error)
	assert.Equal(t, int64(1), rows)
}

func TestSearchDocumentStore_FindWithFilters(t *testing.T) {
	db := newTestDB(t)
	store := NewSearchDocumentStore(db)
	ctx := context.Background()

	goChunk := searchDoc(t, "chunk-1", 1, search.KindCodeChunk, "go code").WithLanguage("go")
	pyChunk := searchDoc(t, "chunk-2", 1, search.KindCodeChunk, "python code").WithLanguage("python")
	section := searchDoc(t, "section-1", 1, search.KindDocSection, "overview text").WithSectionType("overview")
	otherRepo := searchDoc(t, "chunk-3", 2, search.KindCodeChunk, "elsewhere").WithLanguage("go")
	require.NoError(t, store.Upsert(ctx, []search.Document{goChunk, pyChunk, section, otherRepo}))

	docs, err := store.Find(ctx, search.WithFilters(search.NewFilters(
		search.WithRepositories(1),
		search.WithKinds(search.KindCodeChunk),
	)))
	require.NoError(t, err)
	assert.Len(t, docs, 2)

	docs, err = store.Find(ctx, search.WithFilters(search.NewFilters(
		search.WithLanguage("go"),
	)))
	require.NoError(t, err)
	require.Len(t, docs, 2)

	docs, err = store.Find(ctx, search.WithFilters(search.NewFilters(
		search.WithSectionTypes("overview"),
	)))
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "section-1", docs[0].ID())
}

func TestSearchDocumentStore_FindTagFilterKeepsLimit(t *testing.T) {
	db := newTestDB(t)
	store := NewSearchDocumentStore(db)
	ctx := context.Background()

	// Tags live in a JSON column, so they are filtered after the SQL
	// query; the limit must still be honored afterwards.
	tagged1 := searchDoc(t, "chunk-1", 1, search.KindCodeChunk, "a").WithTags([]string{"auth"})
	untagged := searchDoc(t, "chunk-2", 1, search.KindCodeChunk, "b")
	tagged2 := searchDoc(t, "chunk-3", 1, search.KindCodeChunk, "c").WithTags([]string{"auth", "session"})
	require.NoError(t, store.Upsert(ctx, []search.Document{tagged1, untagged, tagged2}))

	docs, err := store.Find(ctx,
		search.WithFilters(search.NewFilters(search.WithTags("auth"))),
		repo.WithLimit(2),
	)
	require.NoError(t, err)
	assert.Len(t, docs, 2)

	docs, err = store.Find(ctx,
		search.WithFilters(search.NewFilters(search.WithTags("auth"))),
		repo.WithLimit(1),
	)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.NotEqual(t, "chunk-2", docs[0].ID())
}

func TestSearchDocumentStore_FindWithoutFilters(t *testing.T) {
	db := newTestDB(t)
	store := NewSearchDocumentStore(db)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, []search.Document{
		searchDoc(t, "chunk-1", 1, search.KindCodeChunk, "a"),
		searchDoc(t, "chunk-2", 2, search.KindCodeChunk, "b"),
	}))

	docs, err := store.Find(ctx, repo.WithRepositoryID(2))
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "chunk-2", docs[0].ID())
}

func TestSearchDocumentStore_DeleteBy(t *testing.T) {
	db := newTestDB(t)
	store := NewSearchDocumentStore(db)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, []search.Document{
		searchDoc(t, "chunk-1", 1, search.KindCodeChunk, "a"),
		searchDoc(t, "chunk-2", 2, search.KindCodeChunk, "b"),
	}))

	require.NoError(t, store.DeleteBy(ctx, repo.WithRepositoryID(1)))

	docs, err := store.ByIDs(ctx, []string{"chunk-1", "chunk-2"})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "chunk-2", docs[0].ID())
}
