package persistence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/codelore/codelore/domain/conversation"
	"github.com/codelore/codelore/internal/database"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConversation(t *testing.T, userID string, repositoryIDs ...int64) conversation.Conversation {
	t.Helper()
	conv, err := conversation.NewConversation(userID, "how does auth work?",
		conversation.Context{RepositoryIDs: repositoryIDs})
	require.NoError(t, err)
	return conv
}

// conversationAt builds a conversation whose activity timestamps lie in the
// past, which NewConversation cannot produce.
func conversationAt(userID string, status conversation.Status, lastActivity time.Time) conversation.Conversation {
	return conversation.ReconstructConversation(
		uuid.New().String(), userID, "stale thread", status, nil,
		conversation.Context{}, lastActivity, lastActivity, nil,
	)
}

func TestConversationStore_SaveAndReload(t *testing.T) {
	db := newTestDB(t)
	store := NewConversationStore(db)
	ctx := context.Background()

	conv := testConversation(t, "u1", 1, 2)
	question, err := conversation.NewMessage(conversation.MessageTypeUserQuery, "where is the login handler?")
	require.NoError(t, err)
	conv, err = conv.AddMessage(question)
	require.NoError(t, err)
	answer, err := conversation.NewMessage(conversation.MessageTypeAIResponse, "pkg/auth/handler.go")
	require.NoError(t, err)
	conv, err = conv.AddMessage(answer)
	require.NoError(t, err)

	saved, err := store.Save(ctx, conv)
	require.NoError(t, err)
	assert.Equal(t, conv.ID(), saved.ID())

	loaded, err := store.ByID(ctx, conv.ID())
	require.NoError(t, err)
	assert.Equal(t, "u1", loaded.UserID())
	assert.Equal(t, "how does auth work?", loaded.Title())
	assert.Equal(t, conversation.StatusActive, loaded.Status())
	assert.Equal(t, []int64{1, 2}, loaded.Context().RepositoryIDs)

	messages := loaded.Messages()
	require.Len(t, messages, 2)
	assert.Equal(t, "where is the login handler?", messages[0].Content())
	assert.Equal(t, conversation.MessageTypeAIResponse, messages[1].Type())
}

func TestConversationStore_SaveUpsertsExistingMessages(t *testing.T) {
	db := newTestDB(t)
	store := NewConversationStore(db)
	ctx := context.Background()

	conv := testConversation(t, "u1")
	msg, err := conversation.NewMessage(conversation.MessageTypeUserQuery, "first")
	require.NoError(t, err)
	conv, err = conv.AddMessage(msg)
	require.NoError(t, err)

	conv, err = store.Save(ctx, conv)
	require.NoError(t, err)

	followUp, err := conversation.NewMessage(conversation.MessageTypeUserQuery, "second")
	require.NoError(t, err)
	conv, err = conv.AddMessage(followUp)
	require.NoError(t, err)

	saved, err := store.Save(ctx, conv)
	require.NoError(t, err)
	assert.Equal(t, 2, saved.MessageCount())

	var rows int64
	require.NoError(t, db.GORM().Model(&MessageModel{}).Count(&rows).Error)
	assert.Equal(t, int64(2), rows)
}

func TestConversationStore_ByIDNotFound(t *testing.T) {
	db := newTestDB(t)
	store := NewConversationStore(db)

	_, err := store.ByID(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, database.ErrNotFound))
}

func TestConversationStore_ByUserOrdersByActivity(t *testing.T) {
	db := newTestDB(t)
	store := NewConversationStore(db)
	ctx := context.Background()

	older := conversationAt("u1", conversation.StatusActive, time.Now().UTC().Add(-2*time.Hour))
	newer := conversationAt("u1", conversation.StatusActive, time.Now().UTC().Add(-time.Hour))
	other := conversationAt("u2", conversation.StatusActive, time.Now().UTC())
	for _, c := range []conversation.Conversation{older, newer, other} {
		_, err := store.Save(ctx, c)
		require.NoError(t, err)
	}

	found, err := store.ByUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, newer.ID(), found[0].ID())
	assert.Equal(t, older.ID(), found[1].ID())
}

func TestConversationStore_ByRepositoriesIntersectsScope(t *testing.T) {
	db := newTestDB(t)
	store := NewConversationStore(db)
	ctx := context.Background()

	scoped := testConversation(t, "u1", 1, 2)
	elsewhere := testConversation(t, "u1", 3)
	for _, c := range []conversation.Conversation{scoped, elsewhere} {
		_, err := store.Save(ctx, c)
		require.NoError(t, err)
	}

	found, err := store.ByRepositories(ctx, []int64{2, 7})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, scoped.ID(), found[0].ID())
}

func TestConversationStore_SearchMatchesTitleAndContent(t *testing.T) {
	db := newTestDB(t)
	store := NewConversationStore(db)
	ctx := context.Background()

	byTitle := testConversation(t, "u1")
	byContent := testConversation(t, "u1")
	msg, err := conversation.NewMessage(conversation.MessageTypeUserQuery, "is the rate limiter per user?")
	require.NoError(t, err)
	byContent, err = byContent.AddMessage(msg)
	require.NoError(t, err)
	foreign := testConversation(t, "u2")

	for _, c := range []conversation.Conversation{byTitle, byContent, foreign} {
		_, err := store.Save(ctx, c)
		require.NoError(t, err)
	}

	found, err := store.Search(ctx, "auth", "u1")
	require.NoError(t, err)
	require.Len(t, found, 2)

	found, err = store.Search(ctx, "rate limiter", "u1")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, byContent.ID(), found[0].ID())

	// Matches never cross user boundaries.
	found, err = store.Search(ctx, "auth", "u2")
	require.NoError(t, err)
	assert.Len(t, found, 1)
}

func TestConversationStore_BulkArchive(t *testing.T) {
	db := newTestDB(t)
	store := NewConversationStore(db)
	ctx := context.Background()

	stale := conversationAt("u1", conversation.StatusActive, time.Now().UTC().AddDate(0, 0, -40))
	recent := testConversation(t, "u1")
	for _, c := range []conversation.Conversation{stale, recent} {
		_, err := store.Save(ctx, c)
		require.NoError(t, err)
	}

	archived, err := store.BulkArchive(ctx, "u1", 30)
	require.NoError(t, err)
	assert.Equal(t, int64(1), archived)

	loaded, err := store.ByID(ctx, stale.ID())
	require.NoError(t, err)
	assert.Equal(t, conversation.StatusArchived, loaded.Status())

	loaded, err = store.ByID(ctx, recent.ID())
	require.NoError(t, err)
	assert.Equal(t, conversation.StatusActive, loaded.Status())
}

func TestConversationStore_ForCleanup(t *testing.T) {
	db := newTestDB(t)
	store := NewConversationStore(db)
	ctx := context.Background()

	expired := conversationAt("u1", conversation.StatusArchived, time.Now().UTC().AddDate(0, 0, -120))
	activeButOld := conversationAt("u1", conversation.StatusActive, time.Now().UTC().AddDate(0, 0, -120))
	freshArchived := conversationAt("u1", conversation.StatusArchived, time.Now().UTC())
	for _, c := range []conversation.Conversation{expired, activeButOld, freshArchived} {
		_, err := store.Save(ctx, c)
		require.NoError(t, err)
	}

	due, err := store.ForCleanup(ctx, 90, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, expired.ID(), due[0].ID())
}

func TestConversationStore_Statistics(t *testing.T) {
	db := newTestDB(t)
	store := NewConversationStore(db)
	ctx := context.Background()

	first := testConversation(t, "u1")
	for _, content := range []string{"one", "two"} {
		msg, err := conversation.NewMessage(conversation.MessageTypeUserQuery, content)
		require.NoError(t, err)
		first, err = first.AddMessage(msg)
		require.NoError(t, err)
	}
	second := conversationAt("u1", conversation.StatusArchived, time.Now().UTC())
	foreign := testConversation(t, "u2")

	for _, c := range []conversation.Conversation{first, second, foreign} {
		_, err := store.Save(ctx, c)
		require.NoError(t, err)
	}

	stats, err := store.Statistics(ctx, conversation.StatisticsQuery{UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalConversations)
	assert.Equal(t, int64(1), stats.ByStatus[conversation.StatusActive])
	assert.Equal(t, int64(1), stats.ByStatus[conversation.StatusArchived])
	assert.Equal(t, int64(2), stats.TotalMessages)
	assert.InDelta(t, 1.0, stats.AverageMessageCount, 0.001)
	assert.Equal(t, int64(1), stats.ActiveDays)
	assert.False(t, stats.FirstActivityAt.IsZero())
}

func TestConversationStore_DeleteCascadesMessages(t *testing.T) {
	db := newTestDB(t)
	store := NewConversationStore(db)
	ctx := context.Background()

	conv := testConversation(t, "u1")
	msg, err := conversation.NewMessage(conversation.MessageTypeUserQuery, "gone soon")
	require.NoError(t, err)
	conv, err = conv.AddMessage(msg)
	require.NoError(t, err)
	_, err = store.Save(ctx, conv)
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, conv.ID()))

	_, err = store.ByID(ctx, conv.ID())
	assert.True(t, errors.Is(err, database.ErrNotFound))

	var rows int64
	require.NoError(t, db.GORM().Model(&MessageModel{}).Count(&rows).Error)
	assert.Zero(t, rows)
}
