package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/codelore/codelore/domain/conversation"
	"github.com/codelore/codelore/domain/repo"
	"github.com/codelore/codelore/internal/database"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ConversationStore implements conversation.Store using GORM. A conversation
// is an aggregate: the root row and its message rows are written together,
// messages upserted by id so appends and edits both land in one save.
type ConversationStore struct {
	db            database.Database
	mapper        ConversationMapper
	messageMapper MessageMapper
}

// NewConversationStore creates a new ConversationStore.
func NewConversationStore(db database.Database) ConversationStore {
	return ConversationStore{
		db:            db,
		mapper:        ConversationMapper{},
		messageMapper: MessageMapper{},
	}
}

// Save inserts or updates a conversation and its messages.
func (s ConversationStore) Save(ctx context.Context, conv conversation.Conversation) (conversation.Conversation, error) {
	model := s.mapper.ToModel(conv)
	messages := conv.Messages()

	err := database.WithTransaction(ctx, s.db, func(tx *gorm.DB) error {
		result := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).Create(&model)
		if result.Error != nil {
			return fmt.Errorf("save conversation: %w", result.Error)
		}

		if len(messages) == 0 {
			return nil
		}

		messageModels := make([]MessageModel, len(messages))
		for i, msg := range messages {
			messageModels[i] = s.messageMapper.ToModel(msg)
		}
		result = tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).CreateInBatches(&messageModels, 200)
		if result.Error != nil {
			return fmt.Errorf("save messages: %w", result.Error)
		}
		return nil
	})
	if err != nil {
		return conversation.Conversation{}, err
	}

	return s.ByID(ctx, model.ID)
}

// ByID retrieves a conversation with its messages in append order.
func (s ConversationStore) ByID(ctx context.Context, id string) (conversation.Conversation, error) {
	var model ConversationModel
	result := s.db.Session(ctx).Where("id = ?", id).First(&model)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return conversation.Conversation{}, fmt.Errorf("%w: conversation %s", database.ErrNotFound, id)
		}
		return conversation.Conversation{}, fmt.Errorf("get conversation: %w", result.Error)
	}
	return s.attachMessages(ctx, model)
}

// ByUser retrieves a user's conversations, most recently active first.
func (s ConversationStore) ByUser(ctx context.Context, userID string, options ...repo.Option) ([]conversation.Conversation, error) {
	var models []ConversationModel
	db := s.db.Session(ctx).Where("user_id = ?", userID).Order("last_activity_at DESC")
	db = database.ApplyOptions(db, options...)
	if result := db.Find(&models); result.Error != nil {
		return nil, fmt.Errorf("find conversations: %w", result.Error)
	}
	return s.attachAll(ctx, models)
}

// ByRepositories retrieves conversations whose context intersects the given
// repositories. Repository ids live in a JSON array column, so the
// intersection is evaluated in Go with limit and offset applied after.
func (s ConversationStore) ByRepositories(ctx context.Context, repositoryIDs []int64, options ...repo.Option) ([]conversation.Conversation, error) {
	if len(repositoryIDs) == 0 {
		return nil, nil
	}

	query := repo.Build(options...)

	var models []ConversationModel
	db := s.db.Session(ctx).Order("last_activity_at DESC")
	db = database.ApplyConditions(db, options...)
	if result := db.Find(&models); result.Error != nil {
		return nil, fmt.Errorf("find conversations: %w", result.Error)
	}

	wanted := make(map[int64]struct{}, len(repositoryIDs))
	for _, id := range repositoryIDs {
		wanted[id] = struct{}{}
	}

	var matched []ConversationModel
	for _, model := range models {
		for _, id := range fromJSON[[]int64](model.RepositoryIDs) {
			if _, ok := wanted[id]; ok {
				matched = append(matched, model)
				break
			}
		}
	}

	matched = paginate(matched, query.OffsetValue(), query.LimitValue())
	return s.attachAll(ctx, matched)
}

// Delete removes a conversation and its messages.
func (s ConversationStore) Delete(ctx context.Context, id string) error {
	return database.WithTransaction(ctx, s.db, func(tx *gorm.DB) error {
		if result := tx.Where("conversation_id = ?", id).Delete(&MessageModel{}); result.Error != nil {
			return fmt.Errorf("delete messages: %w", result.Error)
		}
		if result := tx.Where("id = ?", id).Delete(&ConversationModel{}); result.Error != nil {
			return fmt.Errorf("delete conversation: %w", result.Error)
		}
		return nil
	})
}

// Search matches term against conversation titles and message content for
// one user, case-insensitively.
func (s ConversationStore) Search(ctx context.Context, term, userID string, options ...repo.Option) ([]conversation.Conversation, error) {
	pattern := "%" + strings.ToLower(term) + "%"

	var models []ConversationModel
	db := s.db.Session(ctx).
		Where("user_id = ?", userID).
		Where(
			"LOWER(title) LIKE ? OR id IN (SELECT conversation_id FROM conversation_messages WHERE LOWER(content) LIKE ?)",
			pattern, pattern,
		).
		Order("last_activity_at DESC")
	db = database.ApplyOptions(db, options...)
	if result := db.Find(&models); result.Error != nil {
		return nil, fmt.Errorf("search conversations: %w", result.Error)
	}
	return s.attachAll(ctx, models)
}

// ForCleanup returns archived or deleted conversations whose last activity
// is older than the retention window, oldest first.
func (s ConversationStore) ForCleanup(ctx context.Context, retentionDays, limit int) ([]conversation.Conversation, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)

	var models []ConversationModel
	db := s.db.Session(ctx).
		Where("status IN ?", []string{string(conversation.StatusArchived), string(conversation.StatusDeleted)}).
		Where("last_activity_at < ?", cutoff).
		Order("last_activity_at ASC")
	if limit > 0 {
		db = db.Limit(limit)
	}
	if result := db.Find(&models); result.Error != nil {
		return nil, fmt.Errorf("find cleanup candidates: %w", result.Error)
	}
	return s.attachAll(ctx, models)
}

// Statistics aggregates conversation and message counts, optionally narrowed
// by user and activity window.
func (s ConversationStore) Statistics(ctx context.Context, query conversation.StatisticsQuery) (conversation.Statistics, error) {
	stats := conversation.Statistics{ByStatus: make(map[conversation.Status]int64)}

	base := func() *gorm.DB {
		db := s.db.Session(ctx).Model(&ConversationModel{})
		if query.UserID != "" {
			db = db.Where("user_id = ?", query.UserID)
		}
		if !query.From.IsZero() {
			db = db.Where("last_activity_at >= ?", query.From)
		}
		if !query.To.IsZero() {
			db = db.Where("last_activity_at <= ?", query.To)
		}
		return db
	}

	if result := base().Count(&stats.TotalConversations); result.Error != nil {
		return conversation.Statistics{}, fmt.Errorf("count conversations: %w", result.Error)
	}

	var byStatus []struct {
		Status string
		Count  int64
	}
	if result := base().Select("status, COUNT(*) AS count").Group("status").Scan(&byStatus); result.Error != nil {
		return conversation.Statistics{}, fmt.Errorf("count by status: %w", result.Error)
	}
	for _, row := range byStatus {
		stats.ByStatus[conversation.Status(row.Status)] = row.Count
	}

	var activity struct {
		Messages   int64
		ActiveDays int64
		First      *time.Time
		Last       *time.Time
	}
	messageScope := s.db.Session(ctx).Model(&MessageModel{})
	if query.UserID != "" || !query.From.IsZero() || !query.To.IsZero() {
		messageScope = messageScope.Where(
			"conversation_id IN (?)",
			base().Select("id"),
		)
	}
	result := messageScope.
		Select("COUNT(*) AS messages, COUNT(DISTINCT DATE(timestamp)) AS active_days, MIN(timestamp) AS first, MAX(timestamp) AS last").
		Scan(&activity)
	if result.Error != nil {
		return conversation.Statistics{}, fmt.Errorf("aggregate messages: %w", result.Error)
	}

	stats.TotalMessages = activity.Messages
	stats.ActiveDays = activity.ActiveDays
	if activity.First != nil {
		stats.FirstActivityAt = *activity.First
	}
	if activity.Last != nil {
		stats.LastActivityAt = *activity.Last
	}
	if stats.TotalConversations > 0 {
		stats.AverageMessageCount = float64(stats.TotalMessages) / float64(stats.TotalConversations)
	}
	return stats, nil
}

// BulkArchive archives active conversations idle for more than olderThanDays,
// returning how many were archived. An empty userID archives across all users.
func (s ConversationStore) BulkArchive(ctx context.Context, userID string, olderThanDays int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -olderThanDays)

	session := s.db.Session(ctx).Model(&ConversationModel{}).
		Where("status = ? AND last_activity_at < ?", string(conversation.StatusActive), cutoff)
	if userID != "" {
		session = session.Where("user_id = ?", userID)
	}
	result := session.Update("status", string(conversation.StatusArchived))
	if result.Error != nil {
		return 0, fmt.Errorf("bulk archive: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (s ConversationStore) attachMessages(ctx context.Context, model ConversationModel) (conversation.Conversation, error) {
	var messageModels []MessageModel
	result := s.db.Session(ctx).
		Where("conversation_id = ?", model.ID).
		Order("timestamp ASC, id ASC").
		Find(&messageModels)
	if result.Error != nil {
		return conversation.Conversation{}, fmt.Errorf("load messages: %w", result.Error)
	}

	messages := make([]conversation.Message, len(messageModels))
	for i, mm := range messageModels {
		messages[i] = s.messageMapper.ToDomain(mm)
	}
	return s.mapper.ToDomain(model, messages), nil
}

func (s ConversationStore) attachAll(ctx context.Context, models []ConversationModel) ([]conversation.Conversation, error) {
	if len(models) == 0 {
		return nil, nil
	}

	ids := make([]string, len(models))
	for i, model := range models {
		ids[i] = model.ID
	}

	var messageModels []MessageModel
	result := s.db.Session(ctx).
		Where("conversation_id IN ?", ids).
		Order("timestamp ASC, id ASC").
		Find(&messageModels)
	if result.Error != nil {
		return nil, fmt.Errorf("load messages: %w", result.Error)
	}

	grouped := make(map[string][]conversation.Message)
	for _, mm := range messageModels {
		grouped[mm.ConversationID] = append(grouped[mm.ConversationID], s.messageMapper.ToDomain(mm))
	}

	conversations := make([]conversation.Conversation, len(models))
	for i, model := range models {
		conversations[i] = s.mapper.ToDomain(model, grouped[model.ID])
	}
	return conversations, nil
}

// paginate applies offset and limit to an in-memory result set.
func paginate[T any](items []T, offset, limit int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
