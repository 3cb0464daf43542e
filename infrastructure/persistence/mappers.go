package persistence

import (
	"encoding/json"
	"time"

	"github.com/codelore/codelore/domain/conversation"
	"github.com/codelore/codelore/domain/docs"
	"github.com/codelore/codelore/domain/entity"
	"github.com/codelore/codelore/domain/graph"
	"github.com/codelore/codelore/domain/repo"
	"github.com/codelore/codelore/domain/search"
	"github.com/codelore/codelore/domain/task"
)

// toJSON marshals domain-owned maps and slices. These are plain values that
// cannot fail to marshal; a nil result only occurs for nil input.
func toJSON(v any) json.RawMessage {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}

// fromJSON unmarshals into T, returning the zero value for empty or invalid
// payloads.
func fromJSON[T any](raw json.RawMessage) T {
	var out T
	if len(raw) == 0 {
		return out
	}
	_ = json.Unmarshal(raw, &out)
	return out
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	cp := t
	return &cp
}

func timeVal(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

// RepositoryMapper maps between domain Repository and persistence RepositoryModel.
type RepositoryMapper struct{}

// ToDomain converts a RepositoryModel to a domain Repository.
func (m RepositoryMapper) ToDomain(e RepositoryModel) repo.Repository {
	meta := repo.RemoteMetadata{
		Owner:           e.Owner,
		Name:            e.Name,
		Description:     e.Description,
		DefaultBranch:   e.DefaultBranch,
		PrimaryLanguage: e.PrimaryLanguage,
		Private:         e.Private,
		Fork:            e.Fork,
		Archived:        e.Archived,
		CreatedAt:       timeVal(e.RemoteCreatedAt),
		UpdatedAt:       timeVal(e.RemoteUpdatedAt),
		LastPushedAt:    timeVal(e.LastPushedAt),
	}

	stats := repo.ReconstructStatistics(
		e.FileCount,
		e.LineCount,
		fromJSON[map[string]repo.LanguageStat](e.Languages),
	)

	return repo.ReconstructRepository(
		e.ID,
		e.URL,
		e.CloneURL,
		meta,
		repo.Status(e.Status),
		stats,
		e.InventoryDigest,
		e.LastError,
		e.CreatedAt,
		e.UpdatedAt,
		timeVal(e.LastIndexedAt),
	)
}

// ToModel converts a domain Repository to a RepositoryModel.
func (m RepositoryMapper) ToModel(r repo.Repository) RepositoryModel {
	meta := r.Metadata()
	stats := r.Statistics()

	return RepositoryModel{
		ID:              r.ID(),
		Owner:           r.Owner(),
		Name:            r.Name(),
		FullName:        r.FullName(),
		URL:             r.URL(),
		CloneURL:        r.CloneURL(),
		Description:     meta.Description,
		DefaultBranch:   meta.DefaultBranch,
		PrimaryLanguage: meta.PrimaryLanguage,
		Private:         meta.Private,
		Fork:            meta.Fork,
		Archived:        meta.Archived,
		RemoteCreatedAt: timePtr(meta.CreatedAt),
		RemoteUpdatedAt: timePtr(meta.UpdatedAt),
		LastPushedAt:    timePtr(meta.LastPushedAt),
		Status:          string(r.Status()),
		LastError:       r.LastError(),
		FileCount:       stats.FileCount(),
		LineCount:       stats.LineCount(),
		Languages:       toJSON(stats.Languages()),
		InventoryDigest: r.InventoryDigest(),
		LastIndexedAt:   timePtr(r.LastIndexedAt()),
		CreatedAt:       r.CreatedAt(),
		UpdatedAt:       r.UpdatedAt(),
	}
}

// BranchMapper maps between domain Branch and persistence BranchModel.
type BranchMapper struct{}

// ToDomain converts a BranchModel to a domain Branch.
func (m BranchMapper) ToDomain(e BranchModel) repo.Branch {
	return repo.ReconstructBranch(e.ID, e.RepositoryID, e.Name, e.IsDefault, e.LastCommitSHA, e.CreatedAt)
}

// ToModel converts a domain Branch to a BranchModel.
func (m BranchMapper) ToModel(b repo.Branch) BranchModel {
	return BranchModel{
		ID:            b.ID(),
		RepositoryID:  b.RepositoryID(),
		Name:          b.Name(),
		IsDefault:     b.IsDefault(),
		LastCommitSHA: b.LastCommitSHA(),
		CreatedAt:     b.CreatedAt(),
	}
}

// CommitMapper maps between domain Commit and persistence CommitModel.
type CommitMapper struct{}

// ToDomain converts a CommitModel to a domain Commit.
func (m CommitMapper) ToDomain(e CommitModel) repo.Commit {
	return repo.ReconstructCommit(e.ID, e.RepositoryID, e.SHA, e.Message, e.Author, e.AuthoredAt)
}

// ToModel converts a domain Commit to a CommitModel.
func (m CommitMapper) ToModel(c repo.Commit) CommitModel {
	return CommitModel{
		ID:           c.ID(),
		RepositoryID: c.RepositoryID(),
		SHA:          c.SHA(),
		Message:      c.Message(),
		Author:       c.Author(),
		AuthoredAt:   c.AuthoredAt(),
	}
}

// GraphMapper maps between domain KnowledgeGraph and persistence KnowledgeGraphModel.
type GraphMapper struct{}

// ToDomain converts a KnowledgeGraphModel to a domain KnowledgeGraph.
func (m GraphMapper) ToDomain(e KnowledgeGraphModel) graph.KnowledgeGraph {
	stats := graph.Statistics{
		EntityCount:       e.EntityCount,
		RelationshipCount: e.RelationshipCount,
		PatternCount:      e.PatternCount,
		BuiltAt:           timeVal(e.BuiltAt),
		BuildDuration:     time.Duration(e.BuildDurationMS) * time.Millisecond,
	}

	return graph.ReconstructKnowledgeGraph(
		e.ID,
		fromJSON[[]int64](e.RepositoryIDs),
		graph.Status(e.Status),
		stats,
		fromJSON[map[string]string](e.Metadata),
		e.CreatedAt,
		e.UpdatedAt,
	)
}

// ToModel converts a domain KnowledgeGraph to a KnowledgeGraphModel.
func (m GraphMapper) ToModel(g graph.KnowledgeGraph) KnowledgeGraphModel {
	stats := g.Statistics()

	return KnowledgeGraphModel{
		ID:                g.ID(),
		RepositoryIDs:     toJSON(g.RepositoryIDs()),
		Status:            string(g.Status()),
		EntityCount:       stats.EntityCount,
		RelationshipCount: stats.RelationshipCount,
		PatternCount:      stats.PatternCount,
		BuiltAt:           timePtr(stats.BuiltAt),
		BuildDurationMS:   stats.BuildDuration.Milliseconds(),
		Metadata:          toJSON(g.Metadata()),
		CreatedAt:         g.CreatedAt(),
		UpdatedAt:         g.UpdatedAt(),
	}
}

// EntityMapper maps between domain CodeEntity and persistence CodeEntityModel.
type EntityMapper struct{}

// ToDomain converts a CodeEntityModel to a domain CodeEntity.
func (m EntityMapper) ToDomain(e CodeEntityModel) entity.CodeEntity {
	return entity.ReconstructCodeEntity(
		e.EntityID,
		e.RepositoryID,
		e.Name,
		e.QualifiedName,
		entity.Kind(e.Kind),
		e.FilePath,
		e.Language,
		entity.Location{StartLine: e.StartLine, EndLine: e.EndLine},
		e.Content,
		fromJSON[[]float64](e.Vector),
		e.Complexity,
		fromJSON[[]string](e.Attributes),
		fromJSON[map[string]string](e.Metadata),
	)
}

// ToModel converts a domain CodeEntity to a CodeEntityModel.
func (m EntityMapper) ToModel(e entity.CodeEntity) CodeEntityModel {
	loc := e.Location()
	return CodeEntityModel{
		EntityID:      e.EntityID(),
		RepositoryID:  e.RepositoryID(),
		Name:          e.Name(),
		QualifiedName: e.QualifiedName(),
		Kind:          string(e.Kind()),
		FilePath:      e.FilePath(),
		Language:      e.Language(),
		StartLine:     loc.StartLine,
		EndLine:       loc.EndLine,
		Content:       e.Content(),
		Vector:        toJSON(e.Vector()),
		Complexity:    e.Complexity(),
		Attributes:    toJSON(e.Attributes()),
		Metadata:      toJSON(e.Metadata()),
	}
}

// RelationshipMapper maps between domain CodeRelationship and persistence CodeRelationshipModel.
type RelationshipMapper struct{}

// ToDomain converts a CodeRelationshipModel to a domain CodeRelationship.
func (m RelationshipMapper) ToDomain(e CodeRelationshipModel) entity.CodeRelationship {
	return entity.ReconstructRelationship(
		e.SourceID,
		e.TargetID,
		entity.RelationshipType(e.Type),
		e.Weight,
		e.Confidence,
		fromJSON[[]string](e.SourceRefs),
		fromJSON[map[string]string](e.Properties),
		e.DetectedAt,
	)
}

// ToModel converts a domain CodeRelationship to a CodeRelationshipModel.
func (m RelationshipMapper) ToModel(r entity.CodeRelationship) CodeRelationshipModel {
	return CodeRelationshipModel{
		SourceID:   r.SourceID(),
		TargetID:   r.TargetID(),
		Type:       string(r.Type()),
		Weight:     r.Weight(),
		Confidence: r.Confidence(),
		SourceRefs: toJSON(r.SourceRefs()),
		Properties: toJSON(r.Properties()),
		DetectedAt: r.DetectedAt(),
	}
}

// PatternMapper maps between domain ArchitecturalPattern and persistence ArchitecturalPatternModel.
type PatternMapper struct{}

// ToDomain converts an ArchitecturalPatternModel to a domain ArchitecturalPattern.
func (m PatternMapper) ToDomain(e ArchitecturalPatternModel) entity.ArchitecturalPattern {
	return entity.ReconstructPattern(
		e.PatternID,
		e.RepositoryID,
		e.Name,
		entity.PatternCategory(e.Category),
		e.Confidence,
		fromJSON[map[string]string](e.Participants),
		fromJSON[[]string](e.Characteristics),
		fromJSON[[]string](e.Violations),
	)
}

// ToModel converts a domain ArchitecturalPattern to an ArchitecturalPatternModel.
func (m PatternMapper) ToModel(p entity.ArchitecturalPattern) ArchitecturalPatternModel {
	return ArchitecturalPatternModel{
		PatternID:       p.PatternID(),
		RepositoryID:    p.RepositoryID(),
		Name:            p.Name(),
		Category:        string(p.Category()),
		Confidence:      p.Confidence(),
		Participants:    toJSON(p.Participants()),
		Characteristics: toJSON(p.Characteristics()),
		Violations:      toJSON(p.Violations()),
	}
}

// DocumentationMapper maps between domain Documentation and persistence
// DocumentationModel. Sections travel separately; the store attaches them.
type DocumentationMapper struct{}

// ToDomain converts a DocumentationModel and its sections to a domain Documentation.
func (m DocumentationMapper) ToDomain(e DocumentationModel, sections []docs.Section) docs.Documentation {
	version, err := docs.ParseVersion(e.Version)
	if err != nil {
		version = docs.InitialVersion()
	}

	stats := docs.Statistics{
		SectionCount: e.SectionCount,
		WordCount:    e.WordCount,
		QualityScore: e.QualityScore,
		TokensUsed:   e.TokensUsed,
		GeneratedAt:  timeVal(e.GeneratedAt),
		Duration:     time.Duration(e.DurationMS) * time.Millisecond,
	}

	return docs.ReconstructDocumentation(
		e.ID,
		e.RepositoryID,
		e.Title,
		docs.Status(e.Status),
		sections,
		fromJSON[map[string]string](e.Metadata),
		version,
		stats,
		e.ErrorMessage,
		e.CreatedAt,
		e.UpdatedAt,
	)
}

// ToModel converts a domain Documentation to a DocumentationModel.
func (m DocumentationMapper) ToModel(d docs.Documentation) DocumentationModel {
	stats := d.Statistics()

	return DocumentationModel{
		ID:           d.ID(),
		RepositoryID: d.RepositoryID(),
		Title:        d.Title(),
		Status:       string(d.Status()),
		Version:      d.Version().String(),
		Metadata:     toJSON(d.Metadata()),
		SectionCount: stats.SectionCount,
		WordCount:    stats.WordCount,
		QualityScore: stats.QualityScore,
		TokensUsed:   stats.TokensUsed,
		GeneratedAt:  timePtr(stats.GeneratedAt),
		DurationMS:   stats.Duration.Milliseconds(),
		ErrorMessage: d.ErrorMessage(),
		CreatedAt:    d.CreatedAt(),
		UpdatedAt:    d.UpdatedAt(),
	}
}

// SectionMapper maps between domain Section and persistence SectionModel.
type SectionMapper struct{}

// ToDomain converts a SectionModel to a domain Section.
func (m SectionMapper) ToDomain(e SectionModel) docs.Section {
	return docs.ReconstructSection(
		e.ID,
		docs.SectionType(e.Type),
		e.Title,
		e.Content,
		e.SortOrder,
		fromJSON[[]docs.CodeReference](e.CodeReferences),
		fromJSON[[]string](e.Tags),
		e.CreatedAt,
		e.LastModifiedAt,
	)
}

// ToModel converts a domain Section to a SectionModel. The documentation id
// is assigned by the store.
func (m SectionMapper) ToModel(s docs.Section) SectionModel {
	return SectionModel{
		ID:             s.ID(),
		Type:           string(s.Type()),
		Title:          s.Title(),
		Content:        s.Content(),
		SortOrder:      s.Order(),
		CodeReferences: toJSON(s.CodeReferences()),
		Tags:           toJSON(s.Tags()),
		CreatedAt:      s.CreatedAt(),
		LastModifiedAt: s.LastModifiedAt(),
	}
}

// ConversationMapper maps between domain Conversation and persistence
// ConversationModel. Messages travel separately; the store attaches them.
type ConversationMapper struct{}

// ToDomain converts a ConversationModel and its messages to a domain Conversation.
func (m ConversationMapper) ToDomain(e ConversationModel, messages []conversation.Message) conversation.Conversation {
	convContext := conversation.Context{
		RepositoryIDs: fromJSON[[]int64](e.RepositoryIDs),
		Preferences:   fromJSON[map[string]string](e.Preferences),
		Domain:        e.Domain,
		IntentHint:    e.IntentHint,
	}

	return conversation.ReconstructConversation(
		e.ID,
		e.UserID,
		e.Title,
		conversation.Status(e.Status),
		messages,
		convContext,
		e.CreatedAt,
		e.LastActivityAt,
		fromJSON[map[string]string](e.Metadata),
	)
}

// ToModel converts a domain Conversation to a ConversationModel.
func (m ConversationMapper) ToModel(c conversation.Conversation) ConversationModel {
	convContext := c.Context()

	return ConversationModel{
		ID:             c.ID(),
		UserID:         c.UserID(),
		Title:          c.Title(),
		Status:         string(c.Status()),
		RepositoryIDs:  toJSON(convContext.RepositoryIDs),
		Preferences:    toJSON(convContext.Preferences),
		Domain:         convContext.Domain,
		IntentHint:     convContext.IntentHint,
		Metadata:       toJSON(c.Metadata()),
		CreatedAt:      c.CreatedAt(),
		LastActivityAt: c.LastActivityAt(),
	}
}

// MessageMapper maps between domain Message and persistence MessageModel.
type MessageMapper struct{}

// ToDomain converts a MessageModel to a domain Message.
func (m MessageMapper) ToDomain(e MessageModel) conversation.Message {
	return conversation.ReconstructMessage(
		e.ID,
		e.ConversationID,
		conversation.MessageType(e.Type),
		e.Content,
		e.Timestamp,
		fromJSON[[]conversation.Attachment](e.Attachments),
		e.ParentMessageID,
		e.Edited,
		fromJSON[map[string]string](e.Metadata),
	)
}

// ToModel converts a domain Message to a MessageModel.
func (m MessageMapper) ToModel(msg conversation.Message) MessageModel {
	return MessageModel{
		ID:              msg.ID(),
		ConversationID:  msg.ConversationID(),
		Type:            string(msg.Type()),
		Content:         msg.Content(),
		Timestamp:       msg.Timestamp(),
		Attachments:     toJSON(msg.Attachments()),
		ParentMessageID: msg.ParentMessageID(),
		Edited:          msg.Edited(),
		Metadata:        toJSON(msg.Metadata()),
	}
}

// SearchDocumentMapper maps between domain search Document and persistence
// SearchDocumentModel.
type SearchDocumentMapper struct{}

// ToDomain converts a SearchDocumentModel to a domain Document.
func (m SearchDocumentMapper) ToDomain(e SearchDocumentModel) search.Document {
	return search.ReconstructDocument(
		e.ID,
		e.RepositoryID,
		search.DocumentKind(e.Kind),
		e.Title,
		e.Path,
		e.Language,
		e.SectionType,
		e.StartLine,
		e.EndLine,
		e.Content,
		fromJSON[[]string](e.Tags),
		e.CreatedAt,
		e.LastModified,
	)
}

// ToModel converts a domain Document to a SearchDocumentModel.
func (m SearchDocumentMapper) ToModel(d search.Document) SearchDocumentModel {
	return SearchDocumentModel{
		ID:           d.ID(),
		RepositoryID: d.RepositoryID(),
		Kind:         string(d.Kind()),
		Title:        d.Title(),
		Path:         d.Path(),
		Language:     d.Language(),
		SectionType:  d.SectionType(),
		StartLine:    d.StartLine(),
		EndLine:      d.EndLine(),
		Content:      d.Content(),
		Tags:         toJSON(d.Tags()),
		CreatedAt:    d.CreatedAt(),
		LastModified: d.LastModified(),
	}
}

// TaskMapper maps between domain Task and persistence TaskModel.
type TaskMapper struct{}

// ToDomain converts a TaskModel to a domain Task. An unreadable payload
// degrades to an empty one rather than poisoning the queue.
func (m TaskMapper) ToDomain(e TaskModel) task.Task {
	payload := fromJSON[map[string]any](e.Payload)
	if payload == nil {
		payload = make(map[string]any)
	}

	return task.NewTaskWithID(
		e.ID,
		e.DedupKey,
		task.Operation(e.Type),
		e.Priority,
		payload,
		e.CreatedAt,
		e.UpdatedAt,
	)
}

// ToModel converts a domain Task to a TaskModel.
func (m TaskMapper) ToModel(t task.Task) TaskModel {
	return TaskModel{
		ID:        t.ID(),
		DedupKey:  t.DedupKey(),
		Type:      string(t.Operation()),
		Payload:   toJSON(t.Payload()),
		Priority:  t.Priority(),
		CreatedAt: t.CreatedAt(),
		UpdatedAt: t.UpdatedAt(),
	}
}

// TaskStatusMapper maps between domain Status and persistence TaskStatusModel.
type TaskStatusMapper struct{}

// ToDomain converts a TaskStatusModel to a domain Status.
func (m TaskStatusMapper) ToDomain(e TaskStatusModel) task.Status {
	var trackableID int64
	var trackableType task.TrackableType

	if e.TrackableID != nil {
		trackableID = *e.TrackableID
	}
	if e.TrackableType != nil {
		trackableType = task.TrackableType(*e.TrackableType)
	}

	return task.NewStatusFull(
		e.ID,
		task.ReportingState(e.State),
		task.Operation(e.Operation),
		e.Message,
		e.CreatedAt,
		e.UpdatedAt,
		e.Total,
		e.Current,
		e.Error,
		nil,
		trackableID,
		trackableType,
	)
}

// ToModel converts a domain Status to a TaskStatusModel.
func (m TaskStatusMapper) ToModel(s task.Status) TaskStatusModel {
	model := TaskStatusModel{
		ID:        s.ID(),
		CreatedAt: s.CreatedAt(),
		UpdatedAt: s.UpdatedAt(),
		Operation: string(s.Operation()),
		Message:   s.Message(),
		State:     string(s.State()),
		Error:     s.Error(),
		Total:     s.Total(),
		Current:   s.Current(),
	}

	if s.TrackableID() != 0 {
		id := s.TrackableID()
		model.TrackableID = &id
	}

	if s.TrackableType() != "" {
		t := string(s.TrackableType())
		model.TrackableType = &t
	}

	if s.Parent() != nil {
		parentID := s.Parent().ID()
		model.ParentID = &parentID
	}

	return model
}
