package persistence

import (
	"encoding/json"
	"time"
)

// RepositoryModel represents an ingested repository in the database.
type RepositoryModel struct {
	ID              int64           `gorm:"column:id;primaryKey;autoIncrement"`
	Owner           string          `gorm:"column:owner;index;size:255"`
	Name            string          `gorm:"column:name;index;size:255"`
	FullName        string          `gorm:"column:full_name;uniqueIndex;size:512"`
	URL             string          `gorm:"column:url;size:1024"`
	CloneURL        string          `gorm:"column:clone_url;size:1024"`
	Description     string          `gorm:"column:description;type:text"`
	DefaultBranch   string          `gorm:"column:default_branch;size:255"`
	PrimaryLanguage string          `gorm:"column:primary_language;size:64"`
	Private         bool            `gorm:"column:private;default:false"`
	Fork            bool            `gorm:"column:fork;default:false"`
	Archived        bool            `gorm:"column:archived;default:false"`
	RemoteCreatedAt *time.Time      `gorm:"column:remote_created_at"`
	RemoteUpdatedAt *time.Time      `gorm:"column:remote_updated_at"`
	LastPushedAt    *time.Time      `gorm:"column:last_pushed_at"`
	Status          string          `gorm:"column:status;index;size:32"`
	LastError       string          `gorm:"column:last_error;type:text"`
	FileCount       int             `gorm:"column:file_count;default:0"`
	LineCount       int             `gorm:"column:line_count;default:0"`
	Languages       json.RawMessage `gorm:"column:languages;type:json"`
	InventoryDigest string          `gorm:"column:inventory_digest;size:64"`
	LastIndexedAt   *time.Time      `gorm:"column:last_indexed_at"`
	CreatedAt       time.Time       `gorm:"column:created_at"`
	UpdatedAt       time.Time       `gorm:"column:updated_at"`
}

// TableName returns the table name.
func (RepositoryModel) TableName() string {
	return "repositories"
}

// BranchModel represents a repository branch in the database.
type BranchModel struct {
	ID            int64     `gorm:"column:id;primaryKey;autoIncrement"`
	RepositoryID  int64     `gorm:"column:repository_id;index;uniqueIndex:idx_branches_repo_name"`
	Name          string    `gorm:"column:name;size:255;uniqueIndex:idx_branches_repo_name"`
	IsDefault     bool      `gorm:"column:is_default;default:false"`
	LastCommitSHA string    `gorm:"column:last_commit_sha;size:64"`
	CreatedAt     time.Time `gorm:"column:created_at"`
}

// TableName returns the table name.
func (BranchModel) TableName() string {
	return "branches"
}

// CommitModel represents a repository commit in the database.
type CommitModel struct {
	ID           int64     `gorm:"column:id;primaryKey;autoIncrement"`
	RepositoryID int64     `gorm:"column:repository_id;index;uniqueIndex:idx_commits_repo_sha"`
	SHA          string    `gorm:"column:sha;size:64;uniqueIndex:idx_commits_repo_sha"`
	Message      string    `gorm:"column:message;type:text"`
	Author       string    `gorm:"column:author;index;size:255"`
	AuthoredAt   time.Time `gorm:"column:authored_at;index"`
	CreatedAt    time.Time `gorm:"column:created_at"`
}

// TableName returns the table name.
func (CommitModel) TableName() string {
	return "commits"
}

// KnowledgeGraphModel represents a knowledge graph build in the database.
type KnowledgeGraphModel struct {
	ID                int64           `gorm:"column:id;primaryKey;autoIncrement"`
	RepositoryIDs     json.RawMessage `gorm:"column:repository_ids;type:json"`
	Status            string          `gorm:"column:status;index;size:32"`
	EntityCount       int64           `gorm:"column:entity_count;default:0"`
	RelationshipCount int64           `gorm:"column:relationship_count;default:0"`
	PatternCount      int64           `gorm:"column:pattern_count;default:0"`
	BuiltAt           *time.Time      `gorm:"column:built_at"`
	BuildDurationMS   int64           `gorm:"column:build_duration_ms;default:0"`
	Metadata          json.RawMessage `gorm:"column:metadata;type:json"`
	CreatedAt         time.Time       `gorm:"column:created_at"`
	UpdatedAt         time.Time       `gorm:"column:updated_at"`
}

// TableName returns the table name.
func (KnowledgeGraphModel) TableName() string {
	return "knowledge_graphs"
}

// CodeEntityModel represents an extracted code entity in the database.
// Entities are keyed by their stable content-derived id so rebuilds are
// idempotent; removal is a tombstone, not a row delete, so relationships
// pointing at a stale entity stay resolvable until the next rebuild.
type CodeEntityModel struct {
	EntityID      string          `gorm:"column:entity_id;primaryKey;size:256"`
	RepositoryID  int64           `gorm:"column:repository_id;index"`
	Name          string          `gorm:"column:name;index;size:512"`
	QualifiedName string          `gorm:"column:qualified_name;size:1024"`
	Kind          string          `gorm:"column:kind;index;size:32"`
	FilePath      string          `gorm:"column:file_path;index;size:1024"`
	Language      string          `gorm:"column:language;index;size:64"`
	StartLine     int             `gorm:"column:start_line;default:0"`
	EndLine       int             `gorm:"column:end_line;default:0"`
	Content       string          `gorm:"column:content;type:text"`
	Vector        json.RawMessage `gorm:"column:vector;type:json"`
	Complexity    int             `gorm:"column:complexity;default:0"`
	Attributes    json.RawMessage `gorm:"column:attributes;type:json"`
	Metadata      json.RawMessage `gorm:"column:metadata;type:json"`
	Deleted       bool            `gorm:"column:deleted;index;default:false"`
	CreatedAt     time.Time       `gorm:"column:created_at"`
	UpdatedAt     time.Time       `gorm:"column:updated_at"`
}

// TableName returns the table name.
func (CodeEntityModel) TableName() string {
	return "code_entities"
}

// CodeRelationshipModel represents a typed edge between code entities.
type CodeRelationshipModel struct {
	ID         int64           `gorm:"column:id;primaryKey;autoIncrement"`
	SourceID   string          `gorm:"column:source_id;index;size:256;uniqueIndex:idx_relationships_edge"`
	TargetID   string          `gorm:"column:target_id;index;size:256;uniqueIndex:idx_relationships_edge"`
	Type       string          `gorm:"column:type;size:64;uniqueIndex:idx_relationships_edge"`
	Weight     float64         `gorm:"column:weight;default:0"`
	Confidence float64         `gorm:"column:confidence;default:0"`
	SourceRefs json.RawMessage `gorm:"column:source_refs;type:json"`
	Properties json.RawMessage `gorm:"column:properties;type:json"`
	DetectedAt time.Time       `gorm:"column:detected_at"`
	CreatedAt  time.Time       `gorm:"column:created_at"`
	UpdatedAt  time.Time       `gorm:"column:updated_at"`
}

// TableName returns the table name.
func (CodeRelationshipModel) TableName() string {
	return "code_relationships"
}

// ArchitecturalPatternModel represents a detected architectural pattern.
type ArchitecturalPatternModel struct {
	PatternID       string          `gorm:"column:pattern_id;primaryKey;size:256"`
	RepositoryID    int64           `gorm:"column:repository_id;index"`
	Name            string          `gorm:"column:name;size:255"`
	Category        string          `gorm:"column:category;index;size:64"`
	Confidence      float64         `gorm:"column:confidence;default:0"`
	Participants    json.RawMessage `gorm:"column:participants;type:json"`
	Characteristics json.RawMessage `gorm:"column:characteristics;type:json"`
	Violations      json.RawMessage `gorm:"column:violations;type:json"`
	CreatedAt       time.Time       `gorm:"column:created_at"`
	UpdatedAt       time.Time       `gorm:"column:updated_at"`
}

// TableName returns the table name.
func (ArchitecturalPatternModel) TableName() string {
	return "architectural_patterns"
}

// DocumentationModel represents generated documentation in the database.
type DocumentationModel struct {
	ID           int64           `gorm:"column:id;primaryKey;autoIncrement"`
	RepositoryID int64           `gorm:"column:repository_id;uniqueIndex"`
	Title        string          `gorm:"column:title;size:512"`
	Status       string          `gorm:"column:status;index;size:32"`
	Version      string          `gorm:"column:version;size:32"`
	Metadata     json.RawMessage `gorm:"column:metadata;type:json"`
	SectionCount int             `gorm:"column:section_count;default:0"`
	WordCount    int             `gorm:"column:word_count;default:0"`
	QualityScore float64         `gorm:"column:quality_score;default:0"`
	TokensUsed   int64           `gorm:"column:tokens_used;default:0"`
	GeneratedAt  *time.Time      `gorm:"column:generated_at"`
	DurationMS   int64           `gorm:"column:duration_ms;default:0"`
	ErrorMessage string          `gorm:"column:error_message;type:text"`
	CreatedAt    time.Time       `gorm:"column:created_at"`
	UpdatedAt    time.Time       `gorm:"column:updated_at"`
}

// TableName returns the table name.
func (DocumentationModel) TableName() string {
	return "documentations"
}

// SectionModel represents a documentation section in the database.
type SectionModel struct {
	ID              int64           `gorm:"column:id;primaryKey;autoIncrement"`
	DocumentationID int64           `gorm:"column:documentation_id;index"`
	Type            string          `gorm:"column:type;index;size:64"`
	Title           string          `gorm:"column:title;size:512"`
	Content         string          `gorm:"column:content;type:text"`
	SortOrder       int             `gorm:"column:sort_order;default:0"`
	CodeReferences  json.RawMessage `gorm:"column:code_references;type:json"`
	Tags            json.RawMessage `gorm:"column:tags;type:json"`
	CreatedAt       time.Time       `gorm:"column:created_at"`
	LastModifiedAt  time.Time       `gorm:"column:last_modified_at"`
}

// TableName returns the table name.
func (SectionModel) TableName() string {
	return "documentation_sections"
}

// ConversationModel represents a conversation in the database.
type ConversationModel struct {
	ID             string          `gorm:"column:id;primaryKey;size:64"`
	UserID         string          `gorm:"column:user_id;index;size:255"`
	Title          string          `gorm:"column:title;size:512"`
	Status         string          `gorm:"column:status;index;size:32"`
	RepositoryIDs  json.RawMessage `gorm:"column:repository_ids;type:json"`
	Preferences    json.RawMessage `gorm:"column:preferences;type:json"`
	Domain         string          `gorm:"column:domain;size:255"`
	IntentHint     string          `gorm:"column:intent_hint;size:255"`
	Metadata       json.RawMessage `gorm:"column:metadata;type:json"`
	CreatedAt      time.Time       `gorm:"column:created_at"`
	LastActivityAt time.Time       `gorm:"column:last_activity_at;index"`
}

// TableName returns the table name.
func (ConversationModel) TableName() string {
	return "conversations"
}

// MessageModel represents a conversation message in the database.
type MessageModel struct {
	ID              string          `gorm:"column:id;primaryKey;size:64"`
	ConversationID  string          `gorm:"column:conversation_id;index;size:64"`
	Type            string          `gorm:"column:type;size:32"`
	Content         string          `gorm:"column:content;type:text"`
	Timestamp       time.Time       `gorm:"column:timestamp;index"`
	Attachments     json.RawMessage `gorm:"column:attachments;type:json"`
	ParentMessageID string          `gorm:"column:parent_message_id;size:64"`
	Edited          bool            `gorm:"column:edited;default:false"`
	Metadata        json.RawMessage `gorm:"column:metadata;type:json"`
	CreatedAt       time.Time       `gorm:"column:created_at"`
}

// TableName returns the table name.
func (MessageModel) TableName() string {
	return "conversation_messages"
}

// SearchDocumentModel represents an indexed document payload so search hits
// resolve back to full documents.
type SearchDocumentModel struct {
	ID           string          `gorm:"column:id;primaryKey;size:255"`
	RepositoryID int64           `gorm:"column:repository_id;index"`
	Kind         string          `gorm:"column:kind;index;size:32"`
	Title        string          `gorm:"column:title;size:512"`
	Path         string          `gorm:"column:path;size:1024"`
	Language     string          `gorm:"column:language;size:64"`
	SectionType  string          `gorm:"column:section_type;size:64"`
	StartLine    int             `gorm:"column:start_line;default:0"`
	EndLine      int             `gorm:"column:end_line;default:0"`
	Content      string          `gorm:"column:content;type:text"`
	Tags         json.RawMessage `gorm:"column:tags;type:json"`
	CreatedAt    time.Time       `gorm:"column:created_at"`
	LastModified time.Time       `gorm:"column:last_modified"`
}

// TableName returns the table name.
func (SearchDocumentModel) TableName() string {
	return "search_documents"
}

// EmbeddingModel represents a stored document embedding. Vectors are kept as
// JSON so the same schema works on SQLite and PostgreSQL; similarity is
// computed in Go.
type EmbeddingModel struct {
	ID           int64           `gorm:"column:id;primaryKey;autoIncrement"`
	DocumentID   string          `gorm:"column:document_id;uniqueIndex;size:255"`
	RepositoryID int64           `gorm:"column:repository_id;index"`
	Kind         string          `gorm:"column:kind;index;size:32"`
	Embedding    json.RawMessage `gorm:"column:embedding;type:json"`
	CreatedAt    time.Time       `gorm:"column:created_at"`
	UpdatedAt    time.Time       `gorm:"column:updated_at"`
}

// TableName returns the table name.
func (EmbeddingModel) TableName() string {
	return "embeddings"
}

// TaskModel represents a queued task in the database.
type TaskModel struct {
	ID        int64           `gorm:"column:id;primaryKey;autoIncrement"`
	DedupKey  string          `gorm:"column:dedup_key;type:varchar(255);uniqueIndex;not null"`
	Type      string          `gorm:"column:type;type:varchar(255);index;not null"`
	Payload   json.RawMessage `gorm:"column:payload;type:json"`
	Priority  int             `gorm:"column:priority;not null"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName returns the table name.
func (TaskModel) TableName() string {
	return "tasks"
}

// TaskStatusModel represents task progress reporting in the database.
type TaskStatusModel struct {
	ID            string    `gorm:"column:id;type:varchar(255);primaryKey;not null"`
	CreatedAt     time.Time `gorm:"column:created_at;not null"`
	UpdatedAt     time.Time `gorm:"column:updated_at;not null"`
	Operation     string    `gorm:"column:operation;type:varchar(255);index;not null"`
	TrackableID   *int64    `gorm:"column:trackable_id;index"`
	TrackableType *string   `gorm:"column:trackable_type;type:varchar(255);index"`
	ParentID      *string   `gorm:"column:parent;type:varchar(255);index"`
	Message       string    `gorm:"column:message;type:text;default:''"`
	State         string    `gorm:"column:state;type:varchar(255);default:''"`
	Error         string    `gorm:"column:error;type:text;default:''"`
	Total         int       `gorm:"column:total;default:0"`
	Current       int       `gorm:"column:current;default:0"`
}

// TableName returns the table name.
func (TaskStatusModel) TableName() string {
	return "task_status"
}
