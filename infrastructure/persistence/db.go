// Package persistence provides database storage implementations.
package persistence

import (
	"fmt"
	"strings"

	"github.com/codelore/codelore/internal/database"
	"gorm.io/gorm"
)

// AutoMigrate runs GORM auto migration for all models. Driver-specific
// structures (the FTS5 and tsvector lexical tables, the pgvector table) are
// created by their stores, not here.
func AutoMigrate(db database.Database) error {
	return db.GORM().AutoMigrate(allModels()...)
}

// allModels returns every GORM model that AutoMigrate manages.
func allModels() []interface{} {
	return []interface{}{
		&RepositoryModel{},
		&BranchModel{},
		&CommitModel{},
		&KnowledgeGraphModel{},
		&CodeEntityModel{},
		&CodeRelationshipModel{},
		&ArchitecturalPatternModel{},
		&DocumentationModel{},
		&SectionModel{},
		&ConversationModel{},
		&MessageModel{},
		&SearchDocumentModel{},
		&EmbeddingModel{},
		&TaskModel{},
		&TaskStatusModel{},
	}
}

// ValidateSchema verifies every GORM model field has a corresponding column
// in the database. Returns an error listing any missing columns.
func ValidateSchema(db database.Database) error {
	gdb := db.GORM()
	migrator := gdb.Migrator()

	var missing []string
	for _, model := range allModels() {
		stmt := &gorm.Statement{DB: gdb}
		if err := stmt.Parse(model); err != nil {
			return fmt.Errorf("parse model schema: %w", err)
		}

		columnTypes, err := migrator.ColumnTypes(model)
		if err != nil {
			return fmt.Errorf("get column types for %s: %w", stmt.Table, err)
		}

		actual := make(map[string]bool, len(columnTypes))
		for _, ct := range columnTypes {
			actual[ct.Name()] = true
		}

		for _, field := range stmt.Schema.Fields {
			if field.DBName == "" || field.DBName == "-" {
				continue
			}
			if !actual[field.DBName] {
				missing = append(missing, stmt.Table+"."+field.DBName)
			}
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("schema validation failed — missing columns: %s", strings.Join(missing, ", "))
	}
	return nil
}
