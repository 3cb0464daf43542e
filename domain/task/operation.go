package task

import "strings"

// Operation represents the type of task operation.
type Operation string

// Operation values for the task queue system.
const (
	OperationRoot Operation = "codelore.root"

	OperationIngest            Operation = "codelore.ingest"
	OperationConnectRepository Operation = "codelore.ingest.connect"
	OperationAnalyzeStructure  Operation = "codelore.ingest.analyze_structure"
	OperationExtractEntities   Operation = "codelore.ingest.extract_entities"
	OperationBuildGraph        Operation = "codelore.ingest.build_graph"
	OperationIndexContent      Operation = "codelore.ingest.index_content"

	OperationDocs                  Operation = "codelore.docs"
	OperationAnalyzeDocumentation  Operation = "codelore.docs.analyze"
	OperationGenerateSections      Operation = "codelore.docs.generate_sections"
	OperationEnrichSections        Operation = "codelore.docs.enrich"
	OperationIndexSections         Operation = "codelore.docs.index"
	OperationFinalizeDocumentation Operation = "codelore.docs.finalize"

	OperationRepository        Operation = "codelore.repository"
	OperationRefreshRepository Operation = "codelore.repository.refresh"
	OperationRemoveRepository  Operation = "codelore.repository.remove"

	OperationMaintenance          Operation = "codelore.maintenance"
	OperationArchiveConversations Operation = "codelore.maintenance.archive_conversations"
	OperationCleanupConversations Operation = "codelore.maintenance.cleanup_conversations"
)

// String returns the string representation of the operation.
func (o Operation) String() string {
	return string(o)
}

// IsIngestOperation returns true if this is an ingestion pipeline operation.
func (o Operation) IsIngestOperation() bool {
	return strings.HasPrefix(string(o), "codelore.ingest.")
}

// IsDocumentationOperation returns true if this is a documentation pipeline operation.
func (o Operation) IsDocumentationOperation() bool {
	return strings.HasPrefix(string(o), "codelore.docs.")
}

// IsRepositoryOperation returns true if this is a repository-level operation.
func (o Operation) IsRepositoryOperation() bool {
	return strings.HasPrefix(string(o), "codelore.repository.")
}

// IsMaintenanceOperation returns true if this is a maintenance operation.
func (o Operation) IsMaintenanceOperation() bool {
	return strings.HasPrefix(string(o), "codelore.maintenance.")
}

// PrescribedOperations provides predefined operation sequences for common workflows.
type PrescribedOperations struct {
	docs       bool
	enrichment bool
}

// NewPrescribedOperations creates a PrescribedOperations with the given settings.
// When docs is false, documentation generation is excluded from ingestion
// workflows. When enrichment is false, the LLM enrichment pass is excluded
// from documentation workflows.
func NewPrescribedOperations(docs bool, enrichment bool) PrescribedOperations {
	return PrescribedOperations{docs: docs, enrichment: enrichment}
}

// All returns every operation that appears in any prescribed workflow.
// Used at startup to validate that all required handlers are registered.
func (p PrescribedOperations) All() []Operation {
	seen := make(map[Operation]struct{})
	var all []Operation

	for _, ops := range [][]Operation{
		p.IngestRepository(),
		p.ReindexRepository(),
		p.GenerateDocumentation(),
		p.RemoveRepository(),
		p.MaintenanceSweep(),
	} {
		for _, op := range ops {
			if _, ok := seen[op]; !ok {
				seen[op] = struct{}{}
				all = append(all, op)
			}
		}
	}
	return all
}

// IngestRepository returns the full operation sequence for ingesting a new
// repository, from source connection through search indexing.
func (p PrescribedOperations) IngestRepository() []Operation {
	ops := []Operation{
		OperationConnectRepository,
		OperationAnalyzeStructure,
		OperationExtractEntities,
		OperationBuildGraph,
		OperationIndexContent,
	}
	if p.docs {
		ops = append(ops, p.GenerateDocumentation()...)
	}
	return ops
}

// ReindexRepository returns the operation sequence for re-processing an
// already connected repository after its content changed.
func (p PrescribedOperations) ReindexRepository() []Operation {
	ops := []Operation{
		OperationAnalyzeStructure,
		OperationExtractEntities,
		OperationBuildGraph,
		OperationIndexContent,
	}
	if p.docs {
		ops = append(ops, p.GenerateDocumentation()...)
	}
	return ops
}

// GenerateDocumentation returns the operation sequence for producing
// repository documentation.
func (p PrescribedOperations) GenerateDocumentation() []Operation {
	ops := []Operation{
		OperationAnalyzeDocumentation,
		OperationGenerateSections,
	}
	if p.enrichment {
		ops = append(ops, OperationEnrichSections)
	}
	ops = append(ops,
		OperationIndexSections,
		OperationFinalizeDocumentation,
	)
	return ops
}

// RemoveRepository returns the operations needed to remove a repository.
func (p PrescribedOperations) RemoveRepository() []Operation {
	return []Operation{
		OperationRemoveRepository,
	}
}

// MaintenanceSweep returns the operations for the periodic conversation
// maintenance cycle.
func (p PrescribedOperations) MaintenanceSweep() []Operation {
	return []Operation{
		OperationArchiveConversations,
		OperationCleanupConversations,
	}
}
