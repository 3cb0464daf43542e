package search

import "github.com/codelore/codelore/domain/repo"

// WithDocumentID filters by a single document id.
func WithDocumentID(id string) repo.Option {
	return repo.WithCondition("document_id", id)
}

// WithDocumentIDs filters by multiple document ids.
func WithDocumentIDs(ids []string) repo.Option {
	return repo.WithConditionIn("document_id", ids)
}

// WithQuery passes query text through options.
func WithQuery(query string) repo.Option {
	return repo.WithParam("search_query", query)
}

// QueryFrom extracts query text from a built query.
func QueryFrom(q repo.Query) (string, bool) {
	v, ok := q.Param("search_query")
	if !ok {
		return "", false
	}
	text, ok := v.(string)
	return text, ok
}

// WithEmbedding passes a pre-computed embedding vector through options.
func WithEmbedding(embedding []float64) repo.Option {
	return repo.WithParam("embedding", embedding)
}

// EmbeddingFrom extracts the embedding vector from a built query.
func EmbeddingFrom(q repo.Query) ([]float64, bool) {
	v, ok := q.Param("embedding")
	if !ok {
		return nil, false
	}
	emb, ok := v.([]float64)
	return emb, ok
}

// WithFilters passes search filters through options.
func WithFilters(filters Filters) repo.Option {
	return repo.WithParam("search_filters", filters)
}

// FiltersFrom extracts search filters from a built query.
func FiltersFrom(q repo.Query) (Filters, bool) {
	v, ok := q.Param("search_filters")
	if !ok {
		return Filters{}, false
	}
	f, ok := v.(Filters)
	return f, ok
}

// WithTopK passes the result count limit through options.
func WithTopK(k int) repo.Option {
	return repo.WithLimit(k)
}

// DocumentIDsFrom extracts document ids from conditions on a built query.
func DocumentIDsFrom(q repo.Query) []string {
	for _, cond := range q.Conditions() {
		if cond.Field() != "document_id" {
			continue
		}
		if cond.In() {
			if ids, ok := cond.Value().([]string); ok {
				return ids
			}
			continue
		}
		if id, ok := cond.Value().(string); ok {
			return []string{id}
		}
	}
	return nil
}
