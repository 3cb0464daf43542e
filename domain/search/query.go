package search

// Type selects which index answers a query.
type Type string

// Type values.
const (
	TypeLexical Type = "lexical"
	TypeVector  Type = "vector"
	TypeHybrid  Type = "hybrid"
)

// Query is one retrieval request against the hybrid index.
type Query struct {
	text       string
	searchType Type
	filters    Filters
	topK       int
}

// NewQuery creates a Query.
func NewQuery(text string, searchType Type, filters Filters, topK int) Query {
	return Query{
		text:       text,
		searchType: searchType,
		filters:    filters,
		topK:       topK,
	}
}

// Text returns the query text.
func (q Query) Text() string { return q.text }

// SearchType returns which index the query targets.
func (q Query) SearchType() Type { return q.searchType }

// Filters returns the query filters.
func (q Query) Filters() Filters { return q.filters }

// TopK returns how many results to return.
func (q Query) TopK() int { return q.topK }

// Result is a scored index hit. The score scale depends on which store
// produced it; scores are normalized during merging.
type Result struct {
	documentID string
	score      float64
}

// NewResult creates a Result.
func NewResult(documentID string, score float64) Result {
	return Result{documentID: documentID, score: score}
}

// DocumentID returns the matched document id.
func (r Result) DocumentID() string { return r.documentID }

// Score returns the raw store score.
func (r Result) Score() float64 { return r.score }
