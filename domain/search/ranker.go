package search

import "sort"

// Default rerank weights. Vector similarity dominates, lexical match
// refines, and the intent-dependent type boost breaks near-ties.
const (
	DefaultVectorWeight  = 0.6
	DefaultLexicalWeight = 0.3
	DefaultBoostWeight   = 0.1
)

// Candidate is a document with its normalized per-index scores, ready for
// reranking.
type Candidate struct {
	document     Document
	vectorScore  float64
	lexicalScore float64
}

// NewCandidate creates a Candidate.
func NewCandidate(document Document, vectorScore, lexicalScore float64) Candidate {
	return Candidate{
		document:     document,
		vectorScore:  vectorScore,
		lexicalScore: lexicalScore,
	}
}

// Document returns the candidate document.
func (c Candidate) Document() Document { return c.document }

// VectorScore returns the normalized vector similarity.
func (c Candidate) VectorScore() float64 { return c.vectorScore }

// LexicalScore returns the normalized lexical match score.
func (c Candidate) LexicalScore() float64 { return c.lexicalScore }

// RankedResult is a candidate with its final relevance score.
type RankedResult struct {
	document       Document
	relevanceScore float64
	vectorScore    float64
	lexicalScore   float64
	typeBoost      float64
}

// Document returns the ranked document.
func (r RankedResult) Document() Document { return r.document }

// RelevanceScore returns the combined rerank score.
func (r RankedResult) RelevanceScore() float64 { return r.relevanceScore }

// VectorScore returns the vector component.
func (r RankedResult) VectorScore() float64 { return r.vectorScore }

// LexicalScore returns the lexical component.
func (r RankedResult) LexicalScore() float64 { return r.lexicalScore }

// TypeBoost returns the intent-dependent boost component.
func (r RankedResult) TypeBoost() float64 { return r.typeBoost }

// Ranker reranks merged candidates with a weighted sum of vector score,
// lexical score, and an intent-dependent type boost.
type Ranker struct {
	vectorWeight  float64
	lexicalWeight float64
	boostWeight   float64
}

// NewRanker creates a Ranker with the default weights.
func NewRanker() Ranker {
	return Ranker{
		vectorWeight:  DefaultVectorWeight,
		lexicalWeight: DefaultLexicalWeight,
		boostWeight:   DefaultBoostWeight,
	}
}

// NewRankerWithWeights creates a Ranker with custom weights. Non-positive
// weight sets fall back to the defaults.
func NewRankerWithWeights(vector, lexical, boost float64) Ranker {
	if vector <= 0 && lexical <= 0 && boost <= 0 {
		return NewRanker()
	}
	return Ranker{
		vectorWeight:  vector,
		lexicalWeight: lexical,
		boostWeight:   boost,
	}
}

// Rank scores every candidate for the intent and returns them sorted by
// relevance, ties broken by document id for stable output.
func (r Ranker) Rank(intent Intent, candidates []Candidate) []RankedResult {
	results := make([]RankedResult, 0, len(candidates))
	for _, c := range candidates {
		boost := TypeBoost(intent, c.document)
		results = append(results, RankedResult{
			document:     c.document,
			vectorScore:  c.vectorScore,
			lexicalScore: c.lexicalScore,
			typeBoost:    boost,
			relevanceScore: r.vectorWeight*c.vectorScore +
				r.lexicalWeight*c.lexicalScore +
				r.boostWeight*boost,
		})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].relevanceScore != results[j].relevanceScore {
			return results[i].relevanceScore > results[j].relevanceScore
		}
		return results[i].document.ID() < results[j].document.ID()
	})
	return results
}

// RankTopK ranks candidates and returns at most k results.
func (r Ranker) RankTopK(intent Intent, candidates []Candidate, k int) []RankedResult {
	results := r.Rank(intent, candidates)
	if k <= 0 || k >= len(results) {
		return results
	}
	return results[:k]
}

// boostTable maps each intent to boosts per documentation section type.
// Section types not listed fall back to the kind-level boost.
var boostTable = map[Intent]map[string]float64{
	IntentExplainConcept: {
		"overview":        1.0,
		"getting_started": 0.7,
		"usage":           0.6,
		"architecture":    0.5,
	},
	IntentFindImplementation: {
		"api_reference": 0.6,
		"examples":      0.5,
	},
	IntentCompareApproaches: {
		"architecture": 0.8,
		"overview":     0.6,
		"usage":        0.5,
	},
	IntentTroubleshoot: {
		"troubleshooting": 1.0,
		"configuration":   0.6,
		"usage":           0.5,
	},
	IntentProvideExample: {
		"examples":        1.0,
		"usage":           0.7,
		"getting_started": 0.6,
	},
	IntentArchitecturalQuery: {
		"architecture": 1.0,
		"overview":     0.7,
	},
	IntentCodeReview: {
		"contributing": 0.5,
	},
	IntentDocumentation: {
		"overview":      1.0,
		"usage":         0.9,
		"api_reference": 0.8,
	},
	IntentTesting: {
		"testing": 1.0,
	},
}

// kindBoost maps each intent to a base boost per document family.
var kindBoost = map[Intent]map[DocumentKind]float64{
	IntentExplainConcept:     {KindDocSection: 0.6, KindCodeChunk: 0.2, KindMessage: 0.1},
	IntentFindImplementation: {KindCodeChunk: 1.0, KindDocSection: 0.2, KindMessage: 0.1},
	IntentCompareApproaches:  {KindDocSection: 0.5, KindCodeChunk: 0.4, KindMessage: 0.2},
	IntentTroubleshoot:       {KindCodeChunk: 0.5, KindDocSection: 0.3, KindMessage: 0.6},
	IntentProvideExample:     {KindCodeChunk: 0.6, KindDocSection: 0.4, KindMessage: 0.1},
	IntentArchitecturalQuery: {KindDocSection: 0.5, KindCodeChunk: 0.3, KindMessage: 0.1},
	IntentCodeReview:         {KindCodeChunk: 1.0, KindDocSection: 0.2, KindMessage: 0.2},
	IntentDocumentation:      {KindDocSection: 0.8, KindCodeChunk: 0.2, KindMessage: 0.1},
	IntentTesting:            {KindCodeChunk: 0.6, KindDocSection: 0.4, KindMessage: 0.2},
}

// TypeBoost returns the boost in [0,1] a document receives for an intent.
// Documentation sections use the per-section table when the section type is
// listed; everything else uses the kind-level boost.
func TypeBoost(intent Intent, d Document) float64 {
	if d.Kind() == KindDocSection {
		if sections, ok := boostTable[intent]; ok {
			if boost, ok := sections[d.SectionType()]; ok {
				return boost
			}
		}
	}
	if kinds, ok := kindBoost[intent]; ok {
		if boost, ok := kinds[d.Kind()]; ok {
			return boost
		}
	}
	return 0
}
