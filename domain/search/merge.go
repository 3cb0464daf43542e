package search

import "sort"

// MergedScore is the union row for one document across both indexes. A
// document found by only one index keeps a zero score for the other.
type MergedScore struct {
	documentID   string
	vectorScore  float64
	lexicalScore float64
}

// DocumentID returns the document id.
func (m MergedScore) DocumentID() string { return m.documentID }

// VectorScore returns the normalized vector score.
func (m MergedScore) VectorScore() float64 { return m.vectorScore }

// LexicalScore returns the normalized lexical score.
func (m MergedScore) LexicalScore() float64 { return m.lexicalScore }

// Normalize rescales scores to [0,1] with min-max normalization. Stores
// return higher-is-better scores on their own scales; normalizing both
// lists puts them on a comparable scale before the weighted rerank.
// A single-element or constant list normalizes to 1.0.
func Normalize(results []Result) []Result {
	if len(results) == 0 {
		return nil
	}
	lo, hi := results[0].score, results[0].score
	for _, r := range results[1:] {
		if r.score < lo {
			lo = r.score
		}
		if r.score > hi {
			hi = r.score
		}
	}
	out := make([]Result, len(results))
	span := hi - lo
	for i, r := range results {
		if span == 0 {
			out[i] = Result{documentID: r.documentID, score: 1.0}
			continue
		}
		out[i] = Result{documentID: r.documentID, score: (r.score - lo) / span}
	}
	return out
}

// Merge normalizes both result lists and unions them by document id. The
// output is sorted by document id; ordering by relevance is the Ranker's
// job.
func Merge(vector, lexical []Result) []MergedScore {
	merged := make(map[string]*MergedScore, len(vector)+len(lexical))

	for _, r := range Normalize(vector) {
		merged[r.documentID] = &MergedScore{documentID: r.documentID, vectorScore: r.score}
	}
	for _, r := range Normalize(lexical) {
		if row, ok := merged[r.documentID]; ok {
			row.lexicalScore = r.score
			continue
		}
		merged[r.documentID] = &MergedScore{documentID: r.documentID, lexicalScore: r.score}
	}

	out := make([]MergedScore, 0, len(merged))
	for _, row := range merged {
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].documentID < out[j].documentID
	})
	return out
}
