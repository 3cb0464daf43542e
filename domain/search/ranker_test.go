package search

import (
	"math"
	"testing"
)

func mustDoc(t *testing.T, id string, kind DocumentKind, sectionType string) Document {
	t.Helper()
	d, err := NewDocument(id, 1, kind, "content for "+id)
	if err != nil {
		t.Fatal(err)
	}
	if sectionType != "" {
		d = d.WithSectionType(sectionType)
	}
	return d
}

func TestRanker_WeightedSum(t *testing.T) {
	r := NewRanker()
	doc := mustDoc(t, "chunk-1", KindCodeChunk, "")

	ranked := r.Rank(IntentFindImplementation, []Candidate{
		NewCandidate(doc, 0.8, 0.5),
	})
	if len(ranked) != 1 {
		t.Fatalf("ranked = %d results, want 1", len(ranked))
	}

	// 0.6*0.8 + 0.3*0.5 + 0.1*1.0 for a code chunk under FindImplementation.
	want := 0.6*0.8 + 0.3*0.5 + 0.1*1.0
	if got := ranked[0].RelevanceScore(); math.Abs(got-want) > 1e-9 {
		t.Fatalf("relevance = %v, want %v", got, want)
	}
}

func TestRanker_IntentChangesOrder(t *testing.T) {
	r := NewRanker()
	chunk := mustDoc(t, "chunk-1", KindCodeChunk, "")
	overview := mustDoc(t, "doc-1", KindDocSection, "overview")

	candidates := []Candidate{
		NewCandidate(chunk, 0.7, 0.6),
		NewCandidate(overview, 0.7, 0.6),
	}

	impl := r.Rank(IntentFindImplementation, candidates)
	if impl[0].Document().ID() != "chunk-1" {
		t.Fatalf("FindImplementation top = %s, want chunk-1", impl[0].Document().ID())
	}

	explain := r.Rank(IntentExplainConcept, candidates)
	if explain[0].Document().ID() != "doc-1" {
		t.Fatalf("ExplainConcept top = %s, want doc-1 (overview section)", explain[0].Document().ID())
	}
}

func TestRanker_TieBreakByDocumentID(t *testing.T) {
	r := NewRanker()
	a := mustDoc(t, "aaa", KindCodeChunk, "")
	b := mustDoc(t, "bbb", KindCodeChunk, "")

	ranked := r.Rank(IntentCodeReview, []Candidate{
		NewCandidate(b, 0.5, 0.5),
		NewCandidate(a, 0.5, 0.5),
	})
	if ranked[0].Document().ID() != "aaa" {
		t.Fatalf("tie-break order = [%s %s], want aaa first", ranked[0].Document().ID(), ranked[1].Document().ID())
	}
}

func TestRanker_RankTopK(t *testing.T) {
	r := NewRanker()
	var candidates []Candidate
	for _, id := range []string{"a", "b", "c", "d"} {
		candidates = append(candidates, NewCandidate(mustDoc(t, id, KindCodeChunk, ""), 0.5, 0.5))
	}

	if got := r.RankTopK(IntentCodeReview, candidates, 2); len(got) != 2 {
		t.Fatalf("top-2 = %d results", len(got))
	}
	if got := r.RankTopK(IntentCodeReview, candidates, 0); len(got) != 4 {
		t.Fatalf("k=0 should return all, got %d", len(got))
	}
	if got := r.RankTopK(IntentCodeReview, candidates, 10); len(got) != 4 {
		t.Fatalf("k beyond len should return all, got %d", len(got))
	}
}

func TestTypeBoost_SectionTableOverridesKind(t *testing.T) {
	troubleshooting := mustDoc(t, "d1", KindDocSection, "troubleshooting")
	other := mustDoc(t, "d2", KindDocSection, "license")

	if got := TypeBoost(IntentTroubleshoot, troubleshooting); got != 1.0 {
		t.Fatalf("troubleshooting section boost = %v, want 1.0", got)
	}
	// Unlisted section types fall back to the kind-level boost.
	if got := TypeBoost(IntentTroubleshoot, other); got != 0.3 {
		t.Fatalf("unlisted section boost = %v, want kind fallback 0.3", got)
	}
}

func TestTypeBoost_EveryIntentCovered(t *testing.T) {
	doc := mustDoc(t, "d1", KindCodeChunk, "")
	for _, intent := range Intents() {
		if boost := TypeBoost(intent, doc); boost < 0 || boost > 1 {
			t.Fatalf("boost for %s out of range: %v", intent, boost)
		}
	}
}

func TestNormalize(t *testing.T) {
	in := []Result{
		NewResult("a", 10),
		NewResult("b", 20),
		NewResult("c", 15),
	}
	out := Normalize(in)
	if out[0].Score() != 0 || out[1].Score() != 1 || out[2].Score() != 0.5 {
		t.Fatalf("normalized = [%v %v %v], want [0 1 0.5]", out[0].Score(), out[1].Score(), out[2].Score())
	}

	constant := Normalize([]Result{NewResult("a", 5), NewResult("b", 5)})
	if constant[0].Score() != 1 || constant[1].Score() != 1 {
		t.Fatal("constant list should normalize to 1.0")
	}

	if Normalize(nil) != nil {
		t.Fatal("empty input should return nil")
	}
}

func TestMerge_UnionWithZeroFill(t *testing.T) {
	vector := []Result{
		NewResult("shared", 0.9),
		NewResult("vec-only", 0.3),
	}
	lexical := []Result{
		NewResult("shared", -2.0),
		NewResult("lex-only", -8.0),
	}

	merged := Merge(vector, lexical)
	if len(merged) != 3 {
		t.Fatalf("merged = %d rows, want 3", len(merged))
	}

	byID := map[string]MergedScore{}
	for _, m := range merged {
		byID[m.DocumentID()] = m
	}

	if byID["shared"].VectorScore() != 1.0 || byID["shared"].LexicalScore() != 1.0 {
		t.Fatalf("shared scores = (%v, %v), want (1, 1)", byID["shared"].VectorScore(), byID["shared"].LexicalScore())
	}
	if byID["vec-only"].LexicalScore() != 0 {
		t.Fatal("vector-only document should have zero lexical score")
	}
	if byID["lex-only"].VectorScore() != 0 {
		t.Fatal("lexical-only document should have zero vector score")
	}

	// Output order is deterministic.
	if merged[0].DocumentID() != "lex-only" || merged[2].DocumentID() != "vec-only" {
		t.Fatalf("order = [%s %s %s], want sorted by id", merged[0].DocumentID(), merged[1].DocumentID(), merged[2].DocumentID())
	}
}
