package search

import "strings"

// Intent classifies a user query. The intent selects prompt templates and
// the type boosts applied during reranking.
type Intent string

// Intent values.
const (
	IntentExplainConcept     Intent = "explain_concept"
	IntentFindImplementation Intent = "find_implementation"
	IntentCompareApproaches  Intent = "compare_approaches"
	IntentTroubleshoot       Intent = "troubleshoot"
	IntentProvideExample     Intent = "provide_example"
	IntentArchitecturalQuery Intent = "architectural_query"
	IntentCodeReview         Intent = "code_review"
	IntentDocumentation      Intent = "documentation"
	IntentTesting            Intent = "testing"
)

// FallbackIntent is used when classification fails or its confidence is
// below the configured threshold.
const FallbackIntent = IntentExplainConcept

// Intents lists every known intent.
func Intents() []Intent {
	return []Intent{
		IntentExplainConcept,
		IntentFindImplementation,
		IntentCompareApproaches,
		IntentTroubleshoot,
		IntentProvideExample,
		IntentArchitecturalQuery,
		IntentCodeReview,
		IntentDocumentation,
		IntentTesting,
	}
}

// Valid reports whether the intent is known.
func (i Intent) Valid() bool {
	switch i {
	case IntentExplainConcept, IntentFindImplementation, IntentCompareApproaches,
		IntentTroubleshoot, IntentProvideExample, IntentArchitecturalQuery,
		IntentCodeReview, IntentDocumentation, IntentTesting:
		return true
	}
	return false
}

// String returns the string representation of the intent.
func (i Intent) String() string {
	return string(i)
}

// ParseIntent normalizes a classifier label into an Intent. It tolerates
// case differences and CamelCase labels such as "FindImplementation".
func ParseIntent(label string) (Intent, bool) {
	normalized := normalizeIntentLabel(label)
	for _, intent := range Intents() {
		if normalized == string(intent) {
			return intent, true
		}
	}
	return FallbackIntent, false
}

func normalizeIntentLabel(label string) string {
	var b strings.Builder
	prev := rune(0)
	for _, r := range strings.TrimSpace(label) {
		switch {
		case r >= 'A' && r <= 'Z':
			// Word boundary only after a lowercase run, so all-caps
			// labels do not split per letter.
			if b.Len() > 0 && prev != '_' && !(prev >= 'A' && prev <= 'Z') {
				b.WriteByte('_')
			}
			b.WriteRune(r - 'A' + 'a')
		case r == ' ' || r == '-':
			if prev != '_' && b.Len() > 0 {
				b.WriteByte('_')
			}
			r = '_'
		default:
			b.WriteRune(r)
		}
		prev = r
	}
	return b.String()
}
