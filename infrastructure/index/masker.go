// Package index implements the hybrid content index: chunked file
// content, documentation sections, and conversation messages written to
// the lexical and vector stores and searched as one corpus.
package index

import "regexp"

// Placeholders substituted for masked spans. Fixed strings keep the
// index free of the original values while staying searchable.
const (
	MaskedEmail  = "[masked-email]"
	MaskedCard   = "[masked-card]"
	MaskedSSN    = "[masked-ssn]"
	MaskedAPIKey = "[masked-api-key]"
	MaskedSecret = "[masked-secret]"
)

type maskRule struct {
	pattern     *regexp.Regexp
	replacement string
}

// Masker removes personal and credential data from text before it is
// indexed. Conversation content passes through it; repository content
// does not, since code is already shared with every reader of the
// repository.
type Masker struct {
	rules []maskRule
}

// NewMasker creates a masker with the built-in rule set: emails, known
// API-key shapes, US social security numbers, payment card numbers, and
// long base64 runs that are likely encoded secrets.
func NewMasker() *Masker {
	return &Masker{rules: []maskRule{
		{regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`), MaskedEmail},

		// Key shapes go before the generic base64 rule so a recognised
		// key is labelled as one.
		{regexp.MustCompile(`\b(?:sk|pk|rk)-[A-Za-z0-9_-]{16,}`), MaskedAPIKey},
		{regexp.MustCompile(`\bgh[pousr]_[A-Za-z0-9]{30,}\b`), MaskedAPIKey},
		{regexp.MustCompile(`\bgithub_pat_[A-Za-z0-9_]{20,}\b`), MaskedAPIKey},
		{regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`), MaskedAPIKey},
		{regexp.MustCompile(`\bxox[baprs]-[A-Za-z0-9-]{10,}`), MaskedAPIKey},

		{regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`), MaskedSSN},
		{regexp.MustCompile(`\b\d{4}[ -]?\d{4}[ -]?\d{4}[ -]?\d{3,4}\b`), MaskedCard},

		{regexp.MustCompile(`\b[A-Za-z0-9+/]{40,}={0,2}`), MaskedSecret},
	}}
}

// Mask replaces every match of every rule with its placeholder.
func (m *Masker) Mask(text string) string {
	for _, rule := range m.rules {
		text = rule.pattern.ReplaceAllString(text, rule.replacement)
	}
	return text
}
