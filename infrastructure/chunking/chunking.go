// Package chunking splits file content into overlapping segments sized
// for the content index.
package chunking

import (
	"strings"
	"unicode/utf8"

	"github.com/codelore/codelore/domain/fault"
)

// Params bounds the splitter. All sizes are in bytes; OverlapPercent is
// the overlap between adjacent chunks as a percentage of MaxBytes.
type Params struct {
	MaxBytes       int
	OverlapPercent int
	MinBytes       int
}

// DefaultParams returns the defaults used for code and documentation
// content.
func DefaultParams() Params {
	return Params{
		MaxBytes:       32 * 1024,
		OverlapPercent: 10,
		MinBytes:       50,
	}
}

func (p Params) overlapBytes() int {
	return p.MaxBytes * p.OverlapPercent / 100
}

func (p Params) validate() error {
	if p.MaxBytes <= 0 {
		return fault.Validation("chunk size must be positive")
	}
	if p.OverlapPercent < 0 || p.OverlapPercent >= 100 {
		return fault.Validationf("chunk overlap %d%% must be in [0,100)", p.OverlapPercent)
	}
	return nil
}

// Chunk is one segment of the original content. Offset is a byte offset
// into the original string; StartLine and EndLine are 1-based.
type Chunk struct {
	text      string
	offset    int
	startLine int
	endLine   int
}

// Text returns the segment text.
func (c Chunk) Text() string { return c.text }

// Offset returns the byte offset of the segment in the original content.
func (c Chunk) Offset() int { return c.offset }

// StartLine returns the first source line covered by the segment.
func (c Chunk) StartLine() int { return c.startLine }

// EndLine returns the last source line covered by the segment.
func (c Chunk) EndLine() int { return c.endLine }

// line is one source line with its provenance. The text keeps its
// trailing newline except on the final unterminated line.
type line struct {
	text   string
	offset int
	number int
}

// span is a fragment of a single long line.
type span struct {
	text   string
	offset int
}

// Split cuts content into chunks of at most MaxBytes, overlapping by
// OverlapPercent of MaxBytes. Three tiers keep the cuts readable:
// whole lines accumulate first; a line longer than MaxBytes splits on
// whitespace; a single token longer than MaxBytes splits on rune
// boundaries. Segments shorter than MinBytes are dropped.
func Split(content string, p Params) ([]Chunk, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	if content == "" {
		return nil, nil
	}

	overlap := p.overlapBytes()
	var chunks []Chunk
	var acc []line
	accBytes := 0

	emit := func() {
		if accBytes == 0 {
			return
		}
		var b strings.Builder
		b.Grow(accBytes)
		for _, ln := range acc {
			b.WriteString(ln.text)
		}
		text := b.String()
		if len(text) < p.MinBytes {
			return
		}
		chunks = append(chunks, Chunk{
			text:      text,
			offset:    acc[0].offset,
			startLine: acc[0].number,
			endLine:   acc[len(acc)-1].number,
		})
	}

	for _, ln := range scanLines(content) {
		if len(ln.text) > p.MaxBytes {
			emit()
			acc, accBytes = nil, 0
			for _, sub := range splitLongLine(ln.text, p.MaxBytes, overlap) {
				if len(sub.text) < p.MinBytes {
					continue
				}
				chunks = append(chunks, Chunk{
					text:      sub.text,
					offset:    ln.offset + sub.offset,
					startLine: ln.number,
					endLine:   ln.number,
				})
			}
			continue
		}

		if accBytes+len(ln.text) > p.MaxBytes && accBytes > 0 {
			emit()
			acc, accBytes = carryOverlap(acc, overlap)
		}
		acc = append(acc, ln)
		accBytes += len(ln.text)
	}
	emit()
	return chunks, nil
}

// scanLines cuts content into lines carrying their byte offset and
// 1-based number. Trailing newlines stay attached so that joining lines
// reproduces the original bytes.
func scanLines(content string) []line {
	var out []line
	offset, number := 0, 1
	for len(content) > 0 {
		idx := strings.IndexByte(content, '\n')
		var text string
		if idx < 0 {
			text, content = content, ""
		} else {
			text, content = content[:idx+1], content[idx+1:]
		}
		out = append(out, line{text: text, offset: offset, number: number})
		offset += len(text)
		number++
	}
	return out
}

// carryOverlap returns the trailing lines whose total size fits the
// overlap budget, to seed the next chunk.
func carryOverlap(acc []line, overlap int) ([]line, int) {
	if overlap <= 0 {
		return nil, 0
	}
	total := 0
	start := len(acc)
	for i := len(acc) - 1; i >= 0; i-- {
		if total+len(acc[i].text) > overlap {
			break
		}
		total += len(acc[i].text)
		start = i
	}
	if start == len(acc) {
		return nil, 0
	}
	carried := make([]line, len(acc)-start)
	copy(carried, acc[start:])
	return carried, total
}

// splitLongLine cuts one oversized line on whitespace boundaries,
// falling back to rune boundaries for tokens that are themselves over
// the limit.
func splitLongLine(text string, maxBytes, overlap int) []span {
	var out []span
	var acc []span
	accBytes := 0

	emit := func() {
		if accBytes == 0 {
			return
		}
		var b strings.Builder
		b.Grow(accBytes)
		for _, tok := range acc {
			b.WriteString(tok.text)
		}
		out = append(out, span{text: b.String(), offset: acc[0].offset})
	}

	for _, tok := range scanTokens(text) {
		if len(tok.text) > maxBytes {
			emit()
			acc, accBytes = nil, 0
			out = append(out, splitRunes(tok, maxBytes)...)
			continue
		}
		if accBytes+len(tok.text) > maxBytes && accBytes > 0 {
			emit()
			acc, accBytes = carrySpans(acc, overlap)
		}
		acc = append(acc, tok)
		accBytes += len(tok.text)
	}
	emit()
	return out
}

// scanTokens cuts a line into whitespace-delimited tokens, each keeping
// its trailing whitespace run.
func scanTokens(text string) []span {
	var out []span
	offset := 0
	for len(text) > 0 {
		end := 0
		for end < len(text) && text[end] != ' ' && text[end] != '\t' {
			end++
		}
		for end < len(text) && (text[end] == ' ' || text[end] == '\t') {
			end++
		}
		out = append(out, span{text: text[:end], offset: offset})
		offset += end
		text = text[end:]
	}
	return out
}

func carrySpans(acc []span, overlap int) ([]span, int) {
	if overlap <= 0 {
		return nil, 0
	}
	total := 0
	start := len(acc)
	for i := len(acc) - 1; i >= 0; i-- {
		if total+len(acc[i].text) > overlap {
			break
		}
		total += len(acc[i].text)
		start = i
	}
	if start == len(acc) {
		return nil, 0
	}
	carried := make([]span, len(acc)-start)
	copy(carried, acc[start:])
	return carried, total
}

// splitRunes cuts an oversized token at rune boundaries so no cut lands
// inside a UTF-8 sequence.
func splitRunes(tok span, maxBytes int) []span {
	var out []span
	start := 0
	for start < len(tok.text) {
		end := start + maxBytes
		if end >= len(tok.text) {
			end = len(tok.text)
		} else {
			for end > start && !utf8.RuneStart(tok.text[end]) {
				end--
			}
			if end == start {
				end = start + maxBytes
			}
		}
		out = append(out, span{text: tok.text[start:end], offset: tok.offset + start})
		start = end
	}
	return out
}
