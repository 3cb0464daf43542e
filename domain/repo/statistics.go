package repo

import (
	"math"
	"sort"

	"github.com/codelore/codelore/domain/fault"
)

// LanguageStat is the per-language share of a repository.
type LanguageStat struct {
	FileCount  int
	LineCount  int
	Percentage float64
}

// Statistics summarizes a repository's structure. Language percentages are
// computed over line counts and sum to 100 within ±0.5 when any code is
// present.
type Statistics struct {
	fileCount int
	lineCount int
	languages map[string]LanguageStat
}

// NewStatistics validates and creates repository statistics.
func NewStatistics(fileCount, lineCount int, languages map[string]LanguageStat) (Statistics, error) {
	if fileCount < 0 || lineCount < 0 {
		return Statistics{}, fault.Validation("statistics counts cannot be negative")
	}

	var sum float64
	for lang, stat := range languages {
		if stat.FileCount < 0 || stat.LineCount < 0 {
			return Statistics{}, fault.Validationf("language %q has negative counts", lang)
		}
		if stat.Percentage < 0 || stat.Percentage > 100 {
			return Statistics{}, fault.Validationf("language %q percentage %.2f out of range", lang, stat.Percentage)
		}
		sum += stat.Percentage
	}
	if len(languages) > 0 && math.Abs(sum-100) > 0.5 {
		return Statistics{}, fault.Validationf("language percentages sum to %.2f, want 100 ±0.5", sum)
	}

	return Statistics{
		fileCount: fileCount,
		lineCount: lineCount,
		languages: copyLanguages(languages),
	}, nil
}

// ComputeStatistics derives statistics from raw per-language tallies,
// assigning percentages by line-count share.
func ComputeStatistics(tallies map[string]LanguageStat) Statistics {
	files, lines := 0, 0
	for _, t := range tallies {
		files += t.FileCount
		lines += t.LineCount
	}

	languages := make(map[string]LanguageStat, len(tallies))
	for lang, t := range tallies {
		pct := 0.0
		if lines > 0 {
			pct = float64(t.LineCount) / float64(lines) * 100
		}
		languages[lang] = LanguageStat{
			FileCount:  t.FileCount,
			LineCount:  t.LineCount,
			Percentage: pct,
		}
	}

	return Statistics{fileCount: files, lineCount: lines, languages: languages}
}

// ReconstructStatistics rebuilds statistics from persistence.
func ReconstructStatistics(fileCount, lineCount int, languages map[string]LanguageStat) Statistics {
	return Statistics{
		fileCount: fileCount,
		lineCount: lineCount,
		languages: copyLanguages(languages),
	}
}

func copyLanguages(in map[string]LanguageStat) map[string]LanguageStat {
	if in == nil {
		return nil
	}
	out := make(map[string]LanguageStat, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// FileCount returns the total file count.
func (s Statistics) FileCount() int { return s.fileCount }

// LineCount returns the total line count.
func (s Statistics) LineCount() int { return s.lineCount }

// Languages returns a copy of the per-language breakdown.
func (s Statistics) Languages() map[string]LanguageStat {
	return copyLanguages(s.languages)
}

// PrimaryLanguage returns the language with the largest line count, with
// name order breaking ties. Empty when no languages were detected.
func (s Statistics) PrimaryLanguage() string {
	names := make([]string, 0, len(s.languages))
	for lang := range s.languages {
		names = append(names, lang)
	}
	sort.Strings(names)

	best, bestLines := "", -1
	for _, lang := range names {
		if lines := s.languages[lang].LineCount; lines > bestLines {
			best, bestLines = lang, lines
		}
	}
	return best
}

// Empty reports whether no analysis has been recorded.
func (s Statistics) Empty() bool {
	return s.fileCount == 0 && s.lineCount == 0 && len(s.languages) == 0
}
