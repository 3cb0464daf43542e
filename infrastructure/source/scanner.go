package source

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/codelore/codelore/domain/repo"
)

// maxScanFileBytes caps how much of a single file the scanner reads for
// line counting. Larger files stay in the inventory but contribute no
// lines.
const maxScanFileBytes = 2 << 20

// Inventory is the result of walking one repository tree: structural
// statistics, a digest over the file inventory, and the file listing
// itself sorted by path. Two scans of an unchanged tree produce the same
// digest.
type Inventory struct {
	Statistics repo.Statistics
	Digest     string
	Files      []FileRecord
}

// FileRecord is one file in an inventory listing.
type FileRecord struct {
	Path string
	Size int64
}

// Scanner walks a local working tree without mutating it, producing
// statistics and a change-detection digest.
type Scanner struct {
	logger *slog.Logger
}

// NewScanner creates a Scanner.
func NewScanner(logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{logger: logger}
}

// Scan walks the tree rooted at root. Paths matching gitignore or
// .noindex rules are excluded; recognized-language files are line-counted
// for statistics; every included file contributes to the digest.
func (s *Scanner) Scan(ctx context.Context, root string) (Inventory, error) {
	ignore, err := NewIgnorePattern(root)
	if err != nil {
		return Inventory{}, fmt.Errorf("prepare ignore rules: %w", err)
	}

	tallies := make(map[string]repo.LanguageStat)
	var entries []inventoryEntry

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if rel == "." {
				return nil
			}
			if ignore.ShouldIgnoreDir(rel) || pathDepth(rel) >= MaxTreeDepth {
				return filepath.SkipDir
			}
			return nil
		}

		if ignore.ShouldIgnore(rel) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		entries = append(entries, inventoryEntry{
			path:    rel,
			size:    info.Size(),
			modHash: fileModHash(info.ModTime()),
		})

		lang := LanguageForPath(rel)
		if lang == "" {
			return nil
		}

		lines, err := countLines(path, info.Size())
		if err != nil {
			s.logger.Debug("skipping unreadable file",
				slog.String("path", rel),
				slog.String("error", err.Error()),
			)
			return nil
		}

		tally := tallies[lang]
		tally.FileCount++
		tally.LineCount += lines
		tallies[lang] = tally
		return nil
	})
	if err != nil {
		return Inventory{}, fmt.Errorf("walk %s: %w", root, err)
	}

	digest := digestEntries(entries)
	return Inventory{
		Statistics: repo.ComputeStatistics(tallies),
		Digest:     digest,
		Files:      fileRecords(entries),
	}, nil
}

// inventoryEntry is one file's contribution to the inventory digest.
// modHash captures "this file changed" without hashing content: local
// scans derive it from mtime, remote listings from the blob SHA.
type inventoryEntry struct {
	path    string
	size    int64
	modHash string
}

// digestEntries hashes the sorted path:size:modHash lines into the
// inventory digest.
func digestEntries(entries []inventoryEntry) string {
	sort.Slice(entries, func(i, j int) bool { return entries[i].path < entries[j].path })

	h := sha256.New()
	for _, e := range entries {
		fmt.Fprintf(h, "%s:%d:%s\n", e.path, e.size, e.modHash)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// fileRecords projects entries onto the public listing. Call after
// digestEntries, which leaves the slice sorted by path.
func fileRecords(entries []inventoryEntry) []FileRecord {
	if len(entries) == 0 {
		return nil
	}
	files := make([]FileRecord, len(entries))
	for i, e := range entries {
		files[i] = FileRecord{Path: e.path, Size: e.size}
	}
	return files
}

func fileModHash(mod time.Time) string {
	sum := sha256.Sum256([]byte(strconv.FormatInt(mod.UTC().UnixNano(), 10)))
	return hex.EncodeToString(sum[:8])
}

// countLines counts lines in a file; a final unterminated line counts.
// Oversized files report zero lines.
func countLines(path string, size int64) (int, error) {
	if size == 0 || size > maxScanFileBytes {
		return 0, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer func() { _ = f.Close() }()

	lines := 0
	lastByte := byte('\n')
	buf := make([]byte, 32*1024)
	for {
		n, err := f.Read(buf)
		if n > 0 {
			lines += bytes.Count(buf[:n], []byte{'\n'})
			lastByte = buf[n-1]
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, err
		}
	}
	if lastByte != '\n' {
		lines++
	}

	return lines, nil
}

func pathDepth(relPath string) int {
	return strings.Count(relPath, "/") + 1
}
