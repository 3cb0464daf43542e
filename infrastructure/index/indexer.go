package index

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/codelore/codelore/domain/repo"
	"github.com/codelore/codelore/domain/search"
	"github.com/codelore/codelore/infrastructure/chunking"
	"github.com/codelore/codelore/internal/config"
)

// Indexer writes documents to the lexical and vector stores together
// with their payloads, and answers hybrid queries across both. All
// writes are batched and keyed by document id, so re-indexing the same
// content is an upsert, not a duplicate.
type Indexer struct {
	lexical   search.LexicalStore
	vector    search.VectorStore
	documents search.DocumentStore
	masker    *Masker
	cfg       config.IndexingConfig
	logger    *slog.Logger
	excluded  []string
	ignored   map[string]struct{}
}

// NewIndexer creates an Indexer over the given stores.
func NewIndexer(
	lexical search.LexicalStore,
	vector search.VectorStore,
	documents search.DocumentStore,
	cfg config.IndexingConfig,
	logger *slog.Logger,
) *Indexer {
	if logger == nil {
		logger = slog.Default()
	}
	excluded := cfg.ExcludedExtensions()
	for i, ext := range excluded {
		excluded[i] = strings.ToLower(ext)
	}
	ignored := make(map[string]struct{})
	for _, dir := range cfg.IgnoredDirectories() {
		ignored[strings.ToLower(dir)] = struct{}{}
	}
	return &Indexer{
		lexical:   lexical,
		vector:    vector,
		documents: documents,
		masker:    NewMasker(),
		cfg:       cfg,
		logger:    logger,
		excluded:  excluded,
		ignored:   ignored,
	}
}

// ShouldIndex reports whether a repository path is indexable: not under
// an ignored directory and not carrying an excluded extension.
func (x *Indexer) ShouldIndex(path string) bool {
	lower := strings.ToLower(filepath.ToSlash(path))
	segments := strings.Split(lower, "/")
	for _, segment := range segments[:max(len(segments)-1, 0)] {
		if _, skip := x.ignored[segment]; skip {
			return false
		}
	}
	for _, ext := range x.excluded {
		if strings.HasSuffix(lower, ext) {
			return false
		}
	}
	return true
}

// chunkParams derives the splitter bounds from configuration.
func (x *Indexer) chunkParams() chunking.Params {
	params := chunking.DefaultParams()
	params.MaxBytes = x.cfg.MaxFileContentLength()
	params.OverlapPercent = x.cfg.ChunkOverlapPercent()
	return params
}

// IndexFile chunks one file and replaces its documents in the index.
// Chunk ids embed the line range, so a content change that moves chunk
// boundaries would strand stale ids; prior documents for the path are
// removed first. Returns how many chunks were indexed; skipped paths
// index zero.
func (x *Indexer) IndexFile(ctx context.Context, repositoryID int64, path, language, content string, options ...search.IndexOption) (int, error) {
	if !x.ShouldIndex(path) {
		return 0, nil
	}

	if err := x.DeleteFile(ctx, repositoryID, path); err != nil {
		return 0, err
	}

	chunks, err := chunking.Split(content, x.chunkParams())
	if err != nil {
		return 0, fmt.Errorf("chunk %s: %w", path, err)
	}
	if len(chunks) == 0 {
		return 0, nil
	}

	docs := make([]search.Document, 0, len(chunks))
	for _, chunk := range chunks {
		id := FileChunkID(repositoryID, path, chunk.StartLine(), chunk.EndLine())
		doc, err := search.NewDocument(id, repositoryID, search.KindCodeChunk, chunk.Text())
		if err != nil {
			return 0, err
		}
		docs = append(docs, doc.
			WithTitle(filepath.Base(path)).
			WithPath(path).
			WithLanguage(language).
			WithLines(chunk.StartLine(), chunk.EndLine()))
	}

	if err := x.Upsert(ctx, docs, options...); err != nil {
		return 0, err
	}
	return len(docs), nil
}

// FileChunkID builds the index id for one chunk of a repository file.
func FileChunkID(repositoryID int64, path string, startLine, endLine int) string {
	return fmt.Sprintf("%d:%s:%d-%d", repositoryID, path, startLine, endLine)
}

// Upsert adds or replaces documents across the payload, lexical, and
// vector stores. Conversation messages are masked before they touch any
// store. Duplicated ids within one call collapse to the last occurrence
// so each batch writes a document at most once.
func (x *Indexer) Upsert(ctx context.Context, docs []search.Document, options ...search.IndexOption) error {
	docs = dedupeByID(x.maskMessages(docs))
	if len(docs) == 0 {
		return nil
	}

	for start := 0; start < len(docs); start += x.cfg.BatchSize() {
		end := min(start+x.cfg.BatchSize(), len(docs))
		batch := docs[start:end]

		if err := x.documents.Upsert(ctx, batch); err != nil {
			return err
		}
		request := search.NewIndexRequest(batch)
		if err := x.lexical.Index(ctx, request); err != nil {
			return fmt.Errorf("lexical index: %w", err)
		}
		if err := x.vector.Index(ctx, request, options...); err != nil {
			return fmt.Errorf("vector index: %w", err)
		}
		x.logger.Debug("indexed batch",
			slog.Int("documents", len(batch)),
			slog.Int("total", len(docs)))
	}
	return nil
}

// Delete removes the given document ids from all three stores.
func (x *Indexer) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := x.lexical.DeleteBy(ctx, search.WithDocumentIDs(ids)); err != nil {
		return fmt.Errorf("lexical delete: %w", err)
	}
	if err := x.vector.DeleteBy(ctx, search.WithDocumentIDs(ids)); err != nil {
		return fmt.Errorf("vector delete: %w", err)
	}
	if err := x.documents.DeleteBy(ctx, repo.WithConditionIn("id", ids)); err != nil {
		return err
	}
	return nil
}

// DeleteFile removes every chunk document of one repository file.
func (x *Indexer) DeleteFile(ctx context.Context, repositoryID int64, path string) error {
	existing, err := x.documents.Find(ctx, search.WithFilters(search.NewFilters(
		search.WithRepositories(repositoryID),
		search.WithKinds(search.KindCodeChunk),
		search.WithPathPrefix(path),
	)))
	if err != nil {
		return err
	}
	var ids []string
	for _, doc := range existing {
		// The prefix filter also matches longer sibling paths.
		if doc.Path() == path {
			ids = append(ids, doc.ID())
		}
	}
	return x.Delete(ctx, ids)
}

// PruneFiles removes code-chunk documents whose path is no longer in the
// repository's live file set, returning how many documents were removed.
// Documentation sections and conversation messages are untouched.
func (x *Indexer) PruneFiles(ctx context.Context, repositoryID int64, livePaths []string) (int, error) {
	existing, err := x.documents.Find(ctx, search.WithFilters(search.NewFilters(
		search.WithRepositories(repositoryID),
		search.WithKinds(search.KindCodeChunk),
	)))
	if err != nil {
		return 0, err
	}

	live := make(map[string]struct{}, len(livePaths))
	for _, p := range livePaths {
		live[p] = struct{}{}
	}
	var ids []string
	for _, doc := range existing {
		if _, ok := live[doc.Path()]; !ok {
			ids = append(ids, doc.ID())
		}
	}
	if err := x.Delete(ctx, ids); err != nil {
		return 0, err
	}
	return len(ids), nil
}

// DeleteRepository removes every document of a repository from all
// three stores.
func (x *Indexer) DeleteRepository(ctx context.Context, repositoryID int64) error {
	byRepository := repo.WithCondition("repository_id", repositoryID)
	if err := x.lexical.DeleteBy(ctx, byRepository); err != nil {
		return fmt.Errorf("lexical delete: %w", err)
	}
	if err := x.vector.DeleteBy(ctx, byRepository); err != nil {
		return fmt.Errorf("vector delete: %w", err)
	}
	return x.documents.DeleteBy(ctx, byRepository)
}

// Search answers one query against the selected indexes and returns
// candidates carrying both normalized scores, resolved to their full
// documents. Candidates whose best score falls under the configured
// floor are dropped. Ordering by final relevance is the caller's rerank.
func (x *Indexer) Search(ctx context.Context, query search.Query) ([]search.Candidate, error) {
	topK := query.TopK()
	if topK <= 0 {
		topK = x.cfg.BatchSize()
	}
	options := []repo.Option{
		search.WithQuery(query.Text()),
		search.WithFilters(query.Filters()),
		search.WithTopK(topK),
	}

	var vectorHits, lexicalHits []search.Result
	var err error
	if query.SearchType() == search.TypeVector || query.SearchType() == search.TypeHybrid {
		vectorHits, err = x.vector.Find(ctx, options...)
		if err != nil {
			return nil, fmt.Errorf("vector search: %w", err)
		}
	}
	if query.SearchType() == search.TypeLexical || query.SearchType() == search.TypeHybrid {
		lexicalHits, err = x.lexical.Find(ctx, options...)
		if err != nil {
			return nil, fmt.Errorf("lexical search: %w", err)
		}
	}

	merged := search.Merge(vectorHits, lexicalHits)
	kept := merged[:0]
	for _, row := range merged {
		if max(row.VectorScore(), row.LexicalScore()) >= x.cfg.MinSearchScore() {
			kept = append(kept, row)
		}
	}
	if len(kept) == 0 {
		return nil, nil
	}

	ids := make([]string, len(kept))
	for i, row := range kept {
		ids[i] = row.DocumentID()
	}
	resolved, err := x.documents.ByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]search.Document, len(resolved))
	for _, doc := range resolved {
		byID[doc.ID()] = doc
	}

	candidates := make([]search.Candidate, 0, len(kept))
	for _, row := range kept {
		doc, ok := byID[row.DocumentID()]
		if !ok {
			// A hit without a payload is an index orphan; skip it rather
			// than surface an empty result.
			x.logger.Warn("index hit without stored document",
				slog.String("document_id", row.DocumentID()))
			continue
		}
		candidates = append(candidates, search.NewCandidate(doc, row.VectorScore(), row.LexicalScore()))
	}
	return candidates, nil
}

// maskMessages passes conversation content through the privacy masker.
func (x *Indexer) maskMessages(docs []search.Document) []search.Document {
	out := make([]search.Document, len(docs))
	for i, doc := range docs {
		if doc.Kind() != search.KindMessage {
			out[i] = doc
			continue
		}
		out[i] = search.ReconstructDocument(
			doc.ID(), doc.RepositoryID(), doc.Kind(),
			doc.Title(), doc.Path(), doc.Language(), doc.SectionType(),
			doc.StartLine(), doc.EndLine(),
			x.masker.Mask(doc.Content()),
			doc.Tags(), doc.CreatedAt(), doc.LastModified(),
		)
	}
	return out
}

// dedupeByID collapses repeated ids to the last occurrence, preserving
// first-seen order.
func dedupeByID(docs []search.Document) []search.Document {
	seen := make(map[string]int, len(docs))
	out := make([]search.Document, 0, len(docs))
	for _, doc := range docs {
		if at, ok := seen[doc.ID()]; ok {
			out[at] = doc
			continue
		}
		seen[doc.ID()] = len(out)
		out = append(out, doc)
	}
	return out
}
