package ingestion

import (
	"context"
	"crypto/md5"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/docsense/backend/internal/chunkstore"
	"github.com/docsense/backend/internal/metrics"
	"github.com/docsense/backend/internal/storage/models"
	"github.com/docsense/backend/internal/storage/sqlite"
	"github.com/docsense/backend/pkg/logger"
)

var whitespaceRe = regexp.MustCompile(`\s+`)

// Processor turns uploaded documents into indexed, retrievable chunks.
type Processor struct {
	db      *sqlite.Client
	store   chunkstore.Store
	chunker *Chunker
	log     *zap.Logger
}

func NewProcessor(db *sqlite.Client, store chunkstore.Store, chunkSize, chunkOverlap int) *Processor {
	return &Processor{
		db:      db,
		store:   store,
		chunker: NewChunker(chunkSize, chunkOverlap),
		log:     logger.GetLogger(),
	}
}

// ProcessDocument extracts, chunks, and indexes one document. CSV content is
// kept as markdown tables flagged structured; HTML is stripped to text;
// everything else is chunked sentence-aware.
func (p *Processor) ProcessDocument(ctx context.Context, doc SourceDocument) (int, error) {
	content, err := doc.Content()
	if err != nil {
		return 0, fmt.Errorf("failed to read document %s: %w", doc.Name(), err)
	}

	kind := fileKind(doc.Name())
	p.log.Info("processing document",
		zap.String("name", doc.Name()),
		zap.String("kind", kind),
		zap.Int64("size_bytes", doc.Size()))

	var chunks []string
	isStructured := false

	switch kind {
	case "csv":
		chunks, err = csvToMarkdownChunks(doc.Name(), content)
		if err != nil {
			return 0, err
		}
		isStructured = true
	case "html":
		chunks = p.chunker.Chunk(cleanHTML(content))
	default:
		chunks = p.chunker.Chunk(content)
	}

	if len(chunks) == 0 {
		return 0, fmt.Errorf("no content extracted from %s", doc.Name())
	}

	docID := contentID(doc.Name(), content)

	records := make([]chunkstore.Record, 0, len(chunks))
	for i, text := range chunks {
		records = append(records, chunkstore.Record{
			Text:          text,
			Source:        doc.Name(),
			SequenceIndex: i,
			IsStructured:  isStructured,
		})
	}

	if err := p.store.Add(ctx, records); err != nil {
		return 0, fmt.Errorf("failed to index chunks for %s: %w", doc.Name(), err)
	}

	now := time.Now()
	dbDoc := &models.Document{
		ID:           docID,
		Name:         doc.Name(),
		ContentHash:  docID,
		RawContent:   content,
		SizeBytes:    doc.Size(),
		IsStructured: isStructured,
		ChunkCount:   len(chunks),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := p.db.InsertDocument(dbDoc); err != nil {
		return 0, err
	}

	for i, r := range records {
		dbChunk := &models.DocumentChunk{
			ID:           r.ChunkID(),
			DocID:        docID,
			ChunkIndex:   i,
			Text:         r.Text,
			IsStructured: r.IsStructured,
			CreatedAt:    now,
		}
		if err := p.db.InsertChunk(dbChunk); err != nil {
			p.log.Warn("failed to record chunk", zap.String("chunk_id", dbChunk.ID), zap.Error(err))
		}
	}

	metrics.DocumentsProcessed.Inc()
	if count, err := p.store.Count(ctx); err == nil {
		metrics.ChunksIndexed.Set(float64(count))
	}

	p.log.Info("document processed",
		zap.String("doc_id", docID),
		zap.Int("chunks", len(chunks)),
		zap.Bool("is_structured", isStructured))

	return len(chunks), nil
}

// ClearAll drops both the vector index and the relational records.
func (p *Processor) ClearAll(ctx context.Context) error {
	if err := p.store.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear chunk store: %w", err)
	}
	if err := p.db.DeleteAllDocuments(); err != nil {
		return err
	}
	metrics.ChunksIndexed.Set(0)
	return nil
}

func cleanHTML(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}

	doc.Find("script, style, nav, footer, header, aside").Each(func(i int, s *goquery.Selection) {
		s.Remove()
	})

	text := doc.Find("body").Text()
	text = whitespaceRe.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

func contentID(name, content string) string {
	hash := md5.Sum([]byte(name + content))
	return fmt.Sprintf("%x", hash)
}
