package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/docsense/backend/internal/storage/models"
	"github.com/docsense/backend/pkg/logger"
)

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		content_hash TEXT NOT NULL,
		raw_content TEXT,
		size_bytes INTEGER NOT NULL,
		is_structured INTEGER DEFAULT 0,
		chunk_count INTEGER DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_documents_hash ON documents(content_hash);
	CREATE INDEX IF NOT EXISTS idx_documents_updated ON documents(updated_at);

	CREATE TABLE IF NOT EXISTS document_chunks (
		id TEXT PRIMARY KEY,
		doc_id TEXT NOT NULL,
		chunk_index INTEGER NOT NULL,
		text TEXT NOT NULL,
		is_structured INTEGER DEFAULT 0,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (doc_id) REFERENCES documents(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_doc ON document_chunks(doc_id);

	CREATE TABLE IF NOT EXISTS query_history (
		id TEXT PRIMARY KEY,
		query_text TEXT NOT NULL,
		mode TEXT,
		detail_level TEXT,
		chunks_retrieved INTEGER,
		retrieval_skipped INTEGER DEFAULT 0,
		degraded INTEGER DEFAULT 0,
		error_kind TEXT,
		latency_ms INTEGER,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_query_created ON query_history(created_at);

	CREATE TABLE IF NOT EXISTS validation_results (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		query_id TEXT NOT NULL,
		mode TEXT NOT NULL,
		valid INTEGER NOT NULL,
		reason TEXT,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (query_id) REFERENCES query_history(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_validation_query ON validation_results(query_id);
	`

	if _, err := c.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

func (c *Client) InsertDocument(doc *models.Document) error {
	query := `
		INSERT INTO documents (id, name, content_hash, raw_content, size_bytes, is_structured, chunk_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			raw_content = excluded.raw_content,
			chunk_count = excluded.chunk_count,
			updated_at = excluded.updated_at
	`

	_, err := c.db.Exec(
		query,
		doc.ID,
		doc.Name,
		doc.ContentHash,
		doc.RawContent,
		doc.SizeBytes,
		boolToInt(doc.IsStructured),
		doc.ChunkCount,
		doc.CreatedAt.Unix(),
		doc.UpdatedAt.Unix(),
	)

	if err != nil {
		return fmt.Errorf("failed to insert document: %w", err)
	}

	logger.Debug("Document inserted", zap.String("doc_id", doc.ID), zap.String("name", doc.Name))
	return nil
}

func (c *Client) GetDocument(id string) (*models.Document, error) {
	query := `SELECT id, name, content_hash, raw_content, size_bytes, is_structured, chunk_count, created_at, updated_at FROM documents WHERE id = ?`

	var doc models.Document
	var isStructured int
	var createdAt, updatedAt int64

	err := c.db.QueryRow(query, id).Scan(
		&doc.ID,
		&doc.Name,
		&doc.ContentHash,
		&doc.RawContent,
		&doc.SizeBytes,
		&isStructured,
		&doc.ChunkCount,
		&createdAt,
		&updatedAt,
	)

	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}

	doc.IsStructured = isStructured != 0
	doc.CreatedAt = time.Unix(createdAt, 0)
	doc.UpdatedAt = time.Unix(updatedAt, 0)

	return &doc, nil
}

func (c *Client) ListDocuments() ([]*models.Document, error) {
	query := `SELECT id, name, content_hash, size_bytes, is_structured, chunk_count, created_at, updated_at FROM documents ORDER BY created_at DESC`

	rows, err := c.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var docs []*models.Document
	for rows.Next() {
		var doc models.Document
		var isStructured int
		var createdAt, updatedAt int64

		if err := rows.Scan(&doc.ID, &doc.Name, &doc.ContentHash, &doc.SizeBytes, &isStructured, &doc.ChunkCount, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}

		doc.IsStructured = isStructured != 0
		doc.CreatedAt = time.Unix(createdAt, 0)
		doc.UpdatedAt = time.Unix(updatedAt, 0)
		docs = append(docs, &doc)
	}

	return docs, rows.Err()
}

func (c *Client) InsertChunk(chunk *models.DocumentChunk) error {
	query := `
		INSERT INTO document_chunks (id, doc_id, chunk_index, text, is_structured, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			doc_id = excluded.doc_id,
			chunk_index = excluded.chunk_index,
			text = excluded.text,
			is_structured = excluded.is_structured
	`

	_, err := c.db.Exec(
		query,
		chunk.ID,
		chunk.DocID,
		chunk.ChunkIndex,
		chunk.Text,
		boolToInt(chunk.IsStructured),
		chunk.CreatedAt.Unix(),
	)

	if err != nil {
		return fmt.Errorf("failed to insert chunk: %w", err)
	}

	return nil
}

func (c *Client) DeleteAllDocuments() error {
	if _, err := c.db.Exec(`DELETE FROM documents`); err != nil {
		return fmt.Errorf("failed to delete documents: %w", err)
	}
	logger.Info("All documents deleted")
	return nil
}

func (c *Client) InsertQueryRecord(record *models.QueryRecord) error {
	query := `
		INSERT INTO query_history (id, query_text, mode, detail_level, chunks_retrieved,
			retrieval_skipped, degraded, error_kind, latency_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := c.db.Exec(
		query,
		record.ID,
		record.QueryText,
		record.Mode,
		record.DetailLevel,
		record.ChunksRetrieved,
		boolToInt(record.RetrievalSkipped),
		boolToInt(record.Degraded),
		record.ErrorKind,
		record.LatencyMS,
		record.CreatedAt.Unix(),
	)

	if err != nil {
		return fmt.Errorf("failed to insert query record: %w", err)
	}

	logger.Debug("Query recorded",
		zap.String("query_id", record.ID),
		zap.String("mode", record.Mode),
		zap.Int("latency_ms", record.LatencyMS),
	)

	return nil
}

func (c *Client) GetQueryHistory(limit int) ([]*models.QueryRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, query_text, mode, detail_level, chunks_retrieved, retrieval_skipped, degraded, error_kind, latency_ms, created_at
		FROM query_history ORDER BY created_at DESC LIMIT ?
	`

	rows, err := c.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get query history: %w", err)
	}
	defer rows.Close()

	var records []*models.QueryRecord
	for rows.Next() {
		var r models.QueryRecord
		var skipped, degraded int
		var createdAt int64

		if err := rows.Scan(&r.ID, &r.QueryText, &r.Mode, &r.DetailLevel, &r.ChunksRetrieved, &skipped, &degraded, &r.ErrorKind, &r.LatencyMS, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan query record: %w", err)
		}

		r.RetrievalSkipped = skipped != 0
		r.Degraded = degraded != 0
		r.CreatedAt = time.Unix(createdAt, 0)
		records = append(records, &r)
	}

	return records, rows.Err()
}

func (c *Client) InsertValidationResult(result *models.ValidationResult) error {
	query := `INSERT INTO validation_results (query_id, mode, valid, reason, created_at) VALUES (?, ?, ?, ?, ?)`

	_, err := c.db.Exec(
		query,
		result.QueryID,
		result.Mode,
		boolToInt(result.Valid),
		result.Reason,
		result.CreatedAt.Unix(),
	)

	if err != nil {
		return fmt.Errorf("failed to insert validation result: %w", err)
	}

	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
