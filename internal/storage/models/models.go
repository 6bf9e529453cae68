package models

import "time"

type Document struct {
	ID           string
	Name         string
	ContentHash  string
	RawContent   string
	SizeBytes    int64
	IsStructured bool
	ChunkCount   int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type DocumentChunk struct {
	ID           string
	DocID        string
	ChunkIndex   int
	Text         string
	IsStructured bool
	CreatedAt    time.Time
}

type QueryRecord struct {
	ID               string
	QueryText        string
	Mode             string
	DetailLevel      string
	ChunksRetrieved  int
	RetrievalSkipped bool
	Degraded         bool
	ErrorKind        string
	LatencyMS        int
	CreatedAt        time.Time
}

type ValidationResult struct {
	ID        int
	QueryID   string
	Mode      string
	Valid     bool
	Reason    string
	CreatedAt time.Time
}
