// Package chunkstore defines the narrow interface the answer pipeline uses to
// talk to the vector index, plus the record types that cross it.
package chunkstore

import (
	"context"
	"errors"
	"fmt"
)

// ErrIndexFault signals an internal index error (corruption, failed segment
// load). The retriever treats it as transient and retries once with a smaller
// fetch size.
var ErrIndexFault = errors.New("chunk store index fault")

// Record is a chunk handed to Add at ingestion time. Chunks are immutable once
// stored; the pipeline only ever reads them.
type Record struct {
	Text          string
	Source        string
	SequenceIndex int
	IsStructured  bool
}

// ChunkID derives the stable identifier for a record: source filename plus
// ordinal within it.
func (r Record) ChunkID() string {
	return fmt.Sprintf("%s_chunk_%d", r.Source, r.SequenceIndex)
}

// Match is one nearest-neighbor result. Distance follows the backend's metric:
// conventional distances are >= 0 with smaller meaning closer, but score-like
// backends may return negative or unbounded values. Callers normalize via the
// retrieval package.
type Match struct {
	ChunkID       string
	Text          string
	Source        string
	SequenceIndex int
	IsStructured  bool
	Distance      float64
}

// Store is the vector index seen from the pipeline. Implementations must allow
// concurrent Query calls and serialize Add/Clear against in-flight queries.
type Store interface {
	Add(ctx context.Context, records []Record) error
	Query(ctx context.Context, text string, k int) ([]Match, error)
	Count(ctx context.Context) (int, error)
	Clear(ctx context.Context) error
}

// Embedder turns text into a vector. Both store implementations take one so
// the index never owns transport concerns.
type Embedder interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}
