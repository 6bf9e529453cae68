// Package retrieval fetches an over-sized candidate pool from the chunk store
// and reduces it to a diverse top-K selection.
package retrieval

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/docsense/backend/internal/chunkstore"
	"github.com/docsense/backend/pkg/logger"
)

const (
	DefaultFetchK        = 10
	DefaultTopK          = 5
	DefaultMMRLambda     = 0.65
	DefaultTimeout       = 4 * time.Second
	DefaultMaxChunkWords = 1200
)

// Config tunes one retriever. Zero values fall back to the defaults above.
// SimilarityThreshold defaults to 0 (accept all); raise it once real
// embeddings are in place.
type Config struct {
	FetchK              int
	SimilarityThreshold float64
	Timeout             time.Duration
	MaxChunkWords       int
}

// Retriever issues nearest-neighbor queries and normalizes the results into
// candidates. It is read-only with respect to the store.
type Retriever struct {
	store     chunkstore.Store
	fetchK    int
	threshold float64
	timeout   time.Duration
	maxWords  int
}

func NewRetriever(store chunkstore.Store, cfg Config) *Retriever {
	if cfg.FetchK <= 0 {
		cfg.FetchK = DefaultFetchK
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxChunkWords <= 0 {
		cfg.MaxChunkWords = DefaultMaxChunkWords
	}
	return &Retriever{
		store:     store,
		fetchK:    cfg.FetchK,
		threshold: cfg.SimilarityThreshold,
		timeout:   cfg.Timeout,
		maxWords:  cfg.MaxChunkWords,
	}
}

// Retrieve fetches up to FetchK candidates for the query. An empty result is
// not an error: store faults are retried once at half the fetch size and then
// degrade to "no relevant chunks", and a blown deadline degrades the same
// way. The caller falls back to summary mode on empty.
func (r *Retriever) Retrieve(ctx context.Context, query string) []Candidate {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	count, err := r.store.Count(ctx)
	if err != nil {
		logger.Warn("Chunk store count failed", zap.Error(err))
		return nil
	}
	if count == 0 {
		return nil
	}

	k := r.fetchK
	if count < k {
		k = count
	}

	matches, err := r.store.Query(ctx, query, k)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			logger.Warn("Retrieval deadline exceeded", zap.Duration("timeout", r.timeout))
			return nil
		}

		// Transient index faults sometimes clear at a smaller fetch size.
		reduced := k / 2
		if reduced < 1 {
			reduced = 1
		}
		logger.Warn("Chunk store query failed, retrying with reduced fetch",
			zap.Error(err),
			zap.Int("fetch_k", k),
			zap.Int("reduced_k", reduced),
		)
		matches, err = r.store.Query(ctx, query, reduced)
		if err != nil {
			logger.Error("Retrieval failed after reduced-fetch retry", zap.Error(err))
			return nil
		}
	}

	candidates := make([]Candidate, 0, len(matches))
	for _, m := range matches {
		similarity := Similarity(m.Distance)
		if similarity < r.threshold {
			continue
		}
		candidates = append(candidates, Candidate{
			Chunk: Chunk{
				ID:            m.ChunkID,
				Text:          truncateWords(m.Text, r.maxWords),
				Source:        m.Source,
				SequenceIndex: m.SequenceIndex,
				IsStructured:  m.IsStructured,
			},
			Similarity: similarity,
		})
	}

	logger.Debug("Candidates retrieved",
		zap.Int("matches", len(matches)),
		zap.Int("candidates", len(candidates)),
		zap.Float64("threshold", r.threshold),
	)

	return candidates
}

func truncateWords(text string, maxWords int) string {
	words := strings.Fields(text)
	if len(words) <= maxWords {
		return text
	}
	return strings.Join(words[:maxWords], " ") + "..."
}
