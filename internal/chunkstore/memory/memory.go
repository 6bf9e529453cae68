// Package memory provides an in-memory chunk store backed by brute-force
// cosine search. It is the zero-infrastructure default and the test double for
// the Milvus-backed store.
package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/docsense/backend/internal/chunkstore"
)

type entry struct {
	match     chunkstore.Match
	embedding []float32
}

// Store keeps every chunk and its embedding in memory. Queries run under a
// read lock; Add and Clear take the write lock so a rebuild never races an
// in-flight search. Entries are keyed by chunk ID: re-adding an ID replaces
// the stored chunk instead of appending a duplicate.
type Store struct {
	embedder chunkstore.Embedder

	mu      sync.RWMutex
	entries []entry
	byID    map[string]int
}

func New(embedder chunkstore.Embedder) *Store {
	return &Store{embedder: embedder, byID: make(map[string]int)}
}

func (s *Store) Add(ctx context.Context, records []chunkstore.Record) error {
	if len(records) == 0 {
		return nil
	}

	added := make([]entry, 0, len(records))
	for _, r := range records {
		vec, err := s.embedder.GenerateEmbedding(ctx, r.Text)
		if err != nil {
			return fmt.Errorf("failed to embed chunk %s: %w", r.ChunkID(), err)
		}
		added = append(added, entry{
			match: chunkstore.Match{
				ChunkID:       r.ChunkID(),
				Text:          r.Text,
				Source:        r.Source,
				SequenceIndex: r.SequenceIndex,
				IsStructured:  r.IsStructured,
			},
			embedding: vec,
		})
	}

	s.mu.Lock()
	for _, e := range added {
		if i, ok := s.byID[e.match.ChunkID]; ok {
			s.entries[i] = e
			continue
		}
		s.byID[e.match.ChunkID] = len(s.entries)
		s.entries = append(s.entries, e)
	}
	s.mu.Unlock()
	return nil
}

func (s *Store) Query(ctx context.Context, text string, k int) ([]chunkstore.Match, error) {
	if k <= 0 {
		return nil, nil
	}

	queryVec, err := s.embedder.GenerateEmbedding(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	matches := make([]chunkstore.Match, 0, len(s.entries))
	for _, e := range s.entries {
		m := e.match
		m.Distance = cosineDistance(queryVec, e.embedding)
		matches = append(matches, m)
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Distance < matches[j].Distance
	})

	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries), nil
}

func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	s.entries = nil
	s.byID = make(map[string]int)
	s.mu.Unlock()
	return nil
}

// cosineDistance returns 1 - cosine similarity, so 0 means identical
// direction. Zero vectors map to the maximum distance.
func cosineDistance(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}

	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(normA)*math.Sqrt(normB))
}
