package memory

import (
	"context"
	"testing"

	"github.com/docsense/backend/internal/chunkstore"
)

// wordEmbedder produces a deterministic bag-of-words vector over a fixed
// vocabulary, so textual overlap translates into cosine proximity.
type wordEmbedder struct {
	vocab []string
}

func newWordEmbedder() *wordEmbedder {
	return &wordEmbedder{vocab: []string{"pressure", "temperature", "well", "maintenance", "schedule", "reading"}}
}

func (e *wordEmbedder) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	vec := make([]float32, len(e.vocab))
	for i, w := range e.vocab {
		if contains(text, w) {
			vec[i] = 1
		}
	}
	return vec, nil
}

func contains(text, word string) bool {
	for i := 0; i+len(word) <= len(text); i++ {
		if text[i:i+len(word)] == word {
			return true
		}
	}
	return false
}

func records() []chunkstore.Record {
	return []chunkstore.Record{
		{Text: "pressure reading at the well", Source: "a.txt", SequenceIndex: 0},
		{Text: "temperature reading at the well", Source: "a.txt", SequenceIndex: 1},
		{Text: "maintenance schedule", Source: "b.txt", SequenceIndex: 0, IsStructured: true},
	}
}

func TestAddAndCount(t *testing.T) {
	s := New(newWordEmbedder())
	ctx := context.Background()

	if err := s.Add(ctx, records()); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	count, err := s.Count(ctx)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 3 {
		t.Errorf("count = %d, want 3", count)
	}
}

func TestQueryOrdersByDistance(t *testing.T) {
	s := New(newWordEmbedder())
	ctx := context.Background()
	if err := s.Add(ctx, records()); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	matches, err := s.Query(ctx, "pressure reading well", 3)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(matches) != 3 {
		t.Fatalf("got %d matches, want 3", len(matches))
	}

	if matches[0].ChunkID != "a.txt_chunk_0" {
		t.Errorf("best match = %s, want a.txt_chunk_0", matches[0].ChunkID)
	}
	for i := 1; i < len(matches); i++ {
		if matches[i].Distance < matches[i-1].Distance {
			t.Errorf("matches not in ascending distance order at %d", i)
		}
	}
}

func TestQueryRespectsK(t *testing.T) {
	s := New(newWordEmbedder())
	ctx := context.Background()
	if err := s.Add(ctx, records()); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	matches, err := s.Query(ctx, "well reading", 2)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(matches) != 2 {
		t.Errorf("got %d matches, want 2", len(matches))
	}
}

func TestQueryCarriesMetadata(t *testing.T) {
	s := New(newWordEmbedder())
	ctx := context.Background()
	if err := s.Add(ctx, records()); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	matches, err := s.Query(ctx, "maintenance schedule", 1)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	m := matches[0]
	if m.Source != "b.txt" || !m.IsStructured {
		t.Errorf("metadata lost: %+v", m)
	}
}

func TestReAddReplacesByChunkID(t *testing.T) {
	s := New(newWordEmbedder())
	ctx := context.Background()
	if err := s.Add(ctx, records()); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	updated := []chunkstore.Record{
		{Text: "pressure and temperature reading at the well", Source: "a.txt", SequenceIndex: 0},
	}
	if err := s.Add(ctx, updated); err != nil {
		t.Fatalf("re-Add failed: %v", err)
	}

	count, err := s.Count(ctx)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 3 {
		t.Errorf("count after re-add = %d, want 3", count)
	}

	matches, err := s.Query(ctx, "pressure reading well", 3)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	seen := make(map[string]int)
	for _, m := range matches {
		seen[m.ChunkID]++
		if m.ChunkID == "a.txt_chunk_0" && m.Text != updated[0].Text {
			t.Errorf("re-added chunk kept stale text: %q", m.Text)
		}
	}
	for id, n := range seen {
		if n > 1 {
			t.Errorf("chunk %s returned %d times", id, n)
		}
	}
}

func TestClear(t *testing.T) {
	s := New(newWordEmbedder())
	ctx := context.Background()
	if err := s.Add(ctx, records()); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	if err := s.Clear(ctx); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	count, _ := s.Count(ctx)
	if count != 0 {
		t.Errorf("count after clear = %d, want 0", count)
	}
}
