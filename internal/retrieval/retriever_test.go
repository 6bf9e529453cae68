package retrieval

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/docsense/backend/internal/chunkstore"
)

// stubStore scripts Count and Query responses and records call arguments.
type stubStore struct {
	count      int
	countErr   error
	matches    []chunkstore.Match
	queryErrs  []error // consumed per call; nil entry means success
	queryCalls []int   // k per call
	queryDelay time.Duration
}

func (s *stubStore) Add(ctx context.Context, records []chunkstore.Record) error { return nil }

func (s *stubStore) Query(ctx context.Context, text string, k int) ([]chunkstore.Match, error) {
	s.queryCalls = append(s.queryCalls, k)
	if s.queryDelay > 0 {
		select {
		case <-time.After(s.queryDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if len(s.queryErrs) > 0 {
		err := s.queryErrs[0]
		s.queryErrs = s.queryErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	return s.matches, nil
}

func (s *stubStore) Count(ctx context.Context) (int, error) { return s.count, s.countErr }

func (s *stubStore) Clear(ctx context.Context) error { return nil }

func matchesWithDistances(distances ...float64) []chunkstore.Match {
	out := make([]chunkstore.Match, len(distances))
	for i, d := range distances {
		out[i] = chunkstore.Match{
			ChunkID:  "doc.txt_chunk_" + string(rune('0'+i)),
			Text:     "chunk text",
			Source:   "doc.txt",
			Distance: d,
		}
	}
	return out
}

func TestRetrieveHappyPath(t *testing.T) {
	store := &stubStore{count: 20, matches: matchesWithDistances(0, 0.2, 0.4)}
	r := NewRetriever(store, Config{FetchK: 10})

	got := r.Retrieve(context.Background(), "pressure at well 7")
	if len(got) != 3 {
		t.Fatalf("got %d candidates, want 3", len(got))
	}
	if got[0].Similarity != 1.0 {
		t.Errorf("first similarity = %v, want 1.0", got[0].Similarity)
	}
	if store.queryCalls[0] != 10 {
		t.Errorf("query k = %d, want 10", store.queryCalls[0])
	}
}

func TestRetrieveFetchCappedByCount(t *testing.T) {
	store := &stubStore{count: 3, matches: matchesWithDistances(0.1, 0.2, 0.3)}
	r := NewRetriever(store, Config{FetchK: 10})

	r.Retrieve(context.Background(), "q")
	if store.queryCalls[0] != 3 {
		t.Errorf("query k = %d, want 3 (capped by store count)", store.queryCalls[0])
	}
}

func TestRetrieveEmptyStore(t *testing.T) {
	store := &stubStore{count: 0}
	r := NewRetriever(store, Config{})

	if got := r.Retrieve(context.Background(), "q"); got != nil {
		t.Fatalf("got %v, want nil for empty store", got)
	}
	if len(store.queryCalls) != 0 {
		t.Errorf("query was called %d times on an empty store", len(store.queryCalls))
	}
}

func TestRetrieveRetriesAtHalfFetchOnFault(t *testing.T) {
	store := &stubStore{
		count:     20,
		matches:   matchesWithDistances(0.1),
		queryErrs: []error{chunkstore.ErrIndexFault, nil},
	}
	r := NewRetriever(store, Config{FetchK: 10})

	got := r.Retrieve(context.Background(), "q")
	if len(got) != 1 {
		t.Fatalf("got %d candidates after retry, want 1", len(got))
	}
	if len(store.queryCalls) != 2 || store.queryCalls[1] != 5 {
		t.Fatalf("query calls = %v, want second call at k=5", store.queryCalls)
	}
}

func TestRetrieveGivesUpAfterSecondFault(t *testing.T) {
	store := &stubStore{
		count:     20,
		queryErrs: []error{chunkstore.ErrIndexFault, chunkstore.ErrIndexFault},
	}
	r := NewRetriever(store, Config{FetchK: 10})

	if got := r.Retrieve(context.Background(), "q"); got != nil {
		t.Fatalf("got %v, want nil after repeated faults", got)
	}
	if len(store.queryCalls) != 2 {
		t.Fatalf("query called %d times, want exactly 2", len(store.queryCalls))
	}
}

func TestRetrieveDeadlineDegradesToEmpty(t *testing.T) {
	store := &stubStore{
		count:      5,
		matches:    matchesWithDistances(0.1),
		queryDelay: 200 * time.Millisecond,
	}
	r := NewRetriever(store, Config{FetchK: 5, Timeout: 20 * time.Millisecond})

	if got := r.Retrieve(context.Background(), "q"); got != nil {
		t.Fatalf("got %v, want nil on deadline", got)
	}
	// No second attempt after a blown deadline.
	if len(store.queryCalls) != 1 {
		t.Fatalf("query called %d times, want 1", len(store.queryCalls))
	}
}

func TestRetrieveThresholdZeroAcceptsAll(t *testing.T) {
	store := &stubStore{count: 5, matches: matchesWithDistances(0, 0.5, 1.0)}
	r := NewRetriever(store, Config{FetchK: 5, SimilarityThreshold: 0})

	if got := r.Retrieve(context.Background(), "q"); len(got) != 3 {
		t.Fatalf("got %d candidates, want all 3 at threshold 0", len(got))
	}
}

func TestRetrieveThresholdFiltersWeakMatches(t *testing.T) {
	store := &stubStore{count: 5, matches: matchesWithDistances(0, 0.5, 0.9)}
	r := NewRetriever(store, Config{FetchK: 5, SimilarityThreshold: 0.4})

	got := r.Retrieve(context.Background(), "q")
	if len(got) != 2 {
		t.Fatalf("got %d candidates, want 2 above threshold 0.4", len(got))
	}
	for _, c := range got {
		if c.Similarity < 0.4 {
			t.Errorf("candidate %s similarity %v below threshold", c.Chunk.ID, c.Similarity)
		}
	}
}

func TestRetrieveTruncatesLongChunks(t *testing.T) {
	long := strings.Repeat("word ", 50)
	store := &stubStore{
		count:   1,
		matches: []chunkstore.Match{{ChunkID: "c0", Text: long, Source: "doc.txt"}},
	}
	r := NewRetriever(store, Config{FetchK: 5, MaxChunkWords: 10})

	got := r.Retrieve(context.Background(), "q")
	if len(got) != 1 {
		t.Fatalf("got %d candidates, want 1", len(got))
	}
	words := strings.Fields(strings.TrimSuffix(got[0].Chunk.Text, "..."))
	if len(words) != 10 {
		t.Errorf("truncated chunk has %d words, want 10", len(words))
	}
	if !strings.HasSuffix(got[0].Chunk.Text, "...") {
		t.Errorf("truncated chunk missing ellipsis marker")
	}
}
