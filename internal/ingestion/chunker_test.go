package ingestion

import (
	"strings"
	"testing"
)

func TestChunkEmptyInput(t *testing.T) {
	c := NewChunker(100, 20)
	if got := c.Chunk("   \n  "); got != nil {
		t.Fatalf("got %v, want nil for blank input", got)
	}
}

func TestChunkShortTextSingleChunk(t *testing.T) {
	c := NewChunker(1500, 200)
	got := c.Chunk("The station ran normally. No alarms were raised.")
	if len(got) != 1 {
		t.Fatalf("got %d chunks, want 1", len(got))
	}
}

func TestChunkRespectsSizeBudget(t *testing.T) {
	c := NewChunker(120, 30)

	var sb strings.Builder
	for i := 0; i < 30; i++ {
		sb.WriteString("This is a plain sentence about routine field operations. ")
	}

	chunks := c.Chunk(sb.String())
	if len(chunks) < 2 {
		t.Fatalf("got %d chunks, want several for long input", len(chunks))
	}

	// One sentence is ~57 chars; a chunk may exceed the budget by at most
	// one sentence but never by two.
	for i, ch := range chunks {
		if len(ch) > 120+60 {
			t.Errorf("chunk %d is %d chars, far over budget", i, len(ch))
		}
	}
}

func TestChunkOverlapCarriesTrailingSentence(t *testing.T) {
	c := NewChunker(100, 60)

	text := "First sentence here about alpha. Second sentence here about beta. Third sentence here about gamma. Fourth sentence here about delta."
	chunks := c.Chunk(text)
	if len(chunks) < 2 {
		t.Fatalf("got %d chunks, want at least 2", len(chunks))
	}

	// The last sentence of chunk 0 must reappear at the start of chunk 1.
	firstWords := strings.Fields(chunks[0])
	lastWord := strings.TrimSuffix(firstWords[len(firstWords)-1], ".")
	if !strings.Contains(chunks[1], lastWord) {
		t.Errorf("chunk 1 %q does not overlap chunk 0 (missing %q)", chunks[1], lastWord)
	}
}

func TestChunkOversizedSentenceKeptWhole(t *testing.T) {
	c := NewChunker(50, 10)

	long := "This single sentence is deliberately much longer than the whole chunk budget allows for."
	chunks := c.Chunk(long)
	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1 (sentences are never split)", len(chunks))
	}
	if !strings.Contains(chunks[0], "deliberately") {
		t.Errorf("oversized sentence was truncated")
	}
}
