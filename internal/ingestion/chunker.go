package ingestion

import (
	"strings"

	"github.com/jdkato/prose/v2"
)

// Chunker splits prose into overlapping character-budgeted chunks along
// sentence boundaries, so no chunk starts or ends mid-sentence.
type Chunker struct {
	chunkSize    int
	chunkOverlap int
}

func NewChunker(size, overlap int) *Chunker {
	if size <= 0 {
		size = 1500
	}
	if overlap < 0 || overlap >= size {
		overlap = 200
	}
	return &Chunker{chunkSize: size, chunkOverlap: overlap}
}

// Chunk splits text into chunks of roughly chunkSize characters. Consecutive
// chunks share trailing sentences up to chunkOverlap characters for
// continuity. A single sentence longer than the chunk size becomes its own
// chunk rather than being split.
func (c *Chunker) Chunk(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	sentences := c.sentences(text)
	if len(sentences) == 0 {
		return nil
	}

	var chunks []string
	var current []string
	currentLen := 0

	for _, s := range sentences {
		sLen := len(s) + 1

		if currentLen+sLen > c.chunkSize && len(current) > 0 {
			chunks = append(chunks, strings.Join(current, " "))
			current = overlapTail(current, c.chunkOverlap)
			currentLen = joinedLen(current)
		}

		current = append(current, s)
		currentLen += sLen
	}

	if len(current) > 0 {
		chunks = append(chunks, strings.Join(current, " "))
	}

	return chunks
}

// sentences segments text with prose, falling back to whitespace-delimited
// line splitting if segmentation fails.
func (c *Chunker) sentences(text string) []string {
	doc, err := prose.NewDocument(text,
		prose.WithTagging(false),
		prose.WithExtraction(false),
	)
	if err != nil {
		return splitLines(text)
	}

	var out []string
	for _, s := range doc.Sentences() {
		t := strings.TrimSpace(s.Text)
		if t != "" {
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		return splitLines(text)
	}
	return out
}

// overlapTail returns the trailing sentences of a chunk whose combined length
// stays within the overlap budget.
func overlapTail(sentences []string, budget int) []string {
	var tail []string
	used := 0
	for i := len(sentences) - 1; i >= 0; i-- {
		l := len(sentences[i]) + 1
		if used+l > budget {
			break
		}
		tail = append([]string{sentences[i]}, tail...)
		used += l
	}
	return tail
}

func joinedLen(sentences []string) int {
	n := 0
	for _, s := range sentences {
		n += len(s) + 1
	}
	return n
}

func splitLines(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		if t := strings.TrimSpace(line); t != "" {
			out = append(out, t)
		}
	}
	return out
}
