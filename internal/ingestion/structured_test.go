package ingestion

import (
	"fmt"
	"strings"
	"testing"
)

func TestCSVToMarkdownChunks(t *testing.T) {
	csv := "Entity,Pressure,Temperature\nWell-7,3124 psi,212 F\nWell-9,2980 psi,205 F\n"

	chunks, err := csvToMarkdownChunks("readings.csv", csv)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1", len(chunks))
	}

	table := chunks[0]
	if !strings.Contains(table, "| Entity | Pressure | Temperature |") {
		t.Errorf("header row missing: %s", table)
	}
	if !strings.Contains(table, "| --- | --- | --- |") {
		t.Errorf("separator row missing: %s", table)
	}
	if !strings.Contains(table, "| Well-7 | 3124 psi | 212 F |") {
		t.Errorf("data row missing: %s", table)
	}
}

func TestCSVRaggedRowsPadded(t *testing.T) {
	csv := "A,B,C\n1,2\n"

	chunks, err := csvToMarkdownChunks("ragged.csv", csv)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(chunks[0], "| 1 | 2 | — |") {
		t.Errorf("short row not padded with sentinel: %s", chunks[0])
	}
}

func TestCSVEmptyCellsGetSentinel(t *testing.T) {
	csv := "A,B\nvalue,\n"

	chunks, err := csvToMarkdownChunks("empty.csv", csv)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(chunks[0], "| value | — |") {
		t.Errorf("empty cell not marked: %s", chunks[0])
	}
}

func TestCSVSplitsIntoRowBudgetedChunks(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("ID,Value\n")
	for i := 0; i < 100; i++ {
		fmt.Fprintf(&sb, "row%d,%d\n", i, i)
	}

	chunks, err := csvToMarkdownChunks("big.csv", sb.String())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3 (100 rows / 40 per chunk)", len(chunks))
	}

	// Every chunk repeats the header.
	for i, ch := range chunks {
		if !strings.HasPrefix(ch, "| ID | Value |") {
			t.Errorf("chunk %d missing header: %s", i, ch[:40])
		}
	}
}

func TestFileKind(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"data.csv", "csv"},
		{"DATA.CSV", "csv"},
		{"page.html", "html"},
		{"page.htm", "html"},
		{"notes.txt", "text"},
		{"report.pdf", "text"},
		{"noext", "text"},
	}
	for _, tt := range tests {
		if got := fileKind(tt.name); got != tt.want {
			t.Errorf("fileKind(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}
