package ingestion

import (
	"encoding/csv"
	"fmt"
	"strings"
)

// rowsPerChunk bounds how many data rows a structured chunk carries. Each
// chunk repeats the header so the model can always resolve column names.
const rowsPerChunk = 40

// csvToMarkdownChunks renders CSV content as markdown tables, one chunk per
// rowsPerChunk rows. Tabular content is kept in table form rather than being
// flattened to prose so extraction queries can read exact values.
func csvToMarkdownChunks(name, content string) ([]string, error) {
	r := csv.NewReader(strings.NewReader(content))
	r.FieldsPerRecord = -1

	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse CSV %s: %w", name, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	header := rows[0]
	data := rows[1:]

	if len(data) == 0 {
		return []string{renderTable(header, nil)}, nil
	}

	var chunks []string
	for start := 0; start < len(data); start += rowsPerChunk {
		end := start + rowsPerChunk
		if end > len(data) {
			end = len(data)
		}
		chunks = append(chunks, renderTable(header, data[start:end]))
	}

	return chunks, nil
}

func renderTable(header []string, rows [][]string) string {
	var sb strings.Builder

	sb.WriteString("| " + strings.Join(sanitizeCells(header), " | ") + " |\n")
	sb.WriteString("|" + strings.Repeat(" --- |", len(header)) + "\n")

	for _, row := range rows {
		cells := sanitizeCells(row)
		// Ragged rows are padded so the table stays well-formed.
		for len(cells) < len(header) {
			cells = append(cells, "—")
		}
		if len(cells) > len(header) {
			cells = cells[:len(header)]
		}
		sb.WriteString("| " + strings.Join(cells, " | ") + " |\n")
	}

	return sb.String()
}

func sanitizeCells(cells []string) []string {
	out := make([]string, len(cells))
	for i, c := range cells {
		c = strings.ReplaceAll(c, "|", "\\|")
		c = strings.TrimSpace(strings.ReplaceAll(c, "\n", " "))
		if c == "" {
			c = "—"
		}
		out[i] = c
	}
	return out
}
