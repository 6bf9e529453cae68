package ingestion

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// SourceDocument abstracts an uploaded file so the processor never touches
// framework upload types directly.
type SourceDocument interface {
	Name() string
	Content() (string, error)
	Size() int64
}

// BytesDocument is the common in-memory implementation, built from an upload
// or a reader.
type BytesDocument struct {
	name string
	data []byte
}

func NewBytesDocument(name string, data []byte) *BytesDocument {
	return &BytesDocument{name: name, data: data}
}

func NewReaderDocument(name string, r io.Reader) (*BytesDocument, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read document %s: %w", name, err)
	}
	return &BytesDocument{name: name, data: data}, nil
}

func (d *BytesDocument) Name() string { return d.name }

func (d *BytesDocument) Content() (string, error) { return string(d.data), nil }

func (d *BytesDocument) Size() int64 { return int64(len(d.data)) }

func fileKind(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		return "csv"
	case ".html", ".htm":
		return "html"
	default:
		return "text"
	}
}
