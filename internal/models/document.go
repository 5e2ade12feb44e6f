package models

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"strings"
)

// Format is the declared format of an uploaded document.
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatText Format = "txt"
	FormatHTML Format = "html"
)

// Supported reports whether documents of this format can be loaded.
func (f Format) Supported() bool {
	return f == FormatPDF || f == FormatText || f == FormatHTML
}

// FormatFromFilename guesses the format from the file extension.
func FormatFromFilename(name string) Format {
	switch strings.ToLower(strings.TrimPrefix(filepath.Ext(name), ".")) {
	case "pdf":
		return FormatPDF
	case "txt", "text", "md":
		return FormatText
	case "html", "htm":
		return FormatHTML
	}
	return ""
}

// Document is a raw upload. It is consumed entirely during ingestion.
type Document struct {
	ID       string
	Filename string
	Format   Format
	Data     []byte
	Metadata map[string]interface{}
}

// NewDocument builds a Document whose ID is derived from the filename and
// the content, so the same upload always gets the same ID.
func NewDocument(filename string, format Format, data []byte) Document {
	if format == "" {
		format = FormatFromFilename(filename)
	}
	h := sha256.New()
	h.Write([]byte(filepath.Base(filename)))
	h.Write([]byte{0})
	h.Write(data)
	return Document{
		ID:       hex.EncodeToString(h.Sum(nil)[:8]),
		Filename: filename,
		Format:   format,
		Data:     data,
		Metadata: map[string]interface{}{},
	}
}

// Page is one source text of a document. PDFs have one per page.
type Page struct {
	DocumentID string
	Number     int
	Text       string
}

// Segment is an ordered chunk of a document's text.
type Segment struct {
	Text             string
	SourceDocumentID string
	Source           string
	Page             int
	SequenceIndex    int
	Start            int
	CharLength       int
}

// IndexRecord is a segment together with its embedding.
type IndexRecord struct {
	ID        string
	Segment   Segment
	Embedding []float32
	Metadata  map[string]interface{}
}

// ScoredSegment is a query hit. Higher scores are better.
type ScoredSegment struct {
	Segment Segment
	Score   float64
}
