package domain

import (
	"errors"
	"strings"
	"time"
)

// DocAnalysis is the result of a completed document summarization job.
type DocAnalysis struct {
	Summary   string `json:"summary"`
	Pages     int    `json:"pages"`
	WordCount int    `json:"word_count"`
}

// Question is the submitted half of a contextual document chat turn.
type Question struct {
	DocumentID string `json:"document_id"`
	Text       string `json:"text"`
}

// Answer is the assistant half of a completed document chat turn.
type Answer struct {
	Text    string `json:"text"`
	PageRef int    `json:"page_ref,omitempty"`
}

// DocChatEntry is the flattened client view of one side of a document turn.
type DocChatEntry struct {
	Role      MessageRole `json:"role"`
	Text      string      `json:"text"`
	PageRef   int         `json:"page_ref,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}

var (
	ErrDocumentNotFound    = errors.New("document not found")
	ErrUnsupportedDocument = errors.New("unsupported document type")
	ErrEmptyQuestion       = errors.New("question text is empty")
)

// IsDocument reports whether the upload is an accepted document format.
func (d DocumentUpload) IsDocument() bool {
	switch {
	case d.MIMEType == "application/pdf",
		d.MIMEType == "application/msword",
		strings.HasPrefix(d.MIMEType, "application/vnd.openxmlformats-officedocument"),
		strings.HasPrefix(d.MIMEType, "text/"):
		return true
	}
	return false
}

// BaseName returns the filename without its extension.
func (d DocumentUpload) BaseName() string {
	name := d.Filename
	if i := strings.LastIndex(name, "."); i > 0 {
		name = name[:i]
	}
	return name
}
