package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ServiceID uniquely identifies a knowledge service.
type ServiceID string

// ServiceKind classifies what a knowledge service indexes.
type ServiceKind string

const (
	ServiceKindDocument ServiceKind = "document"
	ServiceKindDatabase ServiceKind = "database"
	ServiceKindWeb      ServiceKind = "web"
	ServiceKindCustom   ServiceKind = "custom"
)

// ServiceStatus is the operational state of a knowledge service. It is
// independent of job status: services are toggled by the user, not by jobs.
type ServiceStatus string

const (
	ServiceStatusActive      ServiceStatus = "active"
	ServiceStatusInactive    ServiceStatus = "inactive"
	ServiceStatusConfiguring ServiceStatus = "configuring"
)

// RAGService is a retrieval knowledge base. Its documents live in a nested
// per-service collection of indexing jobs.
type RAGService struct {
	ID          ServiceID     `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Kind        ServiceKind   `json:"kind"`
	Status      ServiceStatus `json:"status"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// DocumentUpload is the immutable input of a document indexing or
// summarization job.
type DocumentUpload struct {
	Filename  string `json:"filename"`
	SizeBytes int64  `json:"size_bytes"`
	MIMEType  string `json:"mime_type"`
}

// IndexedDocument is the result of a completed indexing job.
type IndexedDocument struct {
	Content string `json:"content"`
	Chunks  int    `json:"chunks"`
}

// Query is the input of a knowledge search job. Empty ServiceIDs means
// "search every active service".
type Query struct {
	Text       string      `json:"text"`
	ServiceIDs []ServiceID `json:"service_ids,omitempty"`
}

// SearchHit is one ranked result of a completed search job.
type SearchHit struct {
	Title     string  `json:"title"`
	Content   string  `json:"content"`
	Source    string  `json:"source"`
	Relevance float64 `json:"relevance"`
}

var (
	ErrServiceNotFound = errors.New("knowledge service not found")
	ErrEmptyQuery      = errors.New("query text is empty")
)

// NewServiceID generates a service ID (svc-<uuid>).
func NewServiceID() ServiceID {
	return ServiceID("svc-" + uuid.NewString())
}
