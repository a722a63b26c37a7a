package ports

import (
	"context"

	"github.com/MickaelSuard/ComiaV2/internal/core/domain"
)

// ChatBackend abstracts the conversational model (local simulation or a
// remote inference server).
type ChatBackend interface {
	// Complete produces the assistant reply for a prompt, given the prior
	// turns of the conversation.
	Complete(ctx context.Context, history []domain.Message, prompt domain.Prompt) (domain.Reply, error)
}

// TranscriptionBackend abstracts speech-to-text processing.
type TranscriptionBackend interface {
	// Transcribe converts an uploaded media file into a transcript with a
	// summary.
	Transcribe(ctx context.Context, upload domain.MediaUpload) (domain.Transcript, error)
}

// SearchBackend abstracts the retrieval side of the knowledge module:
// indexing uploaded documents into a service and answering queries across
// service corpora.
type SearchBackend interface {
	// Index ingests a document into the given service's corpus.
	Index(ctx context.Context, serviceID domain.ServiceID, upload domain.DocumentUpload) (domain.IndexedDocument, error)

	// Search answers a query against the given services.
	Search(ctx context.Context, query domain.Query) ([]domain.SearchHit, error)
}

// SummaryBackend abstracts document analysis: summarization and grounded
// question answering over a single document.
type SummaryBackend interface {
	// Analyze produces the summary and metadata for an uploaded document.
	Analyze(ctx context.Context, upload domain.DocumentUpload) (domain.DocAnalysis, error)

	// Answer responds to a question about a previously analyzed document.
	Answer(ctx context.Context, question domain.Question) (domain.Answer, error)
}

// ActivityRepository abstracts the persistent activity journal (DuckDB).
type ActivityRepository interface {
	// RecordEvent appends one activity event.
	RecordEvent(ctx context.Context, event domain.ActivityEvent) error

	// ListRecent returns the newest events, newest first.
	ListRecent(ctx context.Context, limit int) ([]domain.ActivityEvent, error)

	// CountByModule aggregates submitted/completed/failed totals per module.
	CountByModule(ctx context.Context) (map[domain.ModuleKind]domain.ModuleStats, error)

	// Close releases the underlying database handle.
	Close() error
}
