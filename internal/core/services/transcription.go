package services

import (
	"context"
	"log/slog"
	"sync"

	"github.com/MickaelSuard/ComiaV2/internal/core/domain"
	"github.com/MickaelSuard/ComiaV2/internal/core/engine"
	"github.com/MickaelSuard/ComiaV2/internal/core/ports"
)

const nsTranscriptions = "transcription:jobs"

// TranscriptionService manages speech-to-text jobs. Uploads are validated,
// queued and processed asynchronously; completed jobs expose the transcript
// and its summary for export.
type TranscriptionService struct {
	logger    *slog.Logger
	activity  *ActivityRecorder
	store     *engine.Store[domain.MediaUpload, domain.Transcript]
	ctrl      *engine.Controller[domain.MediaUpload, domain.Transcript]
	selection *engine.Selection[engine.Entity[domain.MediaUpload, domain.Transcript]]

	mu      sync.RWMutex
	backend ports.TranscriptionBackend
}

// NewTranscriptionService restores persisted jobs and wires the processing
// pipeline.
func NewTranscriptionService(logger *slog.Logger, kv engine.KV, bus *EventBus, activity *ActivityRecorder, backend ports.TranscriptionBackend, ctrlCfg engine.ControllerConfig) (*TranscriptionService, error) {
	store, err := engine.NewStore[domain.MediaUpload, domain.Transcript](engine.StoreOptions{
		IDPrefix:    "trx-",
		PrependNew:  true,
		Persistence: engine.NewKVPersistence(kv, nsTranscriptions),
	})
	if err != nil {
		return nil, err
	}

	s := &TranscriptionService{
		logger:   logger,
		activity: activity,
		store:    store,
	}
	s.backend = backend
	s.selection = engine.NewSelection(
		store.List,
		func(e engine.Entity[domain.MediaUpload, domain.Transcript]) string { return e.ID },
		func(e engine.Entity[domain.MediaUpload, domain.Transcript]) string { return e.Input.Filename },
	)

	proc := engine.ProcessorFunc[domain.MediaUpload, domain.Transcript](func(ctx context.Context, id string, in domain.MediaUpload) (engine.Outcome[domain.Transcript], error) {
		s.mu.RLock()
		b := s.backend
		s.mu.RUnlock()

		transcript, err := b.Transcribe(ctx, in)
		if err != nil {
			return engine.Outcome[domain.Transcript]{}, err
		}
		return engine.Outcome[domain.Transcript]{Result: &transcript}, nil
	})

	s.ctrl = engine.NewController[domain.MediaUpload, domain.Transcript](store, proc, logger, ctrlCfg)
	s.ctrl.OnTransition = func(job engine.Entity[domain.MediaUpload, domain.Transcript]) {
		publishStatus(bus, domain.ModuleTranscription, job.ID, job.Status)
		switch job.Status {
		case engine.StatusCompleted:
			activity.Record(domain.ModuleTranscription, domain.ActionCompleted, job.Input.Filename)
		case engine.StatusError:
			activity.Record(domain.ModuleTranscription, domain.ActionFailed, job.Input.Filename)
		}
	}

	return s, nil
}

// UpdateBackend swaps the transcription backend for future jobs.
func (s *TranscriptionService) UpdateBackend(backend ports.TranscriptionBackend) {
	s.mu.Lock()
	s.backend = backend
	s.mu.Unlock()
}

// Submit queues a new transcription. Non-media uploads are rejected before a
// job is created.
func (s *TranscriptionService) Submit(upload domain.MediaUpload) (engine.Entity[domain.MediaUpload, domain.Transcript], error) {
	if !upload.IsMedia() {
		return engine.Entity[domain.MediaUpload, domain.Transcript]{}, domain.ErrUnsupportedMedia
	}
	job, err := s.ctrl.Submit(upload)
	if err != nil {
		return engine.Entity[domain.MediaUpload, domain.Transcript]{}, err
	}
	s.activity.Record(domain.ModuleTranscription, domain.ActionSubmitted, upload.Filename)
	return job, nil
}

// Retry re-runs a failed transcription with the original upload.
func (s *TranscriptionService) Retry(id string) (engine.Entity[domain.MediaUpload, domain.Transcript], error) {
	job, err := s.ctrl.Retry(id)
	if err != nil {
		return engine.Entity[domain.MediaUpload, domain.Transcript]{}, err
	}
	s.activity.Record(domain.ModuleTranscription, domain.ActionRetried, job.Input.Filename)
	return job, nil
}

// Delete removes a job, cancelling it if still processing.
func (s *TranscriptionService) Delete(id string) error {
	job, ok := s.store.Get(id)
	if err := s.ctrl.Delete(id); err != nil {
		return err
	}
	if ok {
		s.activity.Record(domain.ModuleTranscription, domain.ActionDeleted, job.Input.Filename)
	}
	s.selection.Reconcile()
	return nil
}

// Get returns one job.
func (s *TranscriptionService) Get(id string) (engine.Entity[domain.MediaUpload, domain.Transcript], bool) {
	return s.store.Get(id)
}

// List returns all jobs, newest first.
func (s *TranscriptionService) List() []engine.Entity[domain.MediaUpload, domain.Transcript] {
	return s.store.List()
}

// Len returns the number of jobs.
func (s *TranscriptionService) Len() int {
	return s.store.Len()
}

// Select activates a job for the detail view.
func (s *TranscriptionService) Select(id string) bool {
	return s.selection.Select(id)
}

// Active returns the selected job, if any.
func (s *TranscriptionService) Active() (engine.Entity[domain.MediaUpload, domain.Transcript], bool) {
	return s.selection.Active()
}

// SetSearch filters the job list by filename substring, case-insensitively.
func (s *TranscriptionService) SetSearch(query string) {
	s.selection.SetSearch(query)
}

// Visible returns the jobs matching the current search.
func (s *TranscriptionService) Visible() []engine.Entity[domain.MediaUpload, domain.Transcript] {
	return s.selection.Visible()
}

// Shutdown cancels in-flight jobs.
func (s *TranscriptionService) Shutdown() {
	s.ctrl.Shutdown()
}
