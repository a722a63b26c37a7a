package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MickaelSuard/ComiaV2/internal/core/domain"
	"github.com/MickaelSuard/ComiaV2/internal/core/engine"
)

func newDocumentService(t *testing.T, kv engine.KV, backend *stubBackend) *DocumentService {
	t.Helper()
	recorder, _ := testRecorder()
	s, err := NewDocumentService(testLogger(), kv, NewEventBus(testLogger()), recorder, backend, testCtrlCfg())
	require.NoError(t, err)
	t.Cleanup(s.Shutdown)
	return s
}

func TestDocumentService_UploadAnalyzes(t *testing.T) {
	s := newDocumentService(t, newMemKV(), &stubBackend{})

	job, err := s.Upload(pdfUpload("rapport.pdf"))
	require.NoError(t, err)

	waitFor(t, func() bool {
		got, ok := s.Get(job.ID)
		return ok && got.Status == engine.StatusCompleted
	}, "analysis never completed")

	got, _ := s.Get(job.ID)
	require.NotNil(t, got.Result)
	assert.Equal(t, "summary of rapport.pdf", got.Result.Summary)
	assert.Equal(t, 2, got.Result.Pages)
}

func TestDocumentService_RejectsUnsupportedFormat(t *testing.T) {
	s := newDocumentService(t, newMemKV(), &stubBackend{})

	_, err := s.Upload(domain.DocumentUpload{Filename: "movie.mp4", MIMEType: "video/mp4"})
	assert.ErrorIs(t, err, domain.ErrUnsupportedDocument)
	assert.Equal(t, 0, s.Len())
}

func TestDocumentService_AskRequiresCompletedAnalysis(t *testing.T) {
	backend := &stubBackend{fail: true}
	s := newDocumentService(t, newMemKV(), backend)

	job, err := s.Upload(pdfUpload("contrat.pdf"))
	require.NoError(t, err)

	waitFor(t, func() bool {
		got, ok := s.Get(job.ID)
		return ok && got.Status == engine.StatusError
	}, "analysis never failed")

	// No chat with a document that failed to analyze.
	_, err = s.Ask(job.ID, "Que dit la clause 3 ?")
	assert.ErrorIs(t, err, domain.ErrDocumentNotFound)

	backend.setFail(false)
	_, err = s.Retry(job.ID)
	require.NoError(t, err)
	waitFor(t, func() bool {
		got, ok := s.Get(job.ID)
		return ok && got.Status == engine.StatusCompleted
	}, "retried analysis never completed")

	turn, err := s.Ask(job.ID, "Que dit la clause 3 ?")
	require.NoError(t, err)
	assert.Equal(t, engine.StatusProcessing, turn.Status)

	waitFor(t, func() bool {
		chat, _ := s.Chat(job.ID)
		return len(chat) == 2
	}, "answer never arrived")

	chat, _ := s.Chat(job.ID)
	assert.Equal(t, domain.RoleUser, chat[0].Role)
	assert.Equal(t, domain.RoleAssistant, chat[1].Role)
	assert.Equal(t, "answer: Que dit la clause 3 ?", chat[1].Text)
	assert.Equal(t, 1, chat[1].PageRef)
}

func TestDocumentService_AskValidation(t *testing.T) {
	s := newDocumentService(t, newMemKV(), &stubBackend{})

	_, err := s.Ask("sum-missing", "hello")
	assert.ErrorIs(t, err, domain.ErrDocumentNotFound)

	job, _ := s.Upload(pdfUpload("note.pdf"))
	waitFor(t, func() bool {
		got, ok := s.Get(job.ID)
		return ok && got.Status == engine.StatusCompleted
	}, "analysis never completed")

	_, err = s.Ask(job.ID, "   ")
	assert.ErrorIs(t, err, domain.ErrEmptyQuestion)
}

func TestDocumentService_DeleteCascadesChat(t *testing.T) {
	kv := newMemKV()
	s := newDocumentService(t, kv, &stubBackend{})

	job, _ := s.Upload(pdfUpload("temp.pdf"))
	waitFor(t, func() bool {
		got, ok := s.Get(job.ID)
		return ok && got.Status == engine.StatusCompleted
	}, "analysis never completed")

	_, err := s.Ask(job.ID, "question")
	require.NoError(t, err)
	waitFor(t, func() bool {
		chat, _ := s.Chat(job.ID)
		return len(chat) == 2
	}, "answer never arrived")

	require.NoError(t, s.Delete(job.ID))
	_, err = s.Chat(job.ID)
	assert.ErrorIs(t, err, domain.ErrDocumentNotFound)

	restored := newDocumentService(t, kv, &stubBackend{})
	assert.Equal(t, 0, restored.Len())
}

func TestDocumentService_RestoresChatFromKV(t *testing.T) {
	kv := newMemKV()

	s := newDocumentService(t, kv, &stubBackend{})
	job, _ := s.Upload(pdfUpload("archive.pdf"))
	waitFor(t, func() bool {
		got, ok := s.Get(job.ID)
		return ok && got.Status == engine.StatusCompleted
	}, "analysis never completed")

	_, err := s.Ask(job.ID, "où est la signature ?")
	require.NoError(t, err)
	waitFor(t, func() bool {
		chat, _ := s.Chat(job.ID)
		return len(chat) == 2
	}, "answer never arrived")
	s.Shutdown()

	restored := newDocumentService(t, kv, &stubBackend{})
	chat, err := restored.Chat(job.ID)
	require.NoError(t, err)
	require.Len(t, chat, 2)
	assert.Equal(t, "answer: où est la signature ?", chat[1].Text)
}
