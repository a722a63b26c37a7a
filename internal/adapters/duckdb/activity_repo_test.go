package duckdb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MickaelSuard/ComiaV2/internal/core/domain"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := NewRepository("") // in-memory
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestRepository_RecordAndList(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	first := domain.NewActivityEvent(domain.ModuleChat, domain.ActionSubmitted, "conv-1")
	second := domain.NewActivityEvent(domain.ModuleTranscription, domain.ActionCompleted, "a.mp3")
	second.OccurredAt = first.OccurredAt.Add(1_000_000) // strictly later

	require.NoError(t, repo.RecordEvent(ctx, first))
	require.NoError(t, repo.RecordEvent(ctx, second))

	recent, err := repo.ListRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, second.ID, recent[0].ID)
	assert.Equal(t, first.ID, recent[1].ID)

	limited, err := repo.ListRecent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, second.ID, limited[0].ID)
}

func TestRepository_ListEmpty(t *testing.T) {
	repo := newTestRepo(t)

	recent, err := repo.ListRecent(context.Background(), 10)
	require.NoError(t, err)
	assert.NotNil(t, recent)
	assert.Empty(t, recent)
}

func TestRepository_CountByModule(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	events := []struct {
		module domain.ModuleKind
		action string
	}{
		{domain.ModuleChat, domain.ActionSubmitted},
		{domain.ModuleChat, domain.ActionCompleted},
		{domain.ModuleChat, domain.ActionSubmitted},
		{domain.ModuleChat, domain.ActionFailed},
		{domain.ModuleKnowledge, domain.ActionSubmitted},
		{domain.ModuleKnowledge, domain.ActionDeleted}, // not counted
	}
	for _, e := range events {
		require.NoError(t, repo.RecordEvent(ctx, domain.NewActivityEvent(e.module, e.action, "")))
	}

	counts, err := repo.CountByModule(ctx)
	require.NoError(t, err)

	chat := counts[domain.ModuleChat]
	assert.Equal(t, int64(2), chat.Submitted)
	assert.Equal(t, int64(1), chat.Completed)
	assert.Equal(t, int64(1), chat.Failed)

	rag := counts[domain.ModuleKnowledge]
	assert.Equal(t, int64(1), rag.Submitted)
	assert.Equal(t, int64(0), rag.Completed)
}
