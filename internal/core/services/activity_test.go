package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MickaelSuard/ComiaV2/internal/core/domain"
)

func TestActivityRecorder_BestEffort(t *testing.T) {
	// A recorder without a journal is a no-op, not a panic.
	recorder := NewActivityRecorder(testLogger(), nil)
	recorder.Record(domain.ModuleChat, domain.ActionSubmitted, "x")

	recorder, journal := testRecorder()
	recorder.Record(domain.ModuleChat, domain.ActionSubmitted, "conv-1")
	recorder.Record(domain.ModuleChat, domain.ActionCompleted, "turn-1")

	actions := journal.actions(domain.ModuleChat)
	assert.Equal(t, []string{domain.ActionSubmitted, domain.ActionCompleted}, actions)
}

func TestStatsService_Snapshot(t *testing.T) {
	journal := &memJournal{}
	recorder := NewActivityRecorder(testLogger(), journal)
	stats := NewStatsService(testLogger(), journal)

	stats.RegisterCounter(domain.ModuleChat, func() int { return 3 })
	stats.RegisterCounter(domain.ModuleTranscription, func() int { return 1 })

	recorder.Record(domain.ModuleTranscription, domain.ActionSubmitted, "a.mp3")
	recorder.Record(domain.ModuleTranscription, domain.ActionCompleted, "a.mp3")
	recorder.Record(domain.ModuleKnowledge, domain.ActionSubmitted, "q")
	recorder.Record(domain.ModuleKnowledge, domain.ActionFailed, "q")

	snap := stats.Snapshot(context.Background())

	assert.Equal(t, 3, snap.Items[domain.ModuleChat])
	assert.Equal(t, 1, snap.Items[domain.ModuleTranscription])

	trx := snap.Outcomes[domain.ModuleTranscription]
	assert.Equal(t, int64(1), trx.Submitted)
	assert.Equal(t, int64(1), trx.Completed)

	rag := snap.Outcomes[domain.ModuleKnowledge]
	assert.Equal(t, int64(1), rag.Failed)

	require.Len(t, snap.Recent, 4)
	// Newest first.
	assert.Equal(t, domain.ActionFailed, snap.Recent[0].Action)
	assert.False(t, snap.TakenAt.IsZero())
}

func TestStatsService_SnapshotWithoutJournal(t *testing.T) {
	stats := NewStatsService(testLogger(), nil)
	stats.RegisterCounter(domain.ModuleDocumentation, func() int { return 7 })

	snap := stats.Snapshot(context.Background())
	assert.Equal(t, 7, snap.Items[domain.ModuleDocumentation])
	assert.Empty(t, snap.Recent)
}

func TestStatsService_SnapshotCoversAllModules(t *testing.T) {
	stats := NewStatsService(testLogger(), nil)

	snap := stats.Snapshot(context.Background())
	for _, module := range domain.KnownModules() {
		_, ok := snap.Items[module]
		assert.True(t, ok, "items missing %s", module)
		_, ok = snap.Outcomes[module]
		assert.True(t, ok, "outcomes missing %s", module)
		assert.Zero(t, snap.Items[module])
	}
}
