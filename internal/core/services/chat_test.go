package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MickaelSuard/ComiaV2/internal/core/domain"
	"github.com/MickaelSuard/ComiaV2/internal/core/engine"
)

func newChatService(t *testing.T, kv engine.KV, backend *stubBackend) *ChatService {
	t.Helper()
	recorder, _ := testRecorder()
	s, err := NewChatService(testLogger(), kv, NewEventBus(testLogger()), recorder, backend, testCtrlCfg())
	require.NoError(t, err)
	t.Cleanup(s.Shutdown)
	return s
}

func TestChatService_SendMessageRoundTrip(t *testing.T) {
	s := newChatService(t, newMemKV(), &stubBackend{})

	conv, err := s.CreateConversation("")
	require.NoError(t, err)

	turn, err := s.SendMessage(conv.ID, "Bonjour")
	require.NoError(t, err)
	assert.Equal(t, engine.StatusProcessing, turn.Status)

	waitFor(t, func() bool {
		msgs, _ := s.Messages(conv.ID)
		return len(msgs) == 2
	}, "assistant reply never arrived")

	msgs, err := s.Messages(conv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleUser, msgs[0].Role)
	assert.Equal(t, "Bonjour", msgs[0].Content)
	assert.Equal(t, domain.RoleAssistant, msgs[1].Role)
	assert.Equal(t, "echo: Bonjour", msgs[1].Content)

	// The first prompt names an untitled conversation.
	got, err := s.GetConversation(conv.ID)
	require.NoError(t, err)
	assert.Equal(t, "Bonjour", got.Title)
}

func TestChatService_EmptyPromptRejected(t *testing.T) {
	s := newChatService(t, newMemKV(), &stubBackend{})
	conv, _ := s.CreateConversation("test")

	_, err := s.SendMessage(conv.ID, "   ")
	assert.ErrorIs(t, err, domain.ErrEmptyPrompt)

	turns, err := s.Turns(conv.ID)
	require.NoError(t, err)
	assert.Empty(t, turns, "rejected prompt must not create a turn")
}

func TestChatService_UnknownConversation(t *testing.T) {
	s := newChatService(t, newMemKV(), &stubBackend{})

	_, err := s.SendMessage("conv-nope", "hello")
	assert.ErrorIs(t, err, domain.ErrConversationNotFound)

	assert.ErrorIs(t, s.DeleteConversation("conv-nope"), domain.ErrConversationNotFound)
}

func TestChatService_FailedTurnCanBeRetried(t *testing.T) {
	backend := &stubBackend{fail: true}
	s := newChatService(t, newMemKV(), backend)
	conv, _ := s.CreateConversation("retry")

	turn, err := s.SendMessage(conv.ID, "try me")
	require.NoError(t, err)

	waitFor(t, func() bool {
		turns, _ := s.Turns(conv.ID)
		return len(turns) == 1 && turns[0].Status == engine.StatusError
	}, "turn never failed")

	// A failed turn contributes only the user message.
	msgs, _ := s.Messages(conv.ID)
	require.Len(t, msgs, 1)

	backend.setFail(false)
	_, err = s.RetryTurn(conv.ID, turn.ID)
	require.NoError(t, err)

	waitFor(t, func() bool {
		turns, _ := s.Turns(conv.ID)
		return turns[0].Status == engine.StatusCompleted
	}, "retried turn never completed")
}

func TestChatService_DeleteConversationReconcilesSelection(t *testing.T) {
	s := newChatService(t, newMemKV(), &stubBackend{})

	a, _ := s.CreateConversation("first")
	b, _ := s.CreateConversation("second")

	require.True(t, s.Select(b.ID))
	require.NoError(t, s.DeleteConversation(b.ID))

	active, ok := s.ActiveConversation()
	require.True(t, ok)
	assert.Equal(t, a.ID, active.ID)

	require.NoError(t, s.DeleteConversation(a.ID))
	_, ok = s.ActiveConversation()
	assert.False(t, ok)
}

func TestChatService_SearchFiltersByTitle(t *testing.T) {
	s := newChatService(t, newMemKV(), &stubBackend{})

	s.CreateConversation("Compte rendu réunion")
	s.CreateConversation("Notes de projet")

	s.SetSearch("compte")
	visible := s.VisibleConversations()
	require.Len(t, visible, 1)
	assert.Equal(t, "Compte rendu réunion", visible[0].Title)
}

func TestChatService_SearchMatchesMessageBodies(t *testing.T) {
	s := newChatService(t, newMemKV(), &stubBackend{})

	conv, _ := s.CreateConversation("Divers")
	s.CreateConversation("Autre")
	_, err := s.SendMessage(conv.ID, "budget prévisionnel")
	require.NoError(t, err)
	waitFor(t, func() bool {
		turns, _ := s.Turns(conv.ID)
		return len(turns) == 1 && turns[0].Status.Terminal()
	}, "turn never settled")

	s.SetSearch("budget")
	visible := s.VisibleConversations()
	require.Len(t, visible, 1)
	assert.Equal(t, conv.ID, visible[0].ID)
}

func TestChatService_RestoresFromKV(t *testing.T) {
	kv := newMemKV()

	s := newChatService(t, kv, &stubBackend{})
	conv, _ := s.CreateConversation("persisted")
	_, err := s.SendMessage(conv.ID, "hello")
	require.NoError(t, err)

	waitFor(t, func() bool {
		turns, _ := s.Turns(conv.ID)
		return len(turns) == 1 && turns[0].Status == engine.StatusCompleted
	}, "turn never completed")
	s.Shutdown()

	restored := newChatService(t, kv, &stubBackend{})
	assert.Equal(t, 1, restored.Len())

	msgs, err := restored.Messages(conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "echo: hello", msgs[1].Content)
}
