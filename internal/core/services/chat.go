package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/MickaelSuard/ComiaV2/internal/core/domain"
	"github.com/MickaelSuard/ComiaV2/internal/core/engine"
	"github.com/MickaelSuard/ComiaV2/internal/core/ports"
)

const nsConversations = "chat:conversations"

// historyWindow caps the messages handed to the backend per completion.
const historyWindow = 20

func turnNamespace(id domain.ConversationID) string {
	return "chat:turns:" + string(id)
}

// conversationState pairs a conversation's metadata with its nested turn
// collection and the controller driving it.
type conversationState struct {
	meta  domain.Conversation
	turns *engine.Store[domain.Prompt, domain.Reply]
	ctrl  *engine.Controller[domain.Prompt, domain.Reply]
}

// ChatService manages multi-turn conversations. Each conversation owns its
// own turn collection; a turn is the asynchronous unit of work (prompt in,
// assistant reply out).
type ChatService struct {
	logger   *slog.Logger
	kv       engine.KV
	bus      *EventBus
	activity *ActivityRecorder
	ctrlCfg  engine.ControllerConfig

	mu        sync.RWMutex
	backend   ports.ChatBackend
	convs     map[domain.ConversationID]*conversationState
	order     []domain.ConversationID
	selection *engine.Selection[domain.Conversation]
}

// NewChatService restores persisted conversations and their turns from the
// KV store.
func NewChatService(logger *slog.Logger, kv engine.KV, bus *EventBus, activity *ActivityRecorder, backend ports.ChatBackend, ctrlCfg engine.ControllerConfig) (*ChatService, error) {
	s := &ChatService{
		logger:   logger,
		kv:       kv,
		bus:      bus,
		activity: activity,
		ctrlCfg:  ctrlCfg,
		backend:  backend,
		convs:    make(map[domain.ConversationID]*conversationState),
	}
	s.selection = engine.NewSelection(
		s.Conversations,
		func(c domain.Conversation) string { return string(c.ID) },
		s.searchText,
	)

	if err := s.restore(); err != nil {
		return nil, fmt.Errorf("restore conversations: %w", err)
	}
	return s, nil
}

// UpdateBackend swaps the chat backend. In-flight turns keep the backend
// they started with.
func (s *ChatService) UpdateBackend(backend ports.ChatBackend) {
	s.mu.Lock()
	s.backend = backend
	s.mu.Unlock()
}

// CreateConversation starts an empty conversation. An empty title is allowed;
// it is filled in from the first prompt.
func (s *ChatService) CreateConversation(title string) (domain.Conversation, error) {
	now := time.Now().UTC()
	conv := domain.Conversation{
		ID:        domain.NewConversationID(),
		Title:     strings.TrimSpace(title),
		CreatedAt: now,
		UpdatedAt: now,
	}

	state, err := s.newState(conv)
	if err != nil {
		return domain.Conversation{}, err
	}

	s.mu.Lock()
	s.convs[conv.ID] = state
	s.order = append([]domain.ConversationID{conv.ID}, s.order...)
	s.mu.Unlock()

	if err := s.persistMeta(conv); err != nil {
		return domain.Conversation{}, err
	}
	return conv, nil
}

// Conversations lists all conversations, newest first.
func (s *ChatService) Conversations() []domain.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Conversation, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.convs[id].meta)
	}
	return out
}

// GetConversation returns one conversation's metadata.
func (s *ChatService) GetConversation(id domain.ConversationID) (domain.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.convs[id]
	if !ok {
		return domain.Conversation{}, domain.ErrConversationNotFound
	}
	return state.meta, nil
}

// RenameConversation replaces the conversation title.
func (s *ChatService) RenameConversation(id domain.ConversationID, title string) (domain.Conversation, error) {
	s.mu.Lock()
	state, ok := s.convs[id]
	if !ok {
		s.mu.Unlock()
		return domain.Conversation{}, domain.ErrConversationNotFound
	}
	state.meta.Title = strings.TrimSpace(title)
	state.meta.UpdatedAt = time.Now().UTC()
	meta := state.meta
	s.mu.Unlock()

	if err := s.persistMeta(meta); err != nil {
		return domain.Conversation{}, err
	}
	return meta, nil
}

// DeleteConversation removes a conversation and all of its turns, cancelling
// any turn still processing. The active selection falls back to the first
// remaining conversation.
func (s *ChatService) DeleteConversation(id domain.ConversationID) error {
	s.mu.Lock()
	state, ok := s.convs[id]
	if !ok {
		s.mu.Unlock()
		return domain.ErrConversationNotFound
	}
	delete(s.convs, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.mu.Unlock()

	state.ctrl.Shutdown()
	if err := clearNamespace(s.kv, turnNamespace(id)); err != nil {
		s.logger.Error("failed to clear conversation turns", "conversation_id", id, "error", err)
	}
	if err := s.kv.Delete(nsConversations, string(id)); err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}

	s.selection.Reconcile()
	s.activity.Record(domain.ModuleChat, domain.ActionDeleted, string(id))
	return nil
}

// Select activates a conversation. Unknown ids leave the selection as is.
func (s *ChatService) Select(id domain.ConversationID) bool {
	return s.selection.Select(string(id))
}

// ActiveConversation returns the selected conversation, if any.
func (s *ChatService) ActiveConversation() (domain.Conversation, bool) {
	return s.selection.Active()
}

// SetSearch filters the conversation list by a case-insensitive substring of
// the title.
func (s *ChatService) SetSearch(query string) {
	s.selection.SetSearch(query)
}

// VisibleConversations returns the conversations matching the current search.
func (s *ChatService) VisibleConversations() []domain.Conversation {
	return s.selection.Visible()
}

// SendMessage submits a new turn: the prompt is recorded immediately and the
// assistant reply arrives asynchronously.
func (s *ChatService) SendMessage(id domain.ConversationID, text string) (engine.Entity[domain.Prompt, domain.Reply], error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return engine.Entity[domain.Prompt, domain.Reply]{}, domain.ErrEmptyPrompt
	}

	s.mu.Lock()
	state, ok := s.convs[id]
	if !ok {
		s.mu.Unlock()
		return engine.Entity[domain.Prompt, domain.Reply]{}, domain.ErrConversationNotFound
	}
	if state.meta.Title == "" {
		state.meta.Title = truncateTitle(text)
	}
	state.meta.UpdatedAt = time.Now().UTC()
	meta := state.meta
	s.mu.Unlock()

	if err := s.persistMeta(meta); err != nil {
		return engine.Entity[domain.Prompt, domain.Reply]{}, err
	}

	turn, err := state.ctrl.Submit(domain.Prompt{ConversationID: id, Text: text})
	if err != nil {
		return engine.Entity[domain.Prompt, domain.Reply]{}, err
	}
	s.activity.Record(domain.ModuleChat, domain.ActionSubmitted, string(id))
	return turn, nil
}

// RetryTurn re-runs a failed turn.
func (s *ChatService) RetryTurn(id domain.ConversationID, turnID string) (engine.Entity[domain.Prompt, domain.Reply], error) {
	s.mu.RLock()
	state, ok := s.convs[id]
	s.mu.RUnlock()
	if !ok {
		return engine.Entity[domain.Prompt, domain.Reply]{}, domain.ErrConversationNotFound
	}
	turn, err := state.ctrl.Retry(turnID)
	if err != nil {
		return engine.Entity[domain.Prompt, domain.Reply]{}, err
	}
	s.activity.Record(domain.ModuleChat, domain.ActionRetried, turnID)
	return turn, nil
}

// DeleteTurn removes a turn from a conversation, cancelling it if in flight.
func (s *ChatService) DeleteTurn(id domain.ConversationID, turnID string) error {
	s.mu.RLock()
	state, ok := s.convs[id]
	s.mu.RUnlock()
	if !ok {
		return domain.ErrConversationNotFound
	}
	return state.ctrl.Delete(turnID)
}

// Turns returns the conversation's turns in submission order.
func (s *ChatService) Turns(id domain.ConversationID) ([]engine.Entity[domain.Prompt, domain.Reply], error) {
	s.mu.RLock()
	state, ok := s.convs[id]
	s.mu.RUnlock()
	if !ok {
		return nil, domain.ErrConversationNotFound
	}
	return state.turns.List(), nil
}

// Messages returns the conversation flattened into the transcript clients
// render: each turn contributes the user prompt and, once completed, the
// assistant reply.
func (s *ChatService) Messages(id domain.ConversationID) ([]domain.Message, error) {
	turns, err := s.Turns(id)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Message, 0, 2*len(turns))
	for _, turn := range turns {
		out = append(out, domain.Message{
			Role:      domain.RoleUser,
			Content:   turn.Input.Text,
			CreatedAt: turn.CreatedAt,
		})
		if turn.Status == engine.StatusCompleted && turn.Result != nil {
			out = append(out, domain.Message{
				Role:      domain.RoleAssistant,
				Content:   turn.Result.Text,
				CreatedAt: turn.UpdatedAt,
			})
		}
	}
	return out, nil
}

// Shutdown cancels all in-flight turns across conversations.
func (s *ChatService) Shutdown() {
	s.mu.RLock()
	states := make([]*conversationState, 0, len(s.convs))
	for _, state := range s.convs {
		states = append(states, state)
	}
	s.mu.RUnlock()

	for _, state := range states {
		state.ctrl.Shutdown()
	}
}

// Len returns the number of conversations.
func (s *ChatService) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

func (s *ChatService) newState(conv domain.Conversation) (*conversationState, error) {
	store, err := engine.NewStore[domain.Prompt, domain.Reply](engine.StoreOptions{
		IDPrefix:    "turn-",
		Persistence: engine.NewKVPersistence(s.kv, turnNamespace(conv.ID)),
	})
	if err != nil {
		return nil, err
	}

	proc := engine.ProcessorFunc[domain.Prompt, domain.Reply](func(ctx context.Context, turnID string, in domain.Prompt) (engine.Outcome[domain.Reply], error) {
		history := s.historyBefore(in.ConversationID, turnID)
		s.mu.RLock()
		backend := s.backend
		s.mu.RUnlock()

		reply, err := backend.Complete(ctx, history, in)
		if err != nil {
			return engine.Outcome[domain.Reply]{}, err
		}
		return engine.Outcome[domain.Reply]{Result: &reply}, nil
	})

	ctrl := engine.NewController[domain.Prompt, domain.Reply](store, proc, s.logger, s.ctrlCfg)
	ctrl.OnTransition = func(turn engine.Entity[domain.Prompt, domain.Reply]) {
		publishStatus(s.bus, domain.ModuleChat, turn.ID, turn.Status)
		// SSE clients watch the conversation, not individual turns.
		publishStatus(s.bus, domain.ModuleChat, string(conv.ID), turn.Status)
		switch turn.Status {
		case engine.StatusCompleted:
			s.activity.Record(domain.ModuleChat, domain.ActionCompleted, turn.ID)
		case engine.StatusError:
			s.activity.Record(domain.ModuleChat, domain.ActionFailed, turn.ID)
		}
	}

	return &conversationState{meta: conv, turns: store, ctrl: ctrl}, nil
}

// searchText is what conversation search matches against: the title plus
// every prompt and reply in the conversation.
func (s *ChatService) searchText(conv domain.Conversation) string {
	var b strings.Builder
	b.WriteString(conv.Title)

	s.mu.RLock()
	state, ok := s.convs[conv.ID]
	s.mu.RUnlock()
	if !ok {
		return b.String()
	}

	for _, turn := range state.turns.List() {
		b.WriteByte(' ')
		b.WriteString(turn.Input.Text)
		if turn.Result != nil {
			b.WriteByte(' ')
			b.WriteString(turn.Result.Text)
		}
	}
	return b.String()
}

// historyBefore flattens the completed turns preceding the one being
// processed, so the backend sees the conversation so far.
func (s *ChatService) historyBefore(id domain.ConversationID, turnID string) []domain.Message {
	s.mu.RLock()
	state, ok := s.convs[id]
	s.mu.RUnlock()
	if !ok {
		return nil
	}

	var out []domain.Message
	for _, turn := range state.turns.List() {
		if turn.ID == turnID {
			break
		}
		if turn.Status != engine.StatusCompleted || turn.Result == nil {
			continue
		}
		out = append(out,
			domain.Message{Role: domain.RoleUser, Content: turn.Input.Text, CreatedAt: turn.CreatedAt},
			domain.Message{Role: domain.RoleAssistant, Content: turn.Result.Text, CreatedAt: turn.UpdatedAt},
		)
	}
	// Sliding window: the backend sees only the most recent exchanges.
	if len(out) > historyWindow {
		out = out[len(out)-historyWindow:]
	}
	return out
}

func (s *ChatService) persistMeta(conv domain.Conversation) error {
	data, err := marshalJSON(conv)
	if err != nil {
		return err
	}
	if err := s.kv.Put(nsConversations, string(conv.ID), data); err != nil {
		return fmt.Errorf("persist conversation: %w", err)
	}
	return nil
}

func (s *ChatService) restore() error {
	keys, err := s.kv.List(nsConversations, "")
	if err != nil {
		return err
	}

	restored := make([]domain.Conversation, 0, len(keys))
	for _, key := range keys {
		data, err := s.kv.Get(nsConversations, key)
		if err != nil {
			continue
		}
		var conv domain.Conversation
		if err := unmarshalJSON(data, &conv); err != nil {
			s.logger.Warn("skipping corrupt conversation record", "key", key, "error", err)
			continue
		}
		restored = append(restored, conv)
	}

	// Newest first, matching creation order.
	sort.Slice(restored, func(i, j int) bool {
		return restored[i].CreatedAt.After(restored[j].CreatedAt)
	})

	for _, conv := range restored {
		state, err := s.newState(conv)
		if err != nil {
			return err
		}
		s.convs[conv.ID] = state
		s.order = append(s.order, conv.ID)
	}
	return nil
}

func truncateTitle(text string) string {
	const max = 48
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max]) + "…"
}
