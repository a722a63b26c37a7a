package services

import (
	"log/slog"
	"sync"

	"github.com/MickaelSuard/ComiaV2/internal/core/domain"
)

type EventType string

const (
	EventTypeStatus EventType = "status"
	EventTypeLog    EventType = "log"
)

// BroadcastChannel is the pseudo entity id used for events addressed to
// every client rather than one entity's watchers.
const BroadcastChannel = "broadcast"

type Event struct {
	EntityID  string
	Module    domain.ModuleKind
	Type      EventType
	Data      string // JSON payload or raw text
	Timestamp int64
}

type EventBus struct {
	logger     *slog.Logger
	mu         sync.RWMutex
	subs       map[string][]chan Event // Key: EntityID
	globalSubs []chan Event
}

func NewEventBus(logger *slog.Logger) *EventBus {
	return &EventBus{
		logger: logger,
		subs:   make(map[string][]chan Event),
	}
}

// Subscribe returns a channel that receives events for a specific entity
func (b *EventBus) Subscribe(entityID string) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, 100) // Buffer to prevent blocking publisher
	b.subs[entityID] = append(b.subs[entityID], ch)

	unsub := func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		subscribers := b.subs[entityID]
		for i, sub := range subscribers {
			if sub == ch {
				close(ch)
				b.subs[entityID] = append(subscribers[:i], subscribers[i+1:]...)
				break
			}
		}
		if len(b.subs[entityID]) == 0 {
			delete(b.subs, entityID)
		}
	}

	return ch, unsub
}

// SubscribeGlobal returns a channel that receives every published event,
// regardless of entity.
func (b *EventBus) SubscribeGlobal() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, 100)
	b.globalSubs = append(b.globalSubs, ch)

	unsub := func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		for i, sub := range b.globalSubs {
			if sub == ch {
				close(ch)
				b.globalSubs = append(b.globalSubs[:i], b.globalSubs[i+1:]...)
				break
			}
		}
	}

	return ch, unsub
}

// Publish sends an event to the entity's subscribers and all global
// subscribers
func (b *EventBus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs[e.EntityID] {
		b.send(ch, e)
	}
	for _, ch := range b.globalSubs {
		b.send(ch, e)
	}
}

func (b *EventBus) send(ch chan Event, e Event) {
	select {
	case ch <- e:
	default:
		// If channel is full, drop event to prevent blocking application
		b.logger.Warn("event bus channel full, dropping event", "entity_id", e.EntityID)
	}
}
