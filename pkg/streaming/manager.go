package streaming

import (
	"sync"

	"github.com/google/uuid"

	"github.com/metamcp/metamcp/pkg/logger"
)

// subscriberQueueSize bounds each subscriber's outbound queue. A slow
// consumer drops events rather than stalling the publisher.
const subscriberQueueSize = 256

type subscriber struct {
	filter Filter
	ch     chan Event
}

// Manager registers subscribers and fans events out to them.
type Manager struct {
	mu          sync.RWMutex
	subscribers map[uuid.UUID]*subscriber

	// serverChans carries per-backend message streams for scoped
	// subscriptions.
	serverChans map[string]chan Event
}

// NewManager creates an event manager.
func NewManager() *Manager {
	return &Manager{
		subscribers: make(map[uuid.UUID]*subscriber),
		serverChans: make(map[string]chan Event),
	}
}

// Subscribe registers a new subscriber with the given filter. The
// returned channel is closed on Unsubscribe.
func (m *Manager) Subscribe(filter Filter) (uuid.UUID, <-chan Event) {
	id := uuid.New()
	sub := &subscriber{
		filter: filter,
		ch:     make(chan Event, subscriberQueueSize),
	}

	m.mu.Lock()
	m.subscribers[id] = sub
	m.mu.Unlock()

	logger.Debugw("event subscriber registered", "subscriber_id", id)
	return id, sub.ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (m *Manager) Unsubscribe(id uuid.UUID) {
	m.mu.Lock()
	sub, ok := m.subscribers[id]
	if ok {
		delete(m.subscribers, id)
	}
	m.mu.Unlock()

	if ok {
		close(sub.ch)
		logger.Debugw("event subscriber removed", "subscriber_id", id)
	}
}

// SubscriberCount returns the number of active subscribers.
func (m *Manager) SubscriberCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subscribers)
}

// Publish delivers an event to every subscriber whose filter accepts it.
// Delivery is non-blocking; a full queue drops the event for that
// subscriber.
func (m *Manager) Publish(e Event) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for id, sub := range m.subscribers {
		if !sub.filter.ShouldSend(e) {
			continue
		}
		select {
		case sub.ch <- e:
		default:
			logger.Warnw("dropping event for slow subscriber",
				"subscriber_id", id, "event_type", e.Type)
		}
	}
}

// RegisterServer creates a scoped event channel for a backend.
func (m *Manager) RegisterServer(serverID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.serverChans[serverID]; !ok {
		m.serverChans[serverID] = make(chan Event, subscriberQueueSize)
	}
}

// UnregisterServer removes a backend's scoped channel.
func (m *Manager) UnregisterServer(serverID string) {
	m.mu.Lock()
	ch, ok := m.serverChans[serverID]
	if ok {
		delete(m.serverChans, serverID)
	}
	m.mu.Unlock()

	if ok {
		close(ch)
	}
}

// ServerChannel returns the scoped channel for a backend, if registered.
func (m *Manager) ServerChannel(serverID string) (<-chan Event, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ch, ok := m.serverChans[serverID]
	return ch, ok
}

// PublishServerScoped delivers an event to a backend's scoped channel and
// rebroadcasts lifecycle events to all subscribers.
func (m *Manager) PublishServerScoped(serverID string, e Event) {
	m.mu.RLock()
	ch, ok := m.serverChans[serverID]
	m.mu.RUnlock()

	if ok {
		select {
		case ch <- e:
		default:
			logger.Warnw("dropping scoped event for backend", "server_id", serverID, "event_type", e.Type)
		}
	}

	if e.Type == EventServerStarted || e.Type == EventServerStopped {
		m.Publish(e)
	}
}
