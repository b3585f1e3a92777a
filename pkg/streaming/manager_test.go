package streaming

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishDeliversToMatchingSubscribers(t *testing.T) {
	t.Parallel()

	m := NewManager()
	alphaID := uuid.New()
	betaID := uuid.New()

	id, ch := m.Subscribe(Filter{
		EventTypes: []string{EventServerStarted},
		ServerIDs:  []string{alphaID.String()},
	})
	defer m.Unsubscribe(id)

	m.Publish(NewServerStarted(alphaID, "alpha"))
	m.Publish(NewServerStarted(betaID, "beta"))
	m.Publish(NewSystemHealth(1, 2, 1))

	select {
	case e := <-ch:
		assert.Equal(t, EventServerStarted, e.Type)
		assert.Equal(t, alphaID.String(), e.ServerID)
	default:
		t.Fatal("expected alpha start event")
	}

	select {
	case e := <-ch:
		t.Fatalf("unexpected extra event: %+v", e)
	default:
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	t.Parallel()

	m := NewManager()
	id, ch := m.Subscribe(Filter{})
	require.Equal(t, 1, m.SubscriberCount())

	m.Unsubscribe(id)
	assert.Equal(t, 0, m.SubscriberCount())

	_, open := <-ch
	assert.False(t, open)

	// Double unsubscribe is a no-op.
	m.Unsubscribe(id)
}

func TestPublishDropsForSlowSubscriber(t *testing.T) {
	t.Parallel()

	m := NewManager()
	id, ch := m.Subscribe(Filter{})
	defer m.Unsubscribe(id)

	serverID := uuid.New()
	for i := 0; i < subscriberQueueSize+10; i++ {
		m.Publish(NewServerStarted(serverID, "alpha"))
	}

	// The queue holds exactly its capacity; the overflow was dropped
	// without blocking the publisher.
	assert.Len(t, ch, subscriberQueueSize)
}

func TestPublishServerScoped(t *testing.T) {
	t.Parallel()

	m := NewManager()
	serverID := uuid.New()
	m.RegisterServer(serverID.String())

	scoped, ok := m.ServerChannel(serverID.String())
	require.True(t, ok)

	subID, global := m.Subscribe(Filter{})
	defer m.Unsubscribe(subID)

	// Lifecycle events reach both the scoped channel and global
	// subscribers.
	m.PublishServerScoped(serverID.String(), NewServerStarted(serverID, "alpha"))
	assert.Len(t, scoped, 1)
	assert.Len(t, global, 1)

	// Other events stay scoped.
	m.PublishServerScoped(serverID.String(), NewMessage(serverID, "alpha", "hello"))
	assert.Len(t, scoped, 2)
	assert.Len(t, global, 1)

	m.UnregisterServer(serverID.String())
	_, ok = m.ServerChannel(serverID.String())
	assert.False(t, ok)
}
