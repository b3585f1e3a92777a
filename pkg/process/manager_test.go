//go:build !windows

package process

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metamcp/metamcp/pkg/rpc"
	"github.com/metamcp/metamcp/pkg/streaming"
)

// catConfig runs cat, which echoes stdin to stdout and exits when stdin
// closes. A convenient stand-in for a stdio backend.
func catConfig(name string) Config {
	return Config{Name: name, Command: "cat"}
}

func TestSpawnAndStop(t *testing.T) {
	t.Parallel()

	m := NewManager(nil)
	id, err := m.Spawn(catConfig("alpha"))
	require.NoError(t, err)

	status, err := m.Status(id)
	require.NoError(t, err)
	assert.Equal(t, StateRunning, status.State)
	assert.Equal(t, "alpha", status.Name)
	assert.NotZero(t, status.PID)

	require.NoError(t, m.Stop(id))

	// Stop drops the handle from the registry.
	_, err = m.Status(id)
	assert.Error(t, err)
	req, err := rpc.NewRequest(1, "ping", nil)
	require.NoError(t, err)
	assert.Error(t, m.SendMessage(id, req))
}

func TestSpawnRejectsEmptyCommand(t *testing.T) {
	t.Parallel()

	m := NewManager(nil)
	_, err := m.Spawn(Config{Name: "empty"})
	assert.Error(t, err)
}

func TestSpawnRejectsMissingBinary(t *testing.T) {
	t.Parallel()

	m := NewManager(nil)
	_, err := m.Spawn(Config{Name: "missing", Command: "/nonexistent/binary"})
	assert.Error(t, err)
}

func TestSendAndReadMessage(t *testing.T) {
	t.Parallel()

	m := NewManager(nil)
	id, err := m.Spawn(catConfig("echo"))
	require.NoError(t, err)
	defer func() {
		_ = m.Stop(id)
	}()

	req, err := rpc.NewRequest(7, "ping", nil)
	require.NoError(t, err)
	require.NoError(t, m.SendMessage(id, req))

	// cat echoes the framed message back unchanged.
	msg, err := m.ReadMessage(id)
	require.NoError(t, err)
	assert.Equal(t, "ping", msg.Method)
	assert.Equal(t, float64(7), msg.ID)
}

func TestSendMessageUnknownID(t *testing.T) {
	t.Parallel()

	m := NewManager(nil)
	req, err := rpc.NewRequest(1, "ping", nil)
	require.NoError(t, err)

	err = m.SendMessage(uuid.New(), req)
	assert.Error(t, err)
}

func TestRestartGetsNewID(t *testing.T) {
	t.Parallel()

	m := NewManager(nil)
	oldID, err := m.Spawn(catConfig("alpha"))
	require.NoError(t, err)

	newID, err := m.Restart(oldID)
	require.NoError(t, err)
	assert.NotEqual(t, oldID, newID)

	status, err := m.Status(newID)
	require.NoError(t, err)
	assert.Equal(t, StateRunning, status.State)
	assert.Equal(t, "alpha", status.Name)

	_, err = m.Status(oldID)
	assert.Error(t, err, "old handle is gone after restart")

	require.NoError(t, m.Stop(newID))
}

func TestWaitRecordsUnexpectedExit(t *testing.T) {
	t.Parallel()

	m := NewManager(nil)
	id, err := m.Spawn(Config{Name: "fail", Command: "false"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		status, err := m.Status(id)
		return err == nil && status.State == StateFailed
	}, 5*time.Second, 20*time.Millisecond)

	status, _ := m.Status(id)
	assert.NotEmpty(t, status.Reason)
	m.Remove(id)
}

func TestCleanExitWithoutStopIsFailure(t *testing.T) {
	t.Parallel()

	m := NewManager(nil)
	id, err := m.Spawn(Config{Name: "oneshot", Command: "true"})
	require.NoError(t, err)

	// A status-0 exit that nobody asked for is still a failure: the
	// supervisor has to notice it and publish a stop event.
	require.Eventually(t, func() bool {
		status, err := m.Status(id)
		return err == nil && status.State == StateFailed
	}, 5*time.Second, 20*time.Millisecond)

	status, _ := m.Status(id)
	assert.Equal(t, "exited unexpectedly", status.Reason)
	m.Remove(id)
}

func TestActiveCount(t *testing.T) {
	t.Parallel()

	m := NewManager(nil)
	assert.Equal(t, 0, m.ActiveCount())

	id, err := m.Spawn(catConfig("alpha"))
	require.NoError(t, err)
	assert.Equal(t, 1, m.ActiveCount())

	require.NoError(t, m.Stop(id))
	assert.Equal(t, 0, m.ActiveCount())
}

func TestLifecycleEventsPublished(t *testing.T) {
	t.Parallel()

	events := streaming.NewManager()
	subID, ch := events.Subscribe(streaming.Filter{})
	defer events.Unsubscribe(subID)

	m := NewManager(events)
	id, err := m.Spawn(catConfig("alpha"))
	require.NoError(t, err)

	select {
	case e := <-ch:
		assert.Equal(t, streaming.EventServerStarted, e.Type)
		assert.Equal(t, id.String(), e.ServerID)
	case <-time.After(time.Second):
		t.Fatal("expected server started event")
	}

	require.NoError(t, m.Stop(id))
	select {
	case e := <-ch:
		assert.Equal(t, streaming.EventServerStopped, e.Type)
	case <-time.After(time.Second):
		t.Fatal("expected server stopped event")
	}
}

func TestShutdownStopsEverything(t *testing.T) {
	t.Parallel()

	m := NewManager(nil)
	for _, name := range []string{"a", "b", "c"} {
		_, err := m.Spawn(catConfig(name))
		require.NoError(t, err)
	}
	require.Equal(t, 3, m.ActiveCount())

	m.Shutdown()
	assert.Equal(t, 0, m.ActiveCount())
	assert.Empty(t, m.List())
}
