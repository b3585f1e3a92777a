package rpc

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageKinds(t *testing.T) {
	t.Parallel()

	req, err := NewRequest(1, "tools/list", map[string]any{})
	require.NoError(t, err)
	assert.True(t, req.IsRequest())
	assert.False(t, req.IsNotification())
	assert.False(t, req.IsResponse())
	assert.NoError(t, req.Validate())

	note, err := NewNotification("initialized", nil)
	require.NoError(t, err)
	assert.True(t, note.IsNotification())
	assert.False(t, note.IsRequest())
	assert.NoError(t, note.Validate())

	resp, err := NewResult(1, map[string]any{"ok": true})
	require.NoError(t, err)
	assert.True(t, resp.IsResponse())
	assert.NoError(t, resp.Validate())
}

func TestNotificationHasNoID(t *testing.T) {
	t.Parallel()

	var msg Message
	require.NoError(t, json.Unmarshal([]byte(`{"jsonrpc":"2.0","method":"notifications/cancelled"}`), &msg))
	assert.True(t, msg.IsNotification())

	require.NoError(t, json.Unmarshal([]byte(`{"jsonrpc":"2.0","id":7,"method":"ping"}`), &msg))
	assert.False(t, msg.IsNotification())
}

func TestValidateRejectsBadVersion(t *testing.T) {
	t.Parallel()

	msg := &Message{JSONRPC: "1.0", ID: 1, Method: "ping"}
	assert.Error(t, msg.Validate())
}

func TestErrorResponseEncoding(t *testing.T) {
	t.Parallel()

	msg := NewErrorf(3, CodeMethodNotFound, "Method not found: %s", "bogus")
	data, err := json.Marshal(msg)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.NotContains(t, decoded, "result")

	errObj := decoded["error"].(map[string]any)
	assert.Equal(t, float64(CodeMethodNotFound), errObj["code"])
	assert.Equal(t, "Method not found: bogus", errObj["message"])
}

func TestResultOmitsNilFields(t *testing.T) {
	t.Parallel()

	msg := NewRawResult("abc", json.RawMessage(`{"tools":[]}`))
	data, err := json.Marshal(msg)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "abc", decoded["id"])
	assert.NotContains(t, decoded, "error")
	assert.NotContains(t, decoded, "method")
}
