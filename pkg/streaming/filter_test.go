package streaming

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestFilterShouldSend(t *testing.T) {
	t.Parallel()

	alphaID := uuid.New()
	started := NewServerStarted(alphaID, "alpha")
	health := NewSystemHealth(10, 20, 1)
	errEvent := NewError("", "backend unreachable")

	cases := []struct {
		name   string
		filter Filter
		event  Event
		want   bool
	}{
		{"empty filter passes lifecycle", Filter{}, started, true},
		{"empty filter suppresses health", Filter{}, health, false},
		{"include_system admits health", Filter{IncludeSystem: true}, health, true},
		{
			"type filter admits listed type",
			Filter{EventTypes: []string{EventServerStarted}},
			started, true,
		},
		{
			"type filter rejects unlisted type",
			Filter{EventTypes: []string{EventServerStopped}},
			started, false,
		},
		{
			"health needs include_system even when type-listed",
			Filter{EventTypes: []string{EventSystemHealth}},
			health, false,
		},
		{
			"server filter admits matching id",
			Filter{ServerIDs: []string{alphaID.String()}},
			started, true,
		},
		{
			"server filter rejects other id",
			Filter{ServerIDs: []string{uuid.NewString()}},
			started, false,
		},
		{
			"server filter ignores events without server id",
			Filter{ServerIDs: []string{uuid.NewString()}},
			errEvent, true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, tc.filter.ShouldSend(tc.event))
		})
	}
}

func TestEventConstructors(t *testing.T) {
	t.Parallel()

	id := uuid.New()
	e := NewToolExecuted(id, "alpha", "echo", 120*time.Millisecond, true)
	assert.Equal(t, EventToolExecuted, e.Type)
	assert.Equal(t, id.String(), e.ServerID)
	assert.Equal(t, "echo", e.ToolName)
	assert.Equal(t, int64(120), e.DurationMS)
	assert.NotNil(t, e.Success)
	assert.True(t, *e.Success)
	assert.False(t, e.Timestamp.IsZero())
}
