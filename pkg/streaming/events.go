// Package streaming fans out gateway lifecycle, execution, and health
// events to registered subscribers.
package streaming

import (
	"time"

	"github.com/google/uuid"
)

// Event type tags.
const (
	EventServerStarted = "mcp_server_started"
	EventServerStopped = "mcp_server_stopped"
	EventToolExecuted  = "mcp_tool_executed"
	EventMessage       = "mcp_message"
	EventSystemHealth  = "system_health"
	EventError         = "error"
)

// Event is a single stream event. Fields beyond Type and Timestamp are
// populated per event type.
type Event struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`

	ServerID   string `json:"server_id,omitempty"`
	ServerName string `json:"server_name,omitempty"`

	ToolName   string `json:"tool_name,omitempty"`
	DurationMS int64  `json:"duration_ms,omitempty"`
	Success    *bool  `json:"success,omitempty"`

	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`

	CPUPercent    float64 `json:"cpu_percent,omitempty"`
	MemoryPercent float64 `json:"memory_percent,omitempty"`
	ActiveServers int     `json:"active_servers,omitempty"`
}

// NewServerStarted builds a backend-started event.
func NewServerStarted(serverID uuid.UUID, name string) Event {
	return Event{
		Type:       EventServerStarted,
		Timestamp:  time.Now().UTC(),
		ServerID:   serverID.String(),
		ServerName: name,
	}
}

// NewServerStopped builds a backend-stopped event.
func NewServerStopped(serverID uuid.UUID, name, reason string) Event {
	return Event{
		Type:       EventServerStopped,
		Timestamp:  time.Now().UTC(),
		ServerID:   serverID.String(),
		ServerName: name,
		Message:    reason,
	}
}

// NewToolExecuted builds a tool-execution event.
func NewToolExecuted(serverID uuid.UUID, serverName, tool string, duration time.Duration, success bool) Event {
	return Event{
		Type:       EventToolExecuted,
		Timestamp:  time.Now().UTC(),
		ServerID:   serverID.String(),
		ServerName: serverName,
		ToolName:   tool,
		DurationMS: duration.Milliseconds(),
		Success:    &success,
	}
}

// NewMessage builds a generic backend message event.
func NewMessage(serverID uuid.UUID, serverName, message string) Event {
	return Event{
		Type:       EventMessage,
		Timestamp:  time.Now().UTC(),
		ServerID:   serverID.String(),
		ServerName: serverName,
		Message:    message,
	}
}

// NewSystemHealth builds a system health snapshot event.
func NewSystemHealth(cpuPercent, memPercent float64, activeServers int) Event {
	return Event{
		Type:          EventSystemHealth,
		Timestamp:     time.Now().UTC(),
		CPUPercent:    cpuPercent,
		MemoryPercent: memPercent,
		ActiveServers: activeServers,
	}
}

// NewError builds an error event, optionally scoped to a backend.
func NewError(serverID, message string) Event {
	return Event{
		Type:      EventError,
		Timestamp: time.Now().UTC(),
		ServerID:  serverID,
		Error:     message,
	}
}
