// Package process spawns and supervises stdio backend MCP servers.
package process

import (
	"time"

	"github.com/google/uuid"
)

// State is the lifecycle state of a managed backend process.
type State string

// Process states.
const (
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateStopped  State = "stopped"
	StateFailed   State = "failed"
)

// Status is a point-in-time view of a managed process.
type Status struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	State     State     `json:"state"`
	Reason    string    `json:"reason,omitempty"`
	PID       int       `json:"pid,omitempty"`
	StartedAt time.Time `json:"started_at"`
}

// Config describes how to launch a stdio backend.
type Config struct {
	Name       string
	Command    string
	Args       []string
	Env        map[string]string
	WorkingDir string
}
