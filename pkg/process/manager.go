package process

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/metamcp/metamcp/pkg/errors"
	"github.com/metamcp/metamcp/pkg/logger"
	"github.com/metamcp/metamcp/pkg/rpc"
	"github.com/metamcp/metamcp/pkg/streaming"
)

const (
	// gracefulStopTimeout is how long Stop waits after the shutdown
	// notification before killing the child.
	gracefulStopTimeout = 5 * time.Second

	// superviseInterval is the cadence of the supervisor sweep.
	superviseInterval = 10 * time.Second
)

// EventSink receives lifecycle events from the manager.
type EventSink interface {
	RegisterServer(serverID string)
	UnregisterServer(serverID string)
	PublishServerScoped(serverID string, e streaming.Event)
}

// handle is a running child process owned by the manager.
type handle struct {
	mu     sync.Mutex
	id     uuid.UUID
	config Config
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader

	state State
	// stopping marks an exit as requested by Stop, so the reaper does
	// not classify it as a crash.
	stopping  bool
	reason    string
	startedAt time.Time
	done      chan struct{}
}

func (h *handle) setState(state State, reason string) {
	h.mu.Lock()
	h.state = state
	h.reason = reason
	h.mu.Unlock()
}

func (h *handle) status() Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	s := Status{
		ID:        h.id,
		Name:      h.config.Name,
		State:     h.state,
		Reason:    h.reason,
		StartedAt: h.startedAt,
	}
	if h.cmd.Process != nil {
		s.PID = h.cmd.Process.Pid
	}
	return s
}

// Manager owns every spawned stdio backend.
type Manager struct {
	mu     sync.RWMutex
	procs  map[uuid.UUID]*handle
	events EventSink
}

// NewManager creates a process manager publishing lifecycle events to
// sink. A nil sink disables event publication.
func NewManager(sink EventSink) *Manager {
	return &Manager{
		procs:  make(map[uuid.UUID]*handle),
		events: sink,
	}
}

// Spawn launches a stdio backend and registers it. The returned id
// identifies the process for later calls.
func (m *Manager) Spawn(cfg Config) (uuid.UUID, error) {
	if cfg.Command == "" {
		return uuid.Nil, errors.New(errors.KindProcess, "no command configured")
	}

	cmd := exec.Command(cfg.Command, cfg.Args...)
	cmd.Dir = cfg.WorkingDir
	cmd.Env = os.Environ()
	for k, v := range cfg.Env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}
	setPdeathsig(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return uuid.Nil, errors.Wrap(errors.KindProcess, "failed to open stdin pipe", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return uuid.Nil, errors.Wrap(errors.KindProcess, "failed to open stdout pipe", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return uuid.Nil, errors.Wrap(errors.KindProcess, "failed to open stderr pipe", err)
	}

	h := &handle{
		id:        uuid.New(),
		config:    cfg,
		cmd:       cmd,
		stdin:     stdin,
		stdout:    bufio.NewReader(stdout),
		state:     StateStarting,
		startedAt: time.Now(),
		done:      make(chan struct{}),
	}

	if err := cmd.Start(); err != nil {
		return uuid.Nil, errors.Wrap(errors.KindProcess,
			fmt.Sprintf("failed to start %q", cfg.Command), err)
	}
	h.setState(StateRunning, "")

	m.mu.Lock()
	m.procs[h.id] = h
	m.mu.Unlock()

	go m.drainStderr(h, stderr)
	go m.waitForExit(h)

	if m.events != nil {
		m.events.RegisterServer(h.id.String())
		m.events.PublishServerScoped(h.id.String(),
			streaming.NewServerStarted(h.id, cfg.Name))
	}

	logger.Infow("spawned stdio backend", "server", cfg.Name, "process_id", h.id, "pid", cmd.Process.Pid)
	return h.id, nil
}

// drainStderr forwards the child's stderr to the logger line by line.
func (m *Manager) drainStderr(h *handle, stderr io.Reader) {
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		logger.Infow("backend stderr", "server", h.config.Name, "line", scanner.Text())
	}
}

// waitForExit reaps the child and records its final state. Any exit
// that was not requested through Stop is a failure, even with status 0.
func (m *Manager) waitForExit(h *handle) {
	err := h.cmd.Wait()
	close(h.done)

	h.mu.Lock()
	requested := h.stopping
	h.mu.Unlock()

	if requested {
		return
	}
	reason := "exited unexpectedly"
	if err != nil {
		reason = err.Error()
	}
	h.setState(StateFailed, reason)
	logger.Warnw("stdio backend exited unexpectedly", "server", h.config.Name, "reason", reason)
}

// Status returns the current status of a managed process.
func (m *Manager) Status(id uuid.UUID) (Status, error) {
	h, err := m.lookup(id)
	if err != nil {
		return Status{}, err
	}
	return h.status(), nil
}

// List returns the status of every managed process.
func (m *Manager) List() []Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	statuses := make([]Status, 0, len(m.procs))
	for _, h := range m.procs {
		statuses = append(statuses, h.status())
	}
	return statuses
}

// ActiveCount returns the number of running processes.
func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, h := range m.procs {
		if s := h.status(); s.State == StateRunning || s.State == StateStarting {
			count++
		}
	}
	return count
}

// SendMessage writes a newline-framed JSON-RPC message to the child's
// stdin.
func (m *Manager) SendMessage(id uuid.UUID, msg *rpc.Message) error {
	h, err := m.lookup(id)
	if err != nil {
		return err
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	data = append(data, '\n')
	if _, err := h.stdin.Write(data); err != nil {
		return errors.Wrap(errors.KindProcess, "failed to write to backend stdin", err)
	}
	return nil
}

// ReadMessage reads one newline-framed JSON-RPC message from the child's
// stdout.
func (m *Manager) ReadMessage(id uuid.UUID) (*rpc.Message, error) {
	h, err := m.lookup(id)
	if err != nil {
		return nil, err
	}
	line, err := h.stdout.ReadBytes('\n')
	if err != nil {
		return nil, errors.Wrap(errors.KindProcess, "failed to read from backend stdout", err)
	}
	var msg rpc.Message
	if err := json.Unmarshal(line, &msg); err != nil {
		return nil, errors.Wrap(errors.KindProcess, "malformed message from backend", err)
	}
	return &msg, nil
}

// Stop shuts a process down and drops it from the registry: a shutdown
// notification first, then a kill if it does not exit in time.
func (m *Manager) Stop(id uuid.UUID) error {
	h, err := m.lookup(id)
	if err != nil {
		return err
	}

	h.mu.Lock()
	h.stopping = true
	h.mu.Unlock()

	if notification, err := rpc.NewNotification("shutdown", nil); err == nil {
		if sendErr := m.SendMessage(id, notification); sendErr != nil {
			logger.Debugw("failed to send shutdown notification", "server", h.config.Name, "error", sendErr)
		}
	}
	if err := h.stdin.Close(); err != nil {
		logger.Debugw("failed to close backend stdin", "server", h.config.Name, "error", err)
	}

	select {
	case <-h.done:
	case <-time.After(gracefulStopTimeout):
		logger.Warnw("backend did not exit gracefully, killing", "server", h.config.Name)
		if err := h.cmd.Process.Kill(); err != nil {
			logger.Warnw("failed to kill backend", "server", h.config.Name, "error", err)
		}
		<-h.done
	}

	h.setState(StateStopped, "stopped by request")
	m.Remove(id)

	if m.events != nil {
		m.events.PublishServerScoped(h.id.String(),
			streaming.NewServerStopped(h.id, h.config.Name, "stopped"))
		m.events.UnregisterServer(h.id.String())
	}
	return nil
}

// Restart stops a process and spawns a replacement with the same config.
// The replacement gets a new id.
func (m *Manager) Restart(id uuid.UUID) (uuid.UUID, error) {
	h, err := m.lookup(id)
	if err != nil {
		return uuid.Nil, err
	}
	cfg := h.config

	if err := m.Stop(id); err != nil {
		return uuid.Nil, err
	}
	return m.Spawn(cfg)
}

// Remove drops a stopped or failed process from the registry.
func (m *Manager) Remove(id uuid.UUID) {
	m.mu.Lock()
	delete(m.procs, id)
	m.mu.Unlock()
}

// Shutdown stops every managed process.
func (m *Manager) Shutdown() {
	for _, s := range m.List() {
		if s.State == StateRunning || s.State == StateStarting {
			if err := m.Stop(s.ID); err != nil {
				logger.Warnw("failed to stop backend during shutdown", "server", s.Name, "error", err)
			}
		}
		m.Remove(s.ID)
	}
}

// Supervise periodically sweeps the registry and publishes stop events
// for processes that died on their own. Runs until ctx is done.
func (m *Manager) Supervise(ctx context.Context) {
	ticker := time.NewTicker(superviseInterval)
	defer ticker.Stop()

	reported := make(map[uuid.UUID]bool)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, s := range m.List() {
				if s.State != StateFailed || reported[s.ID] {
					continue
				}
				reported[s.ID] = true
				logger.Warnw("supervisor found dead backend", "server", s.Name, "reason", s.Reason)
				if m.events != nil {
					m.events.PublishServerScoped(s.ID.String(),
						streaming.NewServerStopped(s.ID, s.Name, s.Reason))
					m.events.UnregisterServer(s.ID.String())
				}
			}
		}
	}
}

func (m *Manager) lookup(id uuid.UUID) (*handle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.procs[id]
	if !ok {
		return nil, errors.Newf(errors.KindNotFound, "no managed process with id %s", id)
	}
	return h, nil
}
