package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	apperrors "github.com/metamcp/metamcp/pkg/errors"
)

// Protocol identifies the transport used to reach a backend.
type Protocol string

// Supported backend transports.
const (
	ProtocolHTTP  Protocol = "http"
	ProtocolSSE   Protocol = "sse"
	ProtocolStdio Protocol = "stdio"
)

// ValidProtocol reports whether p is a known transport tag.
func ValidProtocol(p Protocol) bool {
	switch p {
	case ProtocolHTTP, ProtocolSSE, ProtocolStdio:
		return true
	}
	return false
}

// MCPServer is a persisted backend descriptor. Name doubles as the routing
// prefix for aggregated tools, resources, and prompts.
type MCPServer struct {
	ID        uuid.UUID         `json:"id"`
	Name      string            `json:"name"`
	URL       *string           `json:"url,omitempty"`
	Protocol  Protocol          `json:"protocol"`
	Command   *string           `json:"command,omitempty"`
	Args      []string          `json:"args"`
	Env       map[string]string `json:"env"`
	IsActive  bool              `json:"is_active"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// ServerUpdate is a partial update of a descriptor. Nil fields are left
// untouched.
type ServerUpdate struct {
	Name     *string            `json:"name,omitempty"`
	URL      *string            `json:"url,omitempty"`
	Protocol *Protocol          `json:"protocol,omitempty"`
	Command  *string            `json:"command,omitempty"`
	Args     *[]string          `json:"args,omitempty"`
	Env      *map[string]string `json:"env,omitempty"`
	IsActive *bool              `json:"is_active,omitempty"`
}

// ServerStore persists backend descriptors.
type ServerStore struct {
	pool *pgxpool.Pool
}

const serverColumns = "id, name, url, protocol, command, args, env, is_active, created_at, updated_at"

// ValidateServerName rejects names unusable as routing prefixes. The
// prefix-split on "_" and ":" would be ambiguous otherwise.
func ValidateServerName(name string) error {
	if name == "" {
		return apperrors.New(apperrors.KindValidation, "server name must not be empty")
	}
	if strings.ContainsAny(name, "_:") {
		return apperrors.Newf(apperrors.KindValidation,
			"server name %q must not contain '_' or ':'", name)
	}
	return nil
}

// Create inserts a new descriptor.
func (s *ServerStore) Create(ctx context.Context, srv *MCPServer) error {
	if err := ValidateServerName(srv.Name); err != nil {
		return err
	}
	if srv.ID == uuid.Nil {
		srv.ID = uuid.New()
	}
	if srv.Args == nil {
		srv.Args = []string{}
	}
	if srv.Env == nil {
		srv.Env = map[string]string{}
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO mcp_servers (id, name, url, protocol, command, args, env, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`,
		srv.ID, srv.Name, srv.URL, srv.Protocol, srv.Command, srv.Args, srv.Env, srv.IsActive)
	if err := row.Scan(&srv.CreatedAt, &srv.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return apperrors.Newf(apperrors.KindConflict,
				"an active server named %q already exists", srv.Name)
		}
		return fmt.Errorf("failed to insert server: %w", err)
	}
	return nil
}

// FindByID returns the descriptor with the given id, or ErrNotFound.
func (s *ServerStore) FindByID(ctx context.Context, id uuid.UUID) (*MCPServer, error) {
	row := s.pool.QueryRow(ctx,
		"SELECT "+serverColumns+" FROM mcp_servers WHERE id = $1", id)
	return scanServer(row)
}

// FindByName returns the active descriptor with the given name, or
// ErrNotFound.
func (s *ServerStore) FindByName(ctx context.Context, name string) (*MCPServer, error) {
	row := s.pool.QueryRow(ctx,
		"SELECT "+serverColumns+" FROM mcp_servers WHERE name = $1 AND is_active", name)
	return scanServer(row)
}

// List returns descriptors ordered by name. Inactive records are included
// only when requested.
func (s *ServerStore) List(ctx context.Context, includeInactive bool) ([]*MCPServer, error) {
	query := "SELECT " + serverColumns + " FROM mcp_servers"
	if !includeInactive {
		query += " WHERE is_active"
	}
	query += " ORDER BY name"

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list servers: %w", err)
	}
	defer rows.Close()

	var servers []*MCPServer
	for rows.Next() {
		srv, err := scanServer(rows)
		if err != nil {
			return nil, err
		}
		servers = append(servers, srv)
	}
	return servers, rows.Err()
}

// Update applies the non-nil fields of patch to the descriptor with the
// given id and returns the updated record.
func (s *ServerStore) Update(ctx context.Context, id uuid.UUID, patch *ServerUpdate) (*MCPServer, error) {
	if patch.Name != nil {
		if err := ValidateServerName(*patch.Name); err != nil {
			return nil, err
		}
	}

	setClause, args := buildServerUpdate(patch)
	if setClause == "" {
		return s.FindByID(ctx, id)
	}
	args = append(args, id)

	query := fmt.Sprintf(
		"UPDATE mcp_servers SET %s, updated_at = NOW() WHERE id = $%d RETURNING %s",
		setClause, len(args), serverColumns)

	srv, err := scanServer(s.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, apperrors.Newf(apperrors.KindConflict,
				"an active server named %q already exists", *patch.Name)
		}
		return nil, err
	}
	return srv, nil
}

// buildServerUpdate builds the SET clause and argument list for a partial
// update. Only fields present in the patch appear in the clause.
func buildServerUpdate(patch *ServerUpdate) (string, []any) {
	var (
		sets []string
		args []any
	)
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if patch.Name != nil {
		add("name", *patch.Name)
	}
	if patch.URL != nil {
		add("url", *patch.URL)
	}
	if patch.Protocol != nil {
		add("protocol", *patch.Protocol)
	}
	if patch.Command != nil {
		add("command", *patch.Command)
	}
	if patch.Args != nil {
		add("args", *patch.Args)
	}
	if patch.Env != nil {
		add("env", *patch.Env)
	}
	if patch.IsActive != nil {
		add("is_active", *patch.IsActive)
	}
	return strings.Join(sets, ", "), args
}

// SetActive flips the active flag on a descriptor.
func (s *ServerStore) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	tag, err := s.pool.Exec(ctx,
		"UPDATE mcp_servers SET is_active = $1, updated_at = NOW() WHERE id = $2",
		active, id)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.New(apperrors.KindConflict,
				"an active server with the same name already exists")
		}
		return fmt.Errorf("failed to update server: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a descriptor permanently.
func (s *ServerStore) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, "DELETE FROM mcp_servers WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete server: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanServer(row pgx.Row) (*MCPServer, error) {
	var srv MCPServer
	err := row.Scan(&srv.ID, &srv.Name, &srv.URL, &srv.Protocol, &srv.Command,
		&srv.Args, &srv.Env, &srv.IsActive, &srv.CreatedAt, &srv.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan server row: %w", err)
	}
	return &srv, nil
}
