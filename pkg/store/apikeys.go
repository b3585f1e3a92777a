package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// APIKey is a persisted credential record. The plaintext key is never
// stored: KeyHash authenticates presented keys and EncryptedKey allows
// administrative recovery with the global encryption key.
type APIKey struct {
	ID           uuid.UUID  `json:"id"`
	Name         string     `json:"name"`
	KeyHash      string     `json:"-"`
	EncryptedKey []byte     `json:"-"`
	IsActive     bool       `json:"is_active"`
	CreatedAt    time.Time  `json:"created_at"`
	LastUsedAt   *time.Time `json:"last_used_at,omitempty"`
}

// APIKeyStore persists credential records.
type APIKeyStore struct {
	pool *pgxpool.Pool
}

const apiKeyColumns = "id, name, key_hash, encrypted_key, is_active, created_at, last_used_at"

// Create inserts a new credential record.
func (s *APIKeyStore) Create(ctx context.Context, key *APIKey) error {
	if key.ID == uuid.Nil {
		key.ID = uuid.New()
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO api_keys (id, name, key_hash, encrypted_key, is_active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`,
		key.ID, key.Name, key.KeyHash, key.EncryptedKey, key.IsActive)
	if err := row.Scan(&key.CreatedAt); err != nil {
		return fmt.Errorf("failed to insert api key: %w", err)
	}
	return nil
}

// FindByID returns the credential with the given id, or ErrNotFound.
func (s *APIKeyStore) FindByID(ctx context.Context, id uuid.UUID) (*APIKey, error) {
	row := s.pool.QueryRow(ctx,
		"SELECT "+apiKeyColumns+" FROM api_keys WHERE id = $1", id)
	return scanAPIKey(row)
}

// List returns credentials ordered by creation time, newest first.
// Inactive records are included only when requested.
func (s *APIKeyStore) List(ctx context.Context, includeInactive bool) ([]*APIKey, error) {
	query := "SELECT " + apiKeyColumns + " FROM api_keys"
	if !includeInactive {
		query += " WHERE is_active"
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list api keys: %w", err)
	}
	defer rows.Close()

	var keys []*APIKey
	for rows.Next() {
		key, err := scanAPIKey(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// UpdateLastUsed stamps the credential's last-used time.
func (s *APIKeyStore) UpdateLastUsed(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		"UPDATE api_keys SET last_used_at = NOW() WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to update api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetActive flips the active flag on a credential.
func (s *APIKeyStore) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	tag, err := s.pool.Exec(ctx,
		"UPDATE api_keys SET is_active = $1 WHERE id = $2", active, id)
	if err != nil {
		return fmt.Errorf("failed to update api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a credential permanently.
func (s *APIKeyStore) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, "DELETE FROM api_keys WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanAPIKey(row pgx.Row) (*APIKey, error) {
	var key APIKey
	err := row.Scan(&key.ID, &key.Name, &key.KeyHash, &key.EncryptedKey,
		&key.IsActive, &key.CreatedAt, &key.LastUsedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan api key row: %w", err)
	}
	return &key, nil
}
