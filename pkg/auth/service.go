package auth

import (
	"context"

	"github.com/google/uuid"

	"github.com/metamcp/metamcp/pkg/errors"
	"github.com/metamcp/metamcp/pkg/logger"
	"github.com/metamcp/metamcp/pkg/store"
)

// KeyStore is the subset of the credential store the service needs.
type KeyStore interface {
	Create(ctx context.Context, key *store.APIKey) error
	FindByID(ctx context.Context, id uuid.UUID) (*store.APIKey, error)
	List(ctx context.Context, includeInactive bool) ([]*store.APIKey, error)
	UpdateLastUsed(ctx context.Context, id uuid.UUID) error
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// Service ties key storage, at-rest protection, and token issuance
// together.
type Service struct {
	keys      KeyStore
	encryptor *Encryptor
	tokens    *TokenService
}

// NewService creates the credential service.
func NewService(keys KeyStore, encryptor *Encryptor, tokens *TokenService) *Service {
	return &Service{keys: keys, encryptor: encryptor, tokens: tokens}
}

// Tokens exposes the underlying token service.
func (s *Service) Tokens() *TokenService {
	return s.tokens
}

// TokenTTLSeconds returns the token lifetime in whole seconds, as
// reported in token responses.
func (s *Service) TokenTTLSeconds() int {
	return int(s.tokens.TTL().Seconds())
}

// CreateKey generates a new API key, stores its hash and encrypted form,
// and returns the record with the plaintext. The plaintext is not
// recoverable through any other read path except RevealKey.
func (s *Service) CreateKey(ctx context.Context, name string) (*store.APIKey, string, error) {
	plaintext, err := GenerateAPIKey()
	if err != nil {
		return nil, "", errors.Wrap(errors.KindInternal, "failed to generate api key", err)
	}
	hash, err := HashAPIKey(plaintext)
	if err != nil {
		return nil, "", errors.Wrap(errors.KindInternal, "failed to hash api key", err)
	}
	encrypted, err := s.encryptor.Encrypt([]byte(plaintext))
	if err != nil {
		return nil, "", errors.Wrap(errors.KindInternal, "failed to encrypt api key", err)
	}

	key := &store.APIKey{
		Name:         name,
		KeyHash:      hash,
		EncryptedKey: encrypted,
		IsActive:     true,
	}
	if err := s.keys.Create(ctx, key); err != nil {
		return nil, "", errors.Wrap(errors.KindInternal, "failed to store api key", err)
	}
	return key, plaintext, nil
}

// Authenticate verifies a presented API key against every active record
// and issues a bearer token on match. The memory-hard hash has a
// per-record salt, so enumeration is the lookup strategy.
func (s *Service) Authenticate(ctx context.Context, plaintext string) (string, error) {
	keys, err := s.keys.List(ctx, false)
	if err != nil {
		return "", errors.Wrap(errors.KindInternal, "failed to list api keys", err)
	}

	for _, key := range keys {
		ok, err := VerifyAPIKey(plaintext, key.KeyHash)
		if err != nil {
			logger.Warnw("skipping api key with malformed hash", "key_id", key.ID, "error", err)
			continue
		}
		if !ok {
			continue
		}

		if err := s.keys.UpdateLastUsed(ctx, key.ID); err != nil {
			logger.Warnw("failed to update api key last-used time", "key_id", key.ID, "error", err)
		}
		return s.tokens.Issue(key.ID)
	}

	logger.Debug("authentication failed: no matching active api key")
	return "", errors.New(errors.KindUnauthorized, "invalid API key")
}

// ValidateToken verifies a bearer token and confirms the underlying
// credential still exists and is active.
func (s *Service) ValidateToken(ctx context.Context, token string) (uuid.UUID, error) {
	keyID, err := s.tokens.Verify(token)
	if err != nil {
		logger.Debugw("token verification failed", "error", err)
		return uuid.Nil, errors.New(errors.KindUnauthorized, "invalid or expired token")
	}

	key, err := s.keys.FindByID(ctx, keyID)
	if err != nil {
		logger.Debugw("token subject not found", "key_id", keyID)
		return uuid.Nil, errors.New(errors.KindUnauthorized, "invalid or expired token")
	}
	if !key.IsActive {
		logger.Debugw("token subject is inactive", "key_id", keyID)
		return uuid.Nil, errors.New(errors.KindUnauthorized, "invalid or expired token")
	}
	return keyID, nil
}

// RevealKey decrypts and returns the plaintext of a stored credential.
// Administrative recovery path only.
func (s *Service) RevealKey(ctx context.Context, id uuid.UUID) (*store.APIKey, string, error) {
	key, err := s.keys.FindByID(ctx, id)
	if err != nil {
		if err == store.ErrNotFound {
			return nil, "", errors.New(errors.KindNotFound, "api key not found")
		}
		return nil, "", errors.Wrap(errors.KindInternal, "failed to load api key", err)
	}
	plaintext, err := s.encryptor.Decrypt(key.EncryptedKey)
	if err != nil {
		return nil, "", err
	}
	return key, string(plaintext), nil
}

// Revoke marks a credential inactive. Previously issued tokens fail
// validation from this point on.
func (s *Service) Revoke(ctx context.Context, id uuid.UUID) error {
	if err := s.keys.SetActive(ctx, id, false); err != nil {
		if err == store.ErrNotFound {
			return errors.New(errors.KindNotFound, "api key not found")
		}
		return errors.Wrap(errors.KindInternal, "failed to revoke api key", err)
	}
	return nil
}
