// Package auth implements API key generation, at-rest protection, and
// bearer token issuance for the gateway.
package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/metamcp/metamcp/pkg/errors"
)

// KeyPrefix tags every generated API key so it is recognizable in logs
// and secret scanners.
const KeyPrefix = "mcp_"

// argon2id parameters for the lookup hash.
const (
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
	argonKeyLen  = 32
	argonSaltLen = 16
)

// GenerateAPIKey produces a new random API key: the fixed prefix followed
// by 32 hex characters (128 bits of entropy).
func GenerateAPIKey() (string, error) {
	raw := make([]byte, 16)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return KeyPrefix + hex.EncodeToString(raw), nil
}

// HashAPIKey computes an argon2id hash of the key with a fresh random
// salt, encoded in PHC string format.
func HashAPIKey(key string) (string, error) {
	salt := make([]byte, argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to read random salt: %w", err)
	}
	digest := argon2.IDKey([]byte(key), salt, argonTime, argonMemory, argonThreads, argonKeyLen)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, argonMemory, argonTime, argonThreads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(digest)), nil
}

// VerifyAPIKey reports whether key matches the PHC-encoded argon2id hash.
func VerifyAPIKey(key, encoded string) (bool, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return false, errors.New(errors.KindInternal, "malformed key hash")
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return false, errors.Wrap(errors.KindInternal, "malformed key hash version", err)
	}
	if version != argon2.Version {
		return false, errors.Newf(errors.KindInternal, "unsupported argon2 version %d", version)
	}

	var memory, time uint32
	var threads uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &time, &threads); err != nil {
		return false, errors.Wrap(errors.KindInternal, "malformed key hash parameters", err)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, errors.Wrap(errors.KindInternal, "malformed key hash salt", err)
	}
	digest, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false, errors.Wrap(errors.KindInternal, "malformed key hash digest", err)
	}

	computed := argon2.IDKey([]byte(key), salt, time, memory, threads, uint32(len(digest)))
	return subtle.ConstantTimeCompare(computed, digest) == 1, nil
}

// Encryptor provides authenticated encryption of key material with the
// global 256-bit key. The random nonce is prepended to each ciphertext.
type Encryptor struct {
	key [32]byte
}

// NewEncryptor creates an Encryptor for the given key.
func NewEncryptor(key [32]byte) *Encryptor {
	return &Encryptor{key: key}
}

// Encrypt seals plaintext with ChaCha20-Poly1305 and a fresh nonce.
func (e *Encryptor) Encrypt(plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(e.key[:])
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to read random nonce: %w", err)
	}
	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt opens a ciphertext produced by Encrypt.
func (e *Encryptor) Decrypt(ciphertext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(e.key[:])
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	if len(ciphertext) < aead.NonceSize() {
		return nil, errors.New(errors.KindInternal, "ciphertext too short")
	}
	nonce, sealed := ciphertext[:aead.NonceSize()], ciphertext[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, errors.Wrap(errors.KindInternal, "failed to decrypt key material", err)
	}
	return plaintext, nil
}
