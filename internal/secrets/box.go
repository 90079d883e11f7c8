// Package secrets seals OAuth tokens before they are written to the store.
package secrets

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

var (
	// ErrKeyRequired is returned when a sealed value is opened by a keyless Box.
	ErrKeyRequired = errors.New("secrets: sealed value requires a key")
	// ErrMalformed is returned for sealed values that cannot be decoded.
	ErrMalformed = errors.New("secrets: malformed sealed value")
	// ErrDecrypt is returned when authentication of a sealed value fails.
	ErrDecrypt = errors.New("secrets: decryption failed")
)

// sealedPrefix marks values produced by Seal. Format: $xc20p$v=1$<base64(nonce|ciphertext)>
const sealedPrefix = "$xc20p$v=1$"

// KDFParams tunes passphrase stretching for non-hex keys.
type KDFParams struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
}

// DefaultKDFParams mirrors argon2id's recommended interactive settings.
var DefaultKDFParams = KDFParams{
	Memory:      64 * 1024,
	Iterations:  3,
	Parallelism: 2,
}

// kdfSalt is fixed so the same passphrase yields the same key across restarts.
var kdfSalt = []byte("leasing-assistant/calendar-tokens")

// Box seals and opens short secrets with XChaCha20-Poly1305. A Box built from
// an empty key passes values through unchanged.
type Box struct {
	key []byte
}

// NewBox builds a Box from a 64-character hex key or, failing that, a
// passphrase stretched with argon2id. An empty key disables sealing.
func NewBox(key string) (*Box, error) {
	return NewBoxWithParams(key, DefaultKDFParams)
}

// NewBoxWithParams is NewBox with explicit passphrase stretching parameters.
func NewBoxWithParams(key string, params KDFParams) (*Box, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return &Box{}, nil
	}
	if len(key) == 2*chacha20poly1305.KeySize {
		if raw, err := hex.DecodeString(key); err == nil {
			return &Box{key: raw}, nil
		}
	}
	if len(key) < 16 {
		return nil, errors.New("secrets: passphrase must be at least 16 characters")
	}
	derived := argon2.IDKey([]byte(key), kdfSalt, params.Iterations, params.Memory, params.Parallelism, chacha20poly1305.KeySize)
	return &Box{key: derived}, nil
}

// Enabled reports whether the Box encrypts.
func (b *Box) Enabled() bool {
	return b != nil && len(b.key) > 0
}

// Seal encrypts plaintext. Empty strings stay empty.
func (b *Box) Seal(plaintext string) (string, error) {
	if !b.Enabled() || plaintext == "" {
		return plaintext, nil
	}
	aead, err := chacha20poly1305.NewX(b.key)
	if err != nil {
		return "", fmt.Errorf("secrets: init cipher: %w", err)
	}

	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("secrets: nonce: %w", err)
	}
	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return sealedPrefix + base64.RawStdEncoding.EncodeToString(sealed), nil
}

// Open decrypts a value produced by Seal. Values without the sealed prefix
// are returned as stored, which lets a key be introduced on an existing database.
func (b *Box) Open(value string) (string, error) {
	encoded, ok := strings.CutPrefix(value, sealedPrefix)
	if !ok {
		return value, nil
	}
	if !b.Enabled() {
		return "", ErrKeyRequired
	}

	raw, err := base64.RawStdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	aead, err := chacha20poly1305.NewX(b.key)
	if err != nil {
		return "", fmt.Errorf("secrets: init cipher: %w", err)
	}
	if len(raw) < aead.NonceSize()+aead.Overhead() {
		return "", ErrMalformed
	}

	nonce, ciphertext := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrDecrypt
	}
	return string(plaintext), nil
}
