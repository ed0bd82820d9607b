// Package cryptox seals pending-account passwords so they are not stored
// in cleartext while a registration awaits approval.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"

	"github.com/talkreg/regbot/internal/common"
)

// sealPrefix marks values produced by Seal. Stored values without the
// prefix are treated as legacy cleartext and returned unchanged by Open.
const sealPrefix = "v1:"

// DeriveKey stretches a configured secret into a 256-bit AES key.
func DeriveKey(secret, salt []byte) []byte {
	return argon2.IDKey(secret, salt, 1, 64*1024, 4, 32)
}

// Sealer encrypts and decrypts short secrets with AES-GCM. A zero-value
// Sealer (no key) passes values through unchanged, which keeps databases
// written without a seal secret readable.
type Sealer struct {
	key []byte
}

// NewSealer builds a Sealer from the configured secret and a per-database
// salt. An empty secret yields a passthrough Sealer.
func NewSealer(secret string, salt []byte) *Sealer {
	if secret == "" {
		return &Sealer{}
	}
	return &Sealer{key: DeriveKey([]byte(secret), salt)}
}

// Enabled reports whether the Sealer actually encrypts.
func (s *Sealer) Enabled() bool {
	return len(s.key) > 0
}

// Seal encrypts plaintext and returns a self-describing string of the form
// "v1:base64(nonce || ciphertext)". With no key configured the plaintext
// is returned as is.
func (s *Sealer) Seal(plaintext string) (string, error) {
	if !s.Enabled() {
		return plaintext, nil
	}

	block, err := aes.NewCipher(s.key)
	if err != nil {
		return "", err
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	nonce := common.GenerateRandByteArray(aesgcm.NonceSize())
	sealed := aesgcm.Seal(nonce, nonce, []byte(plaintext), nil)

	return sealPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Open reverses Seal. Values without the seal prefix are returned as is,
// so rows written by older deployments keep working.
func (s *Sealer) Open(value string) (string, error) {
	if !strings.HasPrefix(value, sealPrefix) {
		return value, nil
	}
	if !s.Enabled() {
		return "", errors.New("sealed value but no seal secret configured")
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, sealPrefix))
	if err != nil {
		return "", fmt.Errorf("decode sealed value: %w", err)
	}

	block, err := aes.NewCipher(s.key)
	if err != nil {
		return "", err
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}
	if len(raw) < aesgcm.NonceSize() {
		return "", errors.New("sealed value too short")
	}

	nonce, ciphertext := raw[:aesgcm.NonceSize()], raw[aesgcm.NonceSize():]
	plaintext, err := aesgcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("open sealed value: %w", err)
	}

	return string(plaintext), nil
}
