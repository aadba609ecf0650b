package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
)

// Encryptor wraps an AES-GCM cipher derived from a configured key, adapted
// from shared/security/encryption.go's EncryptionService for whole-file
// encryption of generated export bundles (spec.md §4.4) rather than
// individual string fields: an export bundle is the single place this
// engine writes a full PII copy to disk, so it is the one place
// encryption-at-rest earns its keep.
type Encryptor struct {
	key []byte
}

// NewEncryptor derives a 32-byte AES key from an arbitrary-length secret.
// Returns nil when key is empty: encryption-at-rest is optional, and a nil
// *Encryptor is a valid no-op for every method below.
func NewEncryptor(key string) *Encryptor {
	if key == "" {
		return nil
	}
	sum := sha256.Sum256([]byte(key))
	return &Encryptor{key: sum[:]}
}

// Encrypt seals data with AES-GCM, prefixing the ciphertext with a random
// nonce. A nil receiver returns data unchanged.
func (e *Encryptor) Encrypt(data []byte) ([]byte, error) {
	if e == nil {
		return data, nil
	}
	block, err := aes.NewCipher(e.key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return gcm.Seal(nonce, nonce, data, nil), nil
}

// Decrypt reverses Encrypt. A nil receiver returns data unchanged.
func (e *Encryptor) Decrypt(data []byte) ([]byte, error) {
	if e == nil {
		return data, nil
	}
	block, err := aes.NewCipher(e.key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return nil, errors.New("ciphertext too short")
	}
	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	return gcm.Open(nil, nonce, ciphertext, nil)
}

// Enabled reports whether this Encryptor actually encrypts, so callers can
// choose a ".enc" file extension only when it does.
func (e *Encryptor) Enabled() bool {
	return e != nil
}
