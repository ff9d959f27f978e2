// Package broker defines the trading surface consumed by the chat layer and
// the at-rest protection of brokerage secrets.
package broker

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// KeySize is the size of the AES-256 key in bytes.
	KeySize = 32
	// PBKDF2Iterations is the number of iterations for key derivation.
	PBKDF2Iterations = 100000
)

var (
	ErrInvalidKey        = errors.New("invalid encryption key: must be at least 32 characters")
	ErrInvalidCiphertext = errors.New("invalid ciphertext")
	ErrDecryptionFailed  = errors.New("decryption failed")
)

// Encryptor seals persisted session values. Each storage key gets its own
// derived AES key so a value cannot be replayed under another key.
type Encryptor struct {
	masterKey []byte

	mu   sync.Mutex
	keys map[string][]byte
}

// NewEncryptor creates a new Encryptor with the given master secret.
func NewEncryptor(secret string) (*Encryptor, error) {
	if len(secret) < 32 {
		return nil, ErrInvalidKey
	}
	hash := sha256.Sum256([]byte(secret))
	return &Encryptor{masterKey: hash[:], keys: make(map[string][]byte)}, nil
}

// DeriveKey derives the key for scope. Derivations are memoized.
func (e *Encryptor) DeriveKey(scope string) []byte {
	e.mu.Lock()
	defer e.mu.Unlock()

	if key, ok := e.keys[scope]; ok {
		return key
	}
	key := pbkdf2.Key(e.masterKey, []byte("scope:"+scope), PBKDF2Iterations, KeySize, sha256.New)
	e.keys[scope] = key
	return key
}

func (e *Encryptor) aead(scope string) (cipher.AEAD, error) {
	block, err := aes.NewCipher(e.DeriveKey(scope))
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}
	return gcm, nil
}

// Seal encrypts plaintext with AES-256-GCM. The nonce is prepended to the result.
func (e *Encryptor) Seal(plaintext, scope string) ([]byte, error) {
	gcm, err := e.aead(scope)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}
	return gcm.Seal(nonce, nonce, []byte(plaintext), nil), nil
}

// Open reverses Seal.
func (e *Encryptor) Open(sealed []byte, scope string) (string, error) {
	gcm, err := e.aead(scope)
	if err != nil {
		return "", err
	}

	if len(sealed) <= gcm.NonceSize() {
		return "", ErrInvalidCiphertext
	}
	nonce, ciphertext := sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	return string(plaintext), nil
}
