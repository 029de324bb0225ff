// Package crypto seals proxy credentials at rest with AES-256-GCM.
//
// Ciphertexts are base64(nonce || sealed). The key is either 64 hex
// characters used verbatim or an arbitrary passphrase stretched with
// HKDF-SHA256.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const keySize = 32

var hkdfInfo = []byte("ntglogin proxy credentials")

// ErrNoKey is returned when sealing without a configured key.
var ErrNoKey = errors.New("encryption key not configured")

// Sealer encrypts and decrypts short secrets.
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer builds a Sealer from a hex key or a passphrase. An empty key
// yields a Sealer that passes values through unchanged.
func NewSealer(key string) (*Sealer, error) {
	if key == "" {
		return &Sealer{}, nil
	}

	raw, err := deriveKey(key)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create gcm: %w", err)
	}
	return &Sealer{aead: aead}, nil
}

func deriveKey(key string) ([]byte, error) {
	if len(key) == keySize*2 {
		if raw, err := hex.DecodeString(key); err == nil {
			return raw, nil
		}
	}

	raw := make([]byte, keySize)
	r := hkdf.New(sha256.New, []byte(key), nil, hkdfInfo)
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}
	return raw, nil
}

// Enabled reports whether values are actually encrypted.
func (s *Sealer) Enabled() bool {
	return s != nil && s.aead != nil
}

// Seal encrypts plaintext. Empty input stays empty.
func (s *Sealer) Seal(plaintext string) (string, error) {
	if plaintext == "" || !s.Enabled() {
		return plaintext, nil
	}

	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to read nonce: %w", err)
	}

	sealed := s.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Open decrypts a value produced by Seal.
func (s *Sealer) Open(ciphertext string) (string, error) {
	if ciphertext == "" || !s.Enabled() {
		return ciphertext, nil
	}

	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("invalid ciphertext encoding: %w", err)
	}

	ns := s.aead.NonceSize()
	if len(data) < ns+s.aead.Overhead() {
		return "", errors.New("ciphertext too short")
	}

	plain, err := s.aead.Open(nil, data[:ns], data[ns:], nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt: %w", err)
	}
	return string(plain), nil
}
