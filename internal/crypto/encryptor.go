// Package crypto provides field-level encryption for stored API tokens.
package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

var (
	// ErrDecrypt is returned whenever a ciphertext cannot be opened,
	// including a mismatched key. Callers never see a silently wrong
	// plaintext.
	ErrDecrypt = errors.New("decrypt failed")

	ErrBadKey = errors.New("encryption key must be 32 bytes, raw or base64")
)

// Envelope is the stored form of an encrypted value. Both fields are
// base64 without padding.
type Envelope struct {
	Nonce string `json:"nonce"`
	Data  string `json:"data"`
}

// Encryptor seals and opens short strings with XChaCha20-Poly1305.
type Encryptor struct {
	key []byte
}

// New builds an Encryptor from a 32-byte key given either raw or
// base64-encoded.
func New(key string) (*Encryptor, error) {
	if len(key) == chacha20poly1305.KeySize {
		return &Encryptor{key: []byte(key)}, nil
	}
	decoded, err := base64.RawStdEncoding.DecodeString(key)
	if err != nil || len(decoded) != chacha20poly1305.KeySize {
		return nil, ErrBadKey
	}
	return &Encryptor{key: decoded}, nil
}

// Encrypt seals plaintext under a fresh random nonce.
func (e *Encryptor) Encrypt(plaintext string) (Envelope, error) {
	aead, err := chacha20poly1305.NewX(e.key)
	if err != nil {
		return Envelope{}, fmt.Errorf("build cipher: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return Envelope{}, fmt.Errorf("generate nonce: %w", err)
	}

	sealed := aead.Seal(nil, nonce, []byte(plaintext), nil)
	return Envelope{
		Nonce: base64.RawStdEncoding.EncodeToString(nonce),
		Data:  base64.RawStdEncoding.EncodeToString(sealed),
	}, nil
}

// Decrypt opens an envelope. Any tampering or key mismatch yields
// ErrDecrypt.
func (e *Encryptor) Decrypt(env Envelope) (string, error) {
	aead, err := chacha20poly1305.NewX(e.key)
	if err != nil {
		return "", fmt.Errorf("build cipher: %w", err)
	}

	nonce, err := base64.RawStdEncoding.DecodeString(env.Nonce)
	if err != nil {
		return "", fmt.Errorf("%w: bad nonce encoding", ErrDecrypt)
	}
	data, err := base64.RawStdEncoding.DecodeString(env.Data)
	if err != nil {
		return "", fmt.Errorf("%w: bad data encoding", ErrDecrypt)
	}
	if len(nonce) != aead.NonceSize() {
		return "", fmt.Errorf("%w: bad nonce size", ErrDecrypt)
	}

	plain, err := aead.Open(nil, nonce, data, nil)
	if err != nil {
		return "", ErrDecrypt
	}
	return string(plain), nil
}
