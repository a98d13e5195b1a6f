package persistence

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/nacl/secretbox"
)

const sealedPrefix = "v1:"

// ErrInvalidCipherKey is returned for keys that are not 32 bytes long.
var ErrInvalidCipherKey = errors.New("persistence: token cipher key must be 32 bytes")

// TokenCipher seals OAuth tokens before they reach the database.
// A nil *TokenCipher stores tokens as given.
type TokenCipher struct {
	key [32]byte
}

// NewTokenCipher creates a cipher from a 32 byte key.
func NewTokenCipher(key []byte) (*TokenCipher, error) {
	if len(key) != 32 {
		return nil, ErrInvalidCipherKey
	}
	c := &TokenCipher{}
	copy(c.key[:], key)
	return c, nil
}

// NewTokenCipherFromBase64 decodes a standard base64 key. An empty key disables sealing.
func NewTokenCipherFromBase64(encoded string) (*TokenCipher, error) {
	if encoded == "" {
		return nil, nil
	}
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode token cipher key: %w", err)
	}
	return NewTokenCipher(key)
}

// Seal encrypts plaintext with a fresh nonce.
func (c *TokenCipher) Seal(plaintext string) (string, error) {
	if c == nil {
		return plaintext, nil
	}
	var nonce [24]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &c.key)
	return sealedPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Open decrypts a value produced by Seal.
func (c *TokenCipher) Open(stored string) (string, error) {
	if c == nil {
		return stored, nil
	}
	if !strings.HasPrefix(stored, sealedPrefix) {
		return "", errors.New("persistence: token is not sealed")
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(stored, sealedPrefix))
	if err != nil {
		return "", fmt.Errorf("decode sealed token: %w", err)
	}
	if len(raw) < 24+secretbox.Overhead {
		return "", errors.New("persistence: sealed token too short")
	}
	var nonce [24]byte
	copy(nonce[:], raw[:24])
	plain, ok := secretbox.Open(nil, raw[24:], &nonce, &c.key)
	if !ok {
		return "", errors.New("persistence: sealed token failed authentication")
	}
	return string(plain), nil
}
