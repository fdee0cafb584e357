package common

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/nacl/secretbox"
)

const (
	sealedPrefix = "sb1:"
	nonceSize    = 24
)

var ErrInvalidSealedValue = errors.New("invalid sealed value")

// Sealer encrypts secrets at rest. A sealer without a key passes values through.
type Sealer struct {
	key *[32]byte
}

// NewSealer builds a sealer from a hex encoded 32 byte key. An empty key disables sealing.
func NewSealer(hexKey string) (*Sealer, error) {
	if hexKey == "" {
		return &Sealer{}, nil
	}

	raw, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("decode encryption key: %w", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("encryption key must be 32 bytes, got %d", len(raw))
	}

	var key [32]byte
	copy(key[:], raw)
	return &Sealer{key: &key}, nil
}

// Enabled returns true if values are encrypted
func (s *Sealer) Enabled() bool {
	return s != nil && s.key != nil
}

func (s *Sealer) Seal(plaintext string) (string, error) {
	if !s.Enabled() || plaintext == "" {
		return plaintext, nil
	}

	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	out := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, s.key)
	return sealedPrefix + base64.RawStdEncoding.EncodeToString(out), nil
}

// Open reverses Seal. Values written before sealing was enabled are returned as is.
func (s *Sealer) Open(value string) (string, error) {
	if !strings.HasPrefix(value, sealedPrefix) {
		return value, nil
	}
	if !s.Enabled() {
		return "", fmt.Errorf("sealed value found but no encryption key configured")
	}

	raw, err := base64.RawStdEncoding.DecodeString(strings.TrimPrefix(value, sealedPrefix))
	if err != nil || len(raw) < nonceSize+secretbox.Overhead {
		return "", ErrInvalidSealedValue
	}

	var nonce [nonceSize]byte
	copy(nonce[:], raw[:nonceSize])
	plain, ok := secretbox.Open(nil, raw[nonceSize:], &nonce, s.key)
	if !ok {
		return "", ErrInvalidSealedValue
	}
	return string(plain), nil
}
