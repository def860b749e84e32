package utils

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/nacl/secretbox"
)

const nonceSize = 24

// ErrUnseal is returned when sealed data was tampered with or the key is wrong
var ErrUnseal = errors.New("sealed data could not be opened")

// ParseKey decodes a hex-encoded 32-byte sealing key
func ParseKey(hexKey string) (*[32]byte, error) {
	raw, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decode key: %w", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("sealing key must be 32 bytes, got %d", len(raw))
	}
	var key [32]byte
	copy(key[:], raw)
	return &key, nil
}

// Seal encrypts and authenticates data; the random nonce is prepended
func Seal(data []byte, key *[32]byte) ([]byte, error) {
	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return secretbox.Seal(nonce[:], data, &nonce, key), nil
}

// Open reverses Seal
func Open(sealed []byte, key *[32]byte) ([]byte, error) {
	if len(sealed) < nonceSize+secretbox.Overhead {
		return nil, fmt.Errorf("sealed data too short: %d bytes", len(sealed))
	}
	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])
	plain, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, key)
	if !ok {
		return nil, ErrUnseal
	}
	return plain, nil
}
