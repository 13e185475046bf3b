package security

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
)

const (
	nonceSize = 24
	keySize   = 32
)

func loadKey() ([keySize]byte, error) {
	var key [keySize]byte

	raw, err := base64.StdEncoding.DecodeString(GetConfig().ExchangeCRKey)
	if err != nil {
		return key, fmt.Errorf("decode credentials key: %w", err)
	}
	if len(raw) != keySize {
		return key, fmt.Errorf("credentials key must be %d bytes, got %d", keySize, len(raw))
	}

	copy(key[:], raw)
	return key, nil
}

// EncryptString seals a credential with the configured key. The random nonce
// is prepended to the ciphertext and the whole blob is base64 encoded.
func EncryptString(plaintext string) (string, error) {
	key, err := loadKey()
	if err != nil {
		return "", err
	}

	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	sealed := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &key)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// DecryptString reverses EncryptString. Tampered or foreign ciphertext fails
// authentication and returns an error.
func DecryptString(encoded string) (string, error) {
	key, err := loadKey()
	if err != nil {
		return "", err
	}

	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}
	if len(raw) < nonceSize {
		return "", errors.New("ciphertext too short")
	}

	var nonce [nonceSize]byte
	copy(nonce[:], raw[:nonceSize])

	opened, ok := secretbox.Open(nil, raw[nonceSize:], &nonce, &key)
	if !ok {
		return "", errors.New("credentials decryption failed")
	}
	return string(opened), nil
}
