package security

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// Test index:
// 1. TestEncryptDecryptRoundTrip
// 2. TestDecryptTamperedCiphertext
// 3. TestDecryptGarbageInput
// 4. TestBadKeyLength

func TestEncryptDecryptRoundTrip(t *testing.T) {
	sealed, err := EncryptString("api-secret-value")
	require.NoError(t, err)
	require.NotEqual(t, "api-secret-value", sealed)

	// A fresh nonce must produce a different blob for the same input.
	sealedAgain, err := EncryptString("api-secret-value")
	require.NoError(t, err)
	require.NotEqual(t, sealed, sealedAgain)

	plain, err := DecryptString(sealed)
	require.NoError(t, err)
	require.Equal(t, "api-secret-value", plain)
}

func TestDecryptTamperedCiphertext(t *testing.T) {
	sealed, err := EncryptString("api-key")
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(sealed)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0xff

	_, err = DecryptString(base64.StdEncoding.EncodeToString(raw))
	require.Error(t, err)
}

func TestDecryptGarbageInput(t *testing.T) {
	if _, err := DecryptString("not base64!!"); err == nil {
		t.Fatalf("expected error for invalid base64")
	}
	if _, err := DecryptString(base64.StdEncoding.EncodeToString([]byte("short"))); err == nil {
		t.Fatalf("expected error for truncated ciphertext")
	}
}

func TestBadKeyLength(t *testing.T) {
	t.Setenv("EXCHANGE_CREDENTIALS_KEY", base64.StdEncoding.EncodeToString([]byte("too-short")))

	_, err := EncryptString("value")
	require.Error(t, err)
	require.True(t, strings.Contains(err.Error(), "32 bytes"))
}
