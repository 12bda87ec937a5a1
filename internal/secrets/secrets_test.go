package secrets

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey() string {
	return hex.EncodeToString(make([]byte, 32))
}

func TestEncryptDecrypt_RoundTrips(t *testing.T) {
	svc, err := New(testKey())
	require.NoError(t, err)

	ciphertext, err := svc.Encrypt("sk_live_super_secret")
	require.NoError(t, err)
	assert.NotEqual(t, "sk_live_super_secret", ciphertext)

	plain, err := svc.Decrypt(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, "sk_live_super_secret", plain)
}

func TestEncrypt_EmptyString_ReturnsEmpty(t *testing.T) {
	svc, err := New(testKey())
	require.NoError(t, err)

	ciphertext, err := svc.Encrypt("")
	require.NoError(t, err)
	assert.Equal(t, "", ciphertext)
}

func TestNew_RejectsWrongKeyLength(t *testing.T) {
	_, err := New(hex.EncodeToString(make([]byte, 16)))
	assert.Error(t, err)
}

func TestHash_IsDeterministicAndOneWay(t *testing.T) {
	svc, err := New(testKey())
	require.NoError(t, err)

	h1 := svc.Hash("whsec_abc")
	h2 := svc.Hash("whsec_abc")
	assert.Equal(t, h1, h2)
	assert.NotEqual(t, "whsec_abc", h1)
}
