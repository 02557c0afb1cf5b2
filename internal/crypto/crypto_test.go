package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCipherRoundTrip(t *testing.T) {
	c, err := NewCipher("test-passphrase")
	require.NoError(t, err)

	ciphertext, err := c.Encrypt("imap-password-123")
	require.NoError(t, err)
	assert.NotEqual(t, "imap-password-123", ciphertext)

	plaintext, err := c.Decrypt(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, "imap-password-123", plaintext)
}

func TestCipherNoncesDiffer(t *testing.T) {
	c, err := NewCipher("test-passphrase")
	require.NoError(t, err)

	first, err := c.Encrypt("same-input")
	require.NoError(t, err)
	second, err := c.Encrypt("same-input")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestCipherWrongKey(t *testing.T) {
	c1, err := NewCipher("key-one")
	require.NoError(t, err)
	c2, err := NewCipher("key-two")
	require.NoError(t, err)

	ciphertext, err := c1.Encrypt("secret")
	require.NoError(t, err)

	_, err = c2.Decrypt(ciphertext)
	assert.Error(t, err)
}

func TestCipherEmptyPassphrase(t *testing.T) {
	_, err := NewCipher("")
	assert.Error(t, err)
}
