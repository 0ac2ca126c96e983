package secrets

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCipher_RoundTrip(t *testing.T) {
	c, err := NewCipher("correct horse")
	require.NoError(t, err)

	enc, err := c.Encrypt("api-secret")
	require.NoError(t, err)
	assert.NotContains(t, enc, "api-secret")

	plain, err := c.Decrypt(enc)
	require.NoError(t, err)
	assert.Equal(t, "api-secret", plain)
}

func TestCipher_WrongKey(t *testing.T) {
	a, _ := NewCipher("one")
	b, _ := NewCipher("two")

	enc, err := a.Encrypt("x")
	require.NoError(t, err)

	_, err = b.Decrypt(enc)
	assert.Error(t, err)
}

func TestCipher_NilPassesThrough(t *testing.T) {
	c, err := NewCipher("")
	require.NoError(t, err)
	assert.Nil(t, c)

	enc, err := c.Encrypt("plain")
	require.NoError(t, err)
	assert.Equal(t, "plain", enc)

	dec, err := c.Decrypt("plain")
	require.NoError(t, err)
	assert.Equal(t, "plain", dec)

	other, _ := NewCipher("k")
	sealed, _ := other.Encrypt("v")
	_, err = c.Decrypt(sealed)
	assert.Error(t, err)
}
