package crypto

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRandBytes_LengthAndUniqueness(t *testing.T) {
	t.Parallel()

	const n = 64
	a, err := RandBytes(n)
	require.NoError(t, err)
	require.Len(t, a, n)
	b, err := RandBytes(n)
	require.NoError(t, err)
	require.False(t, bytes.Equal(a, b))
}

func TestNewCredential_Verifies(t *testing.T) {
	t.Parallel()

	hash, salt, err := NewCredential("p@ssw0rd!")
	require.NoError(t, err)
	require.Len(t, salt, saltLen)
	require.Len(t, hash, int(argonKeyLen))
	require.True(t, VerifyPassword([]byte("p@ssw0rd!"), salt, hash))
	require.False(t, VerifyPassword([]byte("p@ssw0rd?"), salt, hash))

	hash2, salt2, err := NewCredential("p@ssw0rd!")
	require.NoError(t, err)
	require.NotEqual(t, salt, salt2)
	require.NotEqual(t, hash, hash2)
}

func TestVerifyPassword_EmptyHashNeverMatches(t *testing.T) {
	t.Parallel()
	require.False(t, VerifyPassword([]byte(""), nil, nil))
	require.False(t, VerifyPassword([]byte("anything"), []byte("salt"), []byte{}))
}
