package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testParams = Argon2Params{Time: 1, Memory: 1024, Threads: 1, KeyLen: 32, SaltLen: 16}

func TestArgon2Hasher_HashAndVerify(t *testing.T) {
	h := NewArgon2Hasher(testParams)

	hash, err := h.Hash("demo123")
	require.NoError(t, err)
	assert.Contains(t, string(hash), "$argon2id$v=19$m=1024,t=1,p=1$")

	ok, err := h.Verify("demo123", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.Verify("wrongpass", hash)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestArgon2Hasher_SaltedHashesDiffer(t *testing.T) {
	h := NewArgon2Hasher(testParams)

	a, err := h.Hash("demo123")
	require.NoError(t, err)
	b, err := h.Hash("demo123")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestArgon2Hasher_RejectsMalformed(t *testing.T) {
	h := NewArgon2Hasher(testParams)

	_, err := h.Verify("demo123", []byte("$2a$10$bcrypt-hash"))
	assert.Error(t, err)

	_, err = h.Verify("demo123", []byte("$argon2id$v=19$m=1024,t=1,p=1$!!!$abc"))
	assert.Error(t, err)
}
