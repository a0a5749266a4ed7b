package secretstore

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_CRUD(t *testing.T) {
	s, err := Open(Options{InMemory: true})
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Get(KeyPrivateKey)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Set(KeyPrivateKey, "abc"))
	require.NoError(t, s.Set(KeyMnemonic, ""))
	v, err := s.Get(KeyPrivateKey)
	require.NoError(t, err)
	assert.Equal(t, "abc", v)

	v, err = s.Get(KeyMnemonic)
	require.NoError(t, err)
	assert.Empty(t, v)

	keys, err := s.Keys("wallet/")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{KeyPrivateKey, KeyMnemonic}, keys)

	require.NoError(t, s.Delete(KeyPrivateKey))
	_, err = s.Get(KeyPrivateKey)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, s.Set("  ", "x"), ErrEmptyKey)
}

func TestParseKey(t *testing.T) {
	k, err := ParseKey("")
	require.NoError(t, err)
	assert.Nil(t, k)

	k, err = ParseKey("0x" + strings.Repeat("ab", 32))
	require.NoError(t, err)
	assert.Len(t, k, 32)

	k, err = ParseKey("AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA=")
	require.NoError(t, err)
	assert.Len(t, k, 32)

	_, err = ParseKey("abcd")
	assert.Error(t, err)
	_, err = ParseKey("not a key!")
	assert.Error(t, err)
}
