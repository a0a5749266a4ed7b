package history

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_InsertListStatus(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "sub", "history.db"))
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	e, err := s.Insert(ctx, Entry{Hash: "0x01", Account: "0xABC", ChainID: 4, Summary: "Approve Opening NFT"})
	require.NoError(t, err)
	assert.NotEmpty(t, e.ID)
	assert.Equal(t, StatusPending, e.Status)

	_, err = s.Insert(ctx, Entry{Hash: "0x02", Account: "0xdef", ChainID: 4, Summary: "Opening NFT Trade"})
	require.NoError(t, err)

	require.NoError(t, s.SetStatus(ctx, "0x01", StatusConfirmed))
	assert.Error(t, s.SetStatus(ctx, "0xmissing", StatusConfirmed))

	got, err := s.Get(ctx, "0x01")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, StatusConfirmed, got.Status)
	assert.Equal(t, "0xabc", got.Account)

	missing, err := s.Get(ctx, "0xmissing")
	require.NoError(t, err)
	assert.Nil(t, missing)

	mine, err := s.List(ctx, "0xAbC", 0)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "Approve Opening NFT", mine[0].Summary)

	all, err := s.List(ctx, "", 10)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestAsyncRecorder(t *testing.T) {
	s, err := Open(":memory:")
	require.NoError(t, err)
	defer s.Close()

	r := NewAsyncRecorder(s, 8)
	r.Record("0xaa", "0xabc", 4, "Trading NFTs")
	r.MarkConfirmed("0xaa", false)
	require.NoError(t, r.Close(context.Background()))

	// 关闭后的写入被忽略
	r.Record("0xbb", "0xabc", 4, "Trading NFTs")

	got, err := s.Get(context.Background(), "0xaa")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, "Trading NFTs", got.Summary)
}
