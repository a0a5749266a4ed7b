package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAssetReference(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    AssetReference
		wantErr bool
	}{
		{name: "marketplace url", raw: "https://opensea.io/assets/0xABC123/42", want: AssetReference{ContractAddress: "0xABC123", TokenID: "42"}},
		{name: "ellipsis prefix", raw: ".../assets/0xABC123/42", want: AssetReference{ContractAddress: "0xABC123", TokenID: "42"}},
		{name: "trailing slash", raw: "0xabc/7/", want: AssetReference{ContractAddress: "0xabc", TokenID: "7"}},
		{name: "double slashes", raw: "0xabc//7", want: AssetReference{ContractAddress: "0xabc", TokenID: "7"}},
		{name: "huge id keeps precision", raw: "0xabc/115792089237316195423570985008687907853269984665640564039457584007913129639935", want: AssetReference{ContractAddress: "0xabc", TokenID: "115792089237316195423570985008687907853269984665640564039457584007913129639935"}},
		{name: "not a link", raw: "not a link", wantErr: true},
		{name: "empty", raw: "", wantErr: true},
		{name: "address only", raw: "https://opensea.io/assets/0xABC123", wantErr: true},
		{name: "too many segments", raw: "https://opensea.io/assets/0xABC123/42/extra", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAssetReference(tt.raw)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidAssetReference)
				assert.False(t, got.IsSet())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseAssetReference_Idempotent(t *testing.T) {
	raw := "https://opensea.io/assets/0x495f947276749ce646f68ac8c248420045cb7b5e/1234"
	a, err := ParseAssetReference(raw)
	require.NoError(t, err)
	b, err := ParseAssetReference(raw)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	// 由重建的链接再解析，结果不变
	c, err := ParseAssetReference(a.MarketplaceLink())
	require.NoError(t, err)
	assert.Equal(t, a, c)
}

func TestAssetReference_TokenIDBig(t *testing.T) {
	tests := []struct {
		id      string
		want    string
		wantErr bool
	}{
		{id: "42", want: "42"},
		{id: "010", want: "10"},
		{id: "089", want: "89"},
		{id: "115792089237316195423570985008687907853269984665640564039457584007913129639935", want: "115792089237316195423570985008687907853269984665640564039457584007913129639935"},
		{id: "1_000", wantErr: true},
		{id: "0x10", wantErr: true},
		{id: "0b101", wantErr: true},
		{id: "-1", wantErr: true},
		{id: "abc", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			id, err := AssetReference{ContractAddress: "0xabc", TokenID: tt.id}.TokenIDBig()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, id.String())
		})
	}
}

func TestParseAssetReference_LeadingZeroTokenID(t *testing.T) {
	a, err := ParseAssetReference("https://opensea.io/assets/0x495f947276749ce646f68ac8c248420045cb7b5e/010")
	require.NoError(t, err)
	id, err := a.TokenIDBig()
	require.NoError(t, err)
	assert.Equal(t, "10", id.String())
}

func TestPreviewState_Transitions(t *testing.T) {
	var p PreviewState
	p = p.Begin()
	assert.True(t, p.Loading)
	assert.False(t, p.NotFound)

	p = p.Resolved(Preview{URL: "https://ipfs.io/ipfs/x", Format: FormatVideo})
	assert.False(t, p.Loading)
	assert.False(t, p.NotFound)
	assert.Equal(t, 1, p.RenderKey)

	p = p.Begin().Missing()
	assert.True(t, p.NotFound)
	assert.False(t, p.Loading)
	assert.Empty(t, p.URL)
	assert.Equal(t, FormatNone, p.Format)

	p = p.Reset()
	assert.Equal(t, PreviewState{RenderKey: 1}, p)
}

func TestOwnershipState_Normalize(t *testing.T) {
	got := OwnershipState{Owned: false, Approved: true}.Normalize()
	assert.False(t, got.Approved)

	got = OwnershipState{Owned: true, Approved: true}.Normalize()
	assert.True(t, got.Approved)
}

func TestShareLink(t *testing.T) {
	assert.Equal(t, "/swap/12", ShareLink("", "12"))
	assert.Equal(t, "https://popswap.example/#/swap/12", ShareLink("https://popswap.example/#/", "12"))
	assert.Empty(t, ShareLink("https://x", ""))
}

func TestTradeRecord_Completed(t *testing.T) {
	assert.False(t, TradeRecord{CompletionMarker: "0"}.Completed())
	assert.False(t, TradeRecord{}.Completed())
	assert.True(t, TradeRecord{CompletionMarker: "3"}.Completed())
}
