package domain

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// ErrInvalidAssetReference 粘贴的链接无法解析为 (合约地址, tokenId)
var ErrInvalidAssetReference = errors.New("invalid asset reference")

// AssetReference 一个 NFT 的引用：合约地址 + tokenId
// tokenId 保持为字符串，避免超大 id 精度丢失；只在 ABI 边界转换为 *big.Int
type AssetReference struct {
	ContractAddress string `json:"contractAddress"`
	TokenID         string `json:"tokenId"`
}

// IsSet 两个字段都非空才算已设置
func (a AssetReference) IsSet() bool {
	return a.ContractAddress != "" && a.TokenID != ""
}

// TokenIDBig 将 tokenId 按十进制转换为 *big.Int；前导 0 不按八进制处理
func (a AssetReference) TokenIDBig() (*big.Int, error) {
	id, ok := new(big.Int).SetString(a.TokenID, 10)
	if !ok || id.Sign() < 0 {
		return nil, fmt.Errorf("invalid token id %q", a.TokenID)
	}
	return id, nil
}

// MarketplaceLink 重新构造一个市场链接（加载已有交易时回填输入框用）
func (a AssetReference) MarketplaceLink() string {
	if !a.IsSet() {
		return ""
	}
	return fmt.Sprintf("https://opensea.io/assets/%s/%s", a.ContractAddress, a.TokenID)
}

func (a AssetReference) String() string {
	if !a.IsSet() {
		return "<unset>"
	}
	return a.ContractAddress + "/" + a.TokenID
}

// ParseAssetReference 从任意粘贴的文本中提取 (合约地址, tokenId)
// 规则：找到第一个 "0x"，丢弃之前的内容；按 "/" 切分并去掉空段；恰好剩两段才有效。
// 例如 ".../assets/0xABC123/42" -> {0xABC123, 42}
func ParseAssetReference(raw string) (AssetReference, error) {
	idx := strings.Index(raw, "0x")
	if idx < 0 {
		return AssetReference{}, ErrInvalidAssetReference
	}

	segments := make([]string, 0, 2)
	for _, seg := range strings.Split(raw[idx:], "/") {
		if seg == "" {
			continue
		}
		segments = append(segments, seg)
	}
	if len(segments) != 2 {
		return AssetReference{}, ErrInvalidAssetReference
	}

	return AssetReference{
		ContractAddress: segments[0],
		TokenID:         segments[1],
	}, nil
}
