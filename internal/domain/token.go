package domain

// TokenStandard 资产所属的代币标准，由所有权探测经验判定，不由用户声明
type TokenStandard int

const (
	StandardUnknown TokenStandard = iota
	StandardERC721
	StandardERC1155
)

func (s TokenStandard) String() string {
	switch s {
	case StandardERC721:
		return "ERC721"
	case StandardERC1155:
		return "ERC1155"
	default:
		return "unknown"
	}
}

// WireCode executeTrade 使用的标准编码：ERC721 = 0，ERC1155 = 1
func (s TokenStandard) WireCode() (uint8, bool) {
	switch s {
	case StandardERC721:
		return 0, true
	case StandardERC1155:
		return 1, true
	default:
		return 0, false
	}
}
