package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/popswap/gopopswap/internal/domain"
)

var (
	// ErrInvalidAddress 合约地址不是合法的 20 字节十六进制地址
	ErrInvalidAddress = errors.New("invalid contract address")
	// ErrUnsupportedStandard 无法对未知标准的资产执行操作
	ErrUnsupportedStandard = errors.New("unsupported token standard")
)

// Token 一个 NFT 合约的读写能力。合约可能实现 ERC721 或 ERC1155，
// 调用方按标准逐个尝试；方法返回 error 表示该标准的调用在结构上失败
// （合约不存在、不支持该接口、网络不匹配等），而不是"未持有"。
type Token interface {
	Address() common.Address
	// ProbeOwnership ERC1155: balanceOf(account,id) > 0；ERC721: ownerOf(id) == account
	ProbeOwnership(ctx context.Context, standard domain.TokenStandard, account common.Address, id *big.Int) (bool, error)
	// ProbeApproval ERC1155: isApprovedForAll(account,operator)；ERC721: getApproved(id) == operator
	ProbeApproval(ctx context.Context, standard domain.TokenStandard, account, operator common.Address, id *big.Int) (bool, error)
	// MetadataURI ERC1155: uri(id)；ERC721: tokenURI(id)
	MetadataURI(ctx context.Context, standard domain.TokenStandard, id *big.Int) (string, error)
	// SubmitApproval ERC1155: setApprovalForAll(operator,true)；ERC721: approve(operator,id)
	SubmitApproval(ctx context.Context, standard domain.TokenStandard, operator common.Address, id *big.Int) (Pending, error)
}

// ContractToken 基于节点调用的 Token 实现
type ContractToken struct {
	address    common.Address
	caller     ethereum.ContractCaller
	transactor *Transactor
}

func NewContractToken(address common.Address, caller ethereum.ContractCaller, transactor *Transactor) *ContractToken {
	return &ContractToken{address: address, caller: caller, transactor: transactor}
}

func (t *ContractToken) Address() common.Address { return t.address }

func (t *ContractToken) call(ctx context.Context, parsed abi.ABI, method string, out any, args ...any) error {
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return fmt.Errorf("打包%s参数失败: %w", method, err)
	}
	raw, err := t.caller.CallContract(ctx, ethereum.CallMsg{To: &t.address, Data: data}, nil)
	if err != nil {
		return fmt.Errorf("call %s.%s: %w", t.address.Hex(), method, err)
	}
	if len(raw) == 0 {
		// 地址上没有合约代码，或合约没有实现该方法
		return fmt.Errorf("call %s.%s: empty response", t.address.Hex(), method)
	}
	if err := parsed.UnpackIntoInterface(out, method, raw); err != nil {
		return fmt.Errorf("解析%s返回值失败: %w", method, err)
	}
	return nil
}

func (t *ContractToken) ProbeOwnership(ctx context.Context, standard domain.TokenStandard, account common.Address, id *big.Int) (bool, error) {
	switch standard {
	case domain.StandardERC1155:
		var balance *big.Int
		if err := t.call(ctx, erc1155ABI, "balanceOf", &balance, account, id); err != nil {
			return false, err
		}
		return balance != nil && balance.Sign() > 0, nil
	case domain.StandardERC721:
		var owner common.Address
		if err := t.call(ctx, erc721ABI, "ownerOf", &owner, id); err != nil {
			return false, err
		}
		return owner == account, nil
	default:
		return false, ErrUnsupportedStandard
	}
}

func (t *ContractToken) ProbeApproval(ctx context.Context, standard domain.TokenStandard, account, operator common.Address, id *big.Int) (bool, error) {
	switch standard {
	case domain.StandardERC1155:
		var ok bool
		if err := t.call(ctx, erc1155ABI, "isApprovedForAll", &ok, account, operator); err != nil {
			return false, err
		}
		return ok, nil
	case domain.StandardERC721:
		var approved common.Address
		if err := t.call(ctx, erc721ABI, "getApproved", &approved, id); err != nil {
			return false, err
		}
		return approved == operator, nil
	default:
		return false, ErrUnsupportedStandard
	}
}

func (t *ContractToken) MetadataURI(ctx context.Context, standard domain.TokenStandard, id *big.Int) (string, error) {
	var uri string
	switch standard {
	case domain.StandardERC1155:
		if err := t.call(ctx, erc1155ABI, "uri", &uri, id); err != nil {
			return "", err
		}
	case domain.StandardERC721:
		if err := t.call(ctx, erc721ABI, "tokenURI", &uri, id); err != nil {
			return "", err
		}
	default:
		return "", ErrUnsupportedStandard
	}
	return uri, nil
}

func (t *ContractToken) SubmitApproval(ctx context.Context, standard domain.TokenStandard, operator common.Address, id *big.Int) (Pending, error) {
	var (
		data []byte
		err  error
	)
	switch standard {
	case domain.StandardERC1155:
		data, err = erc1155ABI.Pack("setApprovalForAll", operator, true)
	case domain.StandardERC721:
		data, err = erc721ABI.Pack("approve", operator, id)
	default:
		return nil, ErrUnsupportedStandard
	}
	if err != nil {
		return nil, fmt.Errorf("打包授权参数失败: %w", err)
	}
	return t.transactor.Transact(ctx, t.address, data)
}

// ParseContractAddress 校验并转换合约地址
func ParseContractAddress(raw string) (common.Address, error) {
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, raw)
	}
	return common.HexToAddress(raw), nil
}
