package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/popswap/gopopswap/internal/domain"
)

// 老版本前端按日志下标取事件：开单取第 0 条，成交取第 2 条
const (
	openedLogIndex   = 0
	executedLogIndex = 2
)

// ErrEventNotFound 回执中找不到对应事件
var ErrEventNotFound = errors.New("trade event not found in receipt")

// TradeContract 交易合约
type TradeContract interface {
	Address() common.Address
	GetTrade(ctx context.Context, tradeID string) (domain.TradeRecord, error)
	OpenNewTrade(ctx context.Context, opening, closing domain.AssetReference, expiry time.Time) (Pending, error)
	ExecuteTrade(ctx context.Context, tradeID string, opening, closing domain.TokenStandard) (Pending, error)
	// OpenedTradeID 从开单回执中取出新交易的 id
	OpenedTradeID(receipt *ethtypes.Receipt) (string, error)
	// ExecutedTradeID 从成交回执中取出被成交交易的 id
	ExecutedTradeID(receipt *ethtypes.Receipt) (string, error)
}

type contractTrade struct {
	address    common.Address
	caller     ethereum.ContractCaller
	transactor *Transactor
}

func NewTradeContract(address common.Address, caller ethereum.ContractCaller, transactor *Transactor) TradeContract {
	return &contractTrade{address: address, caller: caller, transactor: transactor}
}

func (c *contractTrade) Address() common.Address { return c.address }

func (c *contractTrade) GetTrade(ctx context.Context, tradeID string) (domain.TradeRecord, error) {
	id, ok := new(big.Int).SetString(tradeID, 10)
	if !ok || id.Sign() < 0 {
		return domain.TradeRecord{}, fmt.Errorf("无效的交易id: %q", tradeID)
	}
	data, err := tradeABI.Pack("getTradeByTradeId", id)
	if err != nil {
		return domain.TradeRecord{}, fmt.Errorf("打包getTradeByTradeId参数失败: %w", err)
	}
	raw, err := c.caller.CallContract(ctx, ethereum.CallMsg{To: &c.address, Data: data}, nil)
	if err != nil {
		return domain.TradeRecord{}, fmt.Errorf("call getTradeByTradeId(%s): %w", tradeID, err)
	}
	out, err := tradeABI.Unpack("getTradeByTradeId", raw)
	if err != nil {
		return domain.TradeRecord{}, fmt.Errorf("解析getTradeByTradeId返回值失败: %w", err)
	}
	if len(out) != 8 {
		return domain.TradeRecord{}, fmt.Errorf("getTradeByTradeId 返回 %d 个字段", len(out))
	}

	openingContract, _ := out[1].(common.Address)
	openingID, _ := out[2].(*big.Int)
	closingContract, _ := out[3].(common.Address)
	closingID, _ := out[4].(*big.Int)
	expiry, _ := out[5].(*big.Int)
	marker, _ := out[6].(*big.Int)
	opener, _ := out[7].(common.Address)

	return domain.TradeRecord{
		TradeID: tradeID,
		Opening: domain.AssetReference{
			ContractAddress: openingContract.Hex(),
			TokenID:         bigString(openingID),
		},
		Closing: domain.AssetReference{
			ContractAddress: closingContract.Hex(),
			TokenID:         bigString(closingID),
		},
		Expiry:           bigInt64(expiry),
		CompletionMarker: bigString(marker),
		Opener:           opener.Hex(),
	}, nil
}

func (c *contractTrade) OpenNewTrade(ctx context.Context, opening, closing domain.AssetReference, expiry time.Time) (Pending, error) {
	openingAddr, err := ParseContractAddress(opening.ContractAddress)
	if err != nil {
		return nil, err
	}
	closingAddr, err := ParseContractAddress(closing.ContractAddress)
	if err != nil {
		return nil, err
	}
	openingID, err := opening.TokenIDBig()
	if err != nil {
		return nil, err
	}
	closingID, err := closing.TokenIDBig()
	if err != nil {
		return nil, err
	}
	data, err := tradeABI.Pack("openNewTrade", openingAddr, openingID, closingAddr, closingID, big.NewInt(expiry.Unix()))
	if err != nil {
		return nil, fmt.Errorf("打包openNewTrade参数失败: %w", err)
	}
	return c.transactor.Transact(ctx, c.address, data)
}

func (c *contractTrade) ExecuteTrade(ctx context.Context, tradeID string, opening, closing domain.TokenStandard) (Pending, error) {
	id, ok := new(big.Int).SetString(tradeID, 10)
	if !ok {
		return nil, fmt.Errorf("无效的交易id: %q", tradeID)
	}
	openingCode, ok := opening.WireCode()
	if !ok {
		return nil, fmt.Errorf("开单资产: %w", ErrUnsupportedStandard)
	}
	closingCode, ok := closing.WireCode()
	if !ok {
		return nil, fmt.Errorf("成交资产: %w", ErrUnsupportedStandard)
	}
	data, err := tradeABI.Pack("executeTrade", id, openingCode, closingCode)
	if err != nil {
		return nil, fmt.Errorf("打包executeTrade参数失败: %w", err)
	}
	return c.transactor.Transact(ctx, c.address, data)
}

func (c *contractTrade) OpenedTradeID(receipt *ethtypes.Receipt) (string, error) {
	return c.tradeIDFromReceipt(receipt, "TradeOpened", openedLogIndex)
}

func (c *contractTrade) ExecutedTradeID(receipt *ethtypes.Receipt) (string, error) {
	return c.tradeIDFromReceipt(receipt, "TradeExecuted", executedLogIndex)
}

// tradeIDFromReceipt 优先按事件签名查找本合约发出的日志；找不到时退回固定下标
func (c *contractTrade) tradeIDFromReceipt(receipt *ethtypes.Receipt, event string, fallbackIndex int) (string, error) {
	if receipt == nil {
		return "", ErrEventNotFound
	}
	topic := tradeABI.Events[event].ID
	for _, l := range receipt.Logs {
		if l == nil || l.Address != c.address || len(l.Topics) < 2 {
			continue
		}
		if l.Topics[0] == topic {
			return l.Topics[1].Big().String(), nil
		}
	}

	if fallbackIndex < len(receipt.Logs) {
		l := receipt.Logs[fallbackIndex]
		if l != nil && len(l.Topics) >= 2 {
			log.WithField("event", event).Warnf("未找到命名事件，使用第 %d 条日志", fallbackIndex)
			return l.Topics[1].Big().String(), nil
		}
	}
	return "", fmt.Errorf("%s: %w", event, ErrEventNotFound)
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func bigInt64(v *big.Int) int64 {
	if v == nil || !v.IsInt64() {
		return 0
	}
	return v.Int64()
}
