// Package ownership 判定某账户是否持有一个 NFT、交易合约是否已获授权。
// 合约可能是 ERC1155 或 ERC721，标准由探测结果经验判定。
package ownership

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/popswap/gopopswap/internal/chain"
	"github.com/popswap/gopopswap/internal/domain"
	"github.com/popswap/gopopswap/internal/metrics"
)

var log = logrus.WithField("component", "ownership")

const (
	MsgConnectWallet      = "Please Connect Wallet First"
	MsgOpeningMustBeOwned = "Opening Token Must Be Owned"
	MsgClosingMustBeOwned = "Closing Token Must Be Owned"
)

// MsgNotFoundOnNetwork 两种标准都在结构上失败
func MsgNotFoundOnNetwork(chainID uint64) string {
	return fmt.Sprintf("Not Found On Current Network (%s)", chain.NetworkLabel(chainID))
}

// Request 一次探测的全部输入，可比较；相同的 Request 视为同一次探测
type Request struct {
	Side              domain.Side
	Account           common.Address
	HasAccount        bool
	ChainID           uint64
	Asset             domain.AssetReference
	OwnershipRequired bool
	// Recheck 授权交易确认后递增，强制重新探测
	Recheck uint64
}

// Result 探测结果
type Result struct {
	State    domain.OwnershipState
	Standard domain.TokenStandard
}

// Prober 无状态，可并发使用
type Prober struct {
	networks chain.Networks
}

func NewProber(networks chain.Networks) *Prober {
	return &Prober{networks: networks}
}

// Probe 依次尝试 ERC1155 与 ERC721。
// ERC1155 余额为 0 属于正常响应，仍会尝试 ERC721；若 ERC721 结构性失败，则按未持有的 ERC1155 处理。
// 没有账户时仍会判定标准（用零地址做只读调用），但不会报告持有。
func (p *Prober) Probe(ctx context.Context, req Request) Result {
	entry := log.WithFields(logrus.Fields{
		"side":    req.Side,
		"asset":   req.Asset.String(),
		"chainId": req.ChainID,
	})

	metrics.ProbeRuns.Add(1)
	res := Result{Standard: domain.StandardUnknown}
	token, operator, err := p.resolve(req)
	if err != nil {
		entry.WithError(err).Debug("无法访问资产合约")
	}

	var erc1155Responded, erc721Responded bool
	if token != nil {
		res, erc1155Responded, erc721Responded = p.probeStandards(ctx, token, operator, req, entry)
	}

	switch {
	case !req.HasAccount:
		res.State = domain.OwnershipState{ErrorMessage: MsgConnectWallet}
	case !erc1155Responded && !erc721Responded:
		metrics.ProbeNotFound.Add(1)
		res.State.ErrorMessage = MsgNotFoundOnNetwork(req.ChainID)
	case !res.State.Owned && req.OwnershipRequired:
		res.State.ErrorMessage = mustBeOwned(req.Side)
	}
	res.State = res.State.Normalize()
	return res
}

func (p *Prober) resolve(req Request) (chain.Token, common.Address, error) {
	if !req.Asset.IsSet() {
		return nil, common.Address{}, fmt.Errorf("asset not set")
	}
	network, err := p.networks.Network(req.ChainID)
	if err != nil {
		return nil, common.Address{}, err
	}
	token, err := network.Token(req.Asset.ContractAddress)
	if err != nil {
		return nil, common.Address{}, err
	}
	var operator common.Address
	if trade, err := network.Trade(); err == nil {
		operator = trade.Address()
	}
	return token, operator, nil
}

func (p *Prober) probeStandards(ctx context.Context, token chain.Token, operator common.Address, req Request, entry *logrus.Entry) (Result, bool, bool) {
	res := Result{Standard: domain.StandardUnknown}
	id, err := req.Asset.TokenIDBig()
	if err != nil {
		entry.WithError(err).Debug("tokenId 无效")
		return res, false, false
	}

	// ERC1155
	owned, err := token.ProbeOwnership(ctx, domain.StandardERC1155, req.Account, id)
	erc1155Responded := err == nil
	if err != nil {
		entry.WithError(err).Debug("ERC1155 探测失败")
	}
	if erc1155Responded && owned && req.HasAccount {
		res.Standard = domain.StandardERC1155
		res.State.Owned = true
		res.State.Approved = p.approval(ctx, token, domain.StandardERC1155, req.Account, operator, id, entry)
		return res, true, false
	}

	// ERC721
	owned, err = token.ProbeOwnership(ctx, domain.StandardERC721, req.Account, id)
	erc721Responded := err == nil
	if err != nil {
		entry.WithError(err).Debug("ERC721 探测失败")
	}
	switch {
	case erc721Responded:
		res.Standard = domain.StandardERC721
		if owned && req.HasAccount {
			res.State.Owned = true
			res.State.Approved = p.approval(ctx, token, domain.StandardERC721, req.Account, operator, id, entry)
		}
	case erc1155Responded:
		res.Standard = domain.StandardERC1155
	}
	return res, erc1155Responded, erc721Responded
}

// approval 没有交易合约（零地址 operator）或查询失败时视为未授权
func (p *Prober) approval(ctx context.Context, token chain.Token, std domain.TokenStandard, account, operator common.Address, id *big.Int, entry *logrus.Entry) bool {
	if operator == (common.Address{}) {
		return false
	}
	approved, err := token.ProbeApproval(ctx, std, account, operator, id)
	if err != nil {
		entry.WithError(err).Warn("查询授权状态失败")
		return false
	}
	return approved
}

func mustBeOwned(side domain.Side) string {
	if side == domain.SideClosing {
		return MsgClosingMustBeOwned
	}
	return MsgOpeningMustBeOwned
}
