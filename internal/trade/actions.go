package trade

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"

	"github.com/popswap/gopopswap/internal/chain"
	"github.com/popswap/gopopswap/internal/domain"
	"github.com/popswap/gopopswap/internal/metrics"
)

// SetOpeningLink 粘贴开单资产链接。解析失败时清空该侧并返回 domain.ErrInvalidAssetReference
func (c *Controller) SetOpeningLink(raw string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closingMode || c.opened || c.submittingOpen {
		return ErrNotReady
	}
	err := c.applyLinkLocked(c.opening, raw)
	c.changedLocked()
	return err
}

// SetClosingLink 粘贴想要的资产链接。先完整清空成交侧（包括分享 id），再应用新引用
func (c *Controller) SetClosingLink(raw string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closingMode || c.submittingOpen {
		return ErrNotReady
	}
	c.closing.link = ""
	c.closing.asset = domain.AssetReference{}
	c.closing.resetLocked()
	c.shareID = ""
	c.opened = false
	err := c.applyLinkLocked(c.closing, raw)
	c.changedLocked()
	return err
}

func (c *Controller) applyLinkLocked(s *side, raw string) error {
	asset, err := domain.ParseAssetReference(raw)
	if err != nil {
		s.link = raw
		s.asset = domain.AssetReference{}
		s.resetLocked()
		log.WithField("side", s.which).Debugf("链接无法解析: %q", raw)
		return err
	}
	if asset == s.asset && s.link == raw {
		return nil
	}
	c.setAssetLocked(s, raw, asset)
	return nil
}

// ApproveOpening 授权交易合约转移开单资产
func (c *Controller) ApproveOpening(ctx context.Context) error {
	return c.approve(ctx, c.opening, SummaryApproveOpening)
}

// ApproveClosing 授权交易合约转移成交资产
func (c *Controller) ApproveClosing(ctx context.Context) error {
	return c.approve(ctx, c.closing, SummaryApproveClosing)
}

func (c *Controller) approve(ctx context.Context, s *side, summary string) error {
	c.mu.Lock()
	if !c.wallet.Connected {
		c.mu.Unlock()
		return ErrNoAccount
	}
	if s.approving {
		c.mu.Unlock()
		return ErrActionPending
	}
	g := c.gatingLocked()
	allowed := g.CanApproveOpening
	if s.which == domain.SideClosing {
		allowed = g.CanApproveClosing
	}
	if !allowed {
		c.mu.Unlock()
		return ErrNotReady
	}
	st, asset, standard := c.wallet, s.asset, s.standard
	s.approving = true
	c.lastError = ""
	c.changedLocked()
	c.mu.Unlock()

	entry := log.WithFields(logrus.Fields{"side": s.which, "asset": asset.String(), "standard": standard.String()})
	err := c.submitApproval(ctx, st.ChainID, asset, standard, st.AccountHex(), summary)

	c.mu.Lock()
	defer c.mu.Unlock()
	s.approving = false
	if err != nil {
		entry.WithError(err).Warn("授权失败")
		c.lastError = err.Error()
		c.changedLocked()
		return err
	}
	entry.Info("授权已确认")
	// 授权已上链：同一资产、账户、网络下直接视为已授权，再重新探测刷新其余状态
	s.recheck++
	if s.asset == asset && c.wallet.Account == st.Account && c.wallet.ChainID == st.ChainID {
		s.confirmed = approvalKey{asset: asset, account: st.Account, chainID: st.ChainID}
		if s.own.Owned {
			s.own.Approved = true
		}
		c.triggerLocked(s)
	}
	c.changedLocked()
	return nil
}

func (c *Controller) submitApproval(ctx context.Context, chainID uint64, asset domain.AssetReference, standard domain.TokenStandard, account, summary string) error {
	network, err := c.deps.Networks.Network(chainID)
	if err != nil {
		return err
	}
	tc, err := network.Trade()
	if err != nil {
		return err
	}
	token, err := network.Token(asset.ContractAddress)
	if err != nil {
		return err
	}
	id, err := asset.TokenIDBig()
	if err != nil {
		return err
	}
	pending, err := token.SubmitApproval(ctx, standard, tc.Address(), id)
	if err != nil {
		return err
	}
	_, err = c.await(ctx, pending, chainID, account, summary)
	return err
}

// OpenTrade 提交 openNewTrade，有效期为提交时刻起 DefaultExpiration
func (c *Controller) OpenTrade(ctx context.Context) error {
	c.mu.Lock()
	if !c.wallet.Connected {
		c.mu.Unlock()
		return ErrNoAccount
	}
	if c.submittingOpen {
		c.mu.Unlock()
		return ErrActionPending
	}
	if !c.gatingLocked().CanOpenTrade {
		c.mu.Unlock()
		return ErrNotReady
	}
	st, opening, closing := c.wallet, c.opening.asset, c.closing.asset
	c.submittingOpen = true
	c.lastError = ""
	c.changedLocked()
	c.mu.Unlock()

	shareID, err := c.submitOpen(ctx, st.ChainID, st.AccountHex(), opening, closing)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.submittingOpen = false
	if err != nil {
		log.WithError(err).Warn("开单失败")
		c.lastError = err.Error()
		c.changedLocked()
		return err
	}
	c.opened = true
	c.shareID = shareID
	c.changedLocked()
	log.WithField("shareId", shareID).Info("开单成功")
	return nil
}

func (c *Controller) submitOpen(ctx context.Context, chainID uint64, account string, opening, closing domain.AssetReference) (string, error) {
	tc, err := c.tradeContract(chainID)
	if err != nil {
		return "", err
	}
	expiry := c.deps.Now().Add(DefaultExpiration)
	pending, err := tc.OpenNewTrade(ctx, opening, closing, expiry)
	if err != nil {
		return "", err
	}
	receipt, err := c.await(ctx, pending, chainID, account, SummaryOpenTrade)
	if err != nil {
		return "", err
	}
	shareID, err := tc.OpenedTradeID(receipt)
	if err != nil {
		// 交易已经上链，只是无法生成分享链接
		log.WithError(err).WithField("tx", pending.Hash().Hex()).Warn("回执中找不到交易id")
		return "", nil
	}
	return shareID, nil
}

// CloseTrade 提交 executeTrade 完成交易
func (c *Controller) CloseTrade(ctx context.Context) error {
	c.mu.Lock()
	if !c.closingMode || c.swapID == "" {
		c.mu.Unlock()
		return ErrNoSwap
	}
	if !c.wallet.Connected {
		c.mu.Unlock()
		return ErrNoAccount
	}
	if c.submittingClose {
		c.mu.Unlock()
		return ErrActionPending
	}
	if !c.gatingLocked().CanTrade {
		c.mu.Unlock()
		return ErrNotReady
	}
	st, swapID := c.wallet, c.swapID
	openingStd, closingStd := c.opening.standard, c.closing.standard
	c.submittingClose = true
	c.lastError = ""
	c.changedLocked()
	c.mu.Unlock()

	err := c.submitClose(ctx, st.ChainID, st.AccountHex(), swapID, openingStd, closingStd)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.submittingClose = false
	if err != nil {
		log.WithError(err).WithField("swapId", swapID).Warn("成交失败")
		c.lastError = err.Error()
		c.changedLocked()
		return err
	}
	c.completed = true
	c.changedLocked()
	log.WithField("swapId", swapID).Info("交易已完成")
	return nil
}

func (c *Controller) submitClose(ctx context.Context, chainID uint64, account, swapID string, openingStd, closingStd domain.TokenStandard) error {
	tc, err := c.tradeContract(chainID)
	if err != nil {
		return err
	}
	pending, err := tc.ExecuteTrade(ctx, swapID, openingStd, closingStd)
	if err != nil {
		return err
	}
	receipt, err := c.await(ctx, pending, chainID, account, SummaryCloseTrade)
	if err != nil {
		return err
	}
	executed, err := tc.ExecutedTradeID(receipt)
	if err == nil && sameTradeID(executed, swapID) {
		return nil
	}
	// 事件缺失或不匹配时以链上记录为准
	rec, ferr := tc.GetTrade(ctx, swapID)
	if ferr != nil {
		return fmt.Errorf("无法确认交易 %s 是否完成: %w", swapID, ferr)
	}
	if !rec.Completed() {
		if err == nil {
			err = fmt.Errorf("回执中的交易id %s 与 %s 不一致", executed, swapID)
		}
		return fmt.Errorf("交易 %s 未完成: %w", swapID, err)
	}
	return nil
}

// await 记录交易并等待确认；记录失败不影响主流程
func (c *Controller) await(ctx context.Context, pending chain.Pending, chainID uint64, account, summary string) (*ethtypes.Receipt, error) {
	hash := pending.Hash().Hex()
	metrics.TxSubmitted.Add(1)
	c.deps.History.Record(hash, account, chainID, summary)
	r, err := pending.Wait(ctx)
	c.deps.History.MarkConfirmed(hash, err == nil)
	if err != nil {
		metrics.TxFailed.Add(1)
		return nil, err
	}
	metrics.TxConfirmed.Add(1)
	return r, nil
}

func sameTradeID(a, b string) bool {
	x, ok1 := new(big.Int).SetString(a, 10)
	y, ok2 := new(big.Int).SetString(b, 10)
	if ok1 && ok2 {
		return x.Cmp(y) == 0
	}
	return a == b
}

// IsUserError 控制器返回的状态类错误（不是链上失败）
func IsUserError(err error) bool {
	return errors.Is(err, ErrActionPending) ||
		errors.Is(err, ErrNotReady) ||
		errors.Is(err, ErrNoSwap) ||
		errors.Is(err, ErrNoAccount) ||
		errors.Is(err, domain.ErrInvalidAssetReference)
}
