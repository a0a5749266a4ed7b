package trade

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/popswap/gopopswap/internal/chain"
	"github.com/popswap/gopopswap/internal/domain"
	"github.com/popswap/gopopswap/internal/ownership"
	"github.com/popswap/gopopswap/internal/wallet"
)

// approvalKey 一次已确认授权对应的资产、账户与网络
type approvalKey struct {
	asset   domain.AssetReference
	account common.Address
	chainID uint64
}

// side 一侧资产的全部状态；两侧之间不共享任何可变状态
type side struct {
	which     domain.Side
	link      string
	asset     domain.AssetReference
	standard  domain.TokenStandard
	own       domain.OwnershipState
	preview   domain.PreviewState
	probing   bool
	approving bool
	// recheck 授权确认后递增，使下一次探测的输入与进行中的不同
	recheck uint64
	// confirmed 最近一次链上已确认的授权；节点返回滞后的授权状态时以它为准
	confirmed approvalKey
	flight    *ownership.Flight
}

func newSide(which domain.Side, prober Prober) *side {
	return &side{which: which, flight: ownership.NewFlight(prober)}
}

// resetLocked 资产变化：所有权、标准、预览全部清空（RenderKey 保持递增）
func (s *side) resetLocked() {
	s.standard = domain.StandardUnknown
	s.own = domain.OwnershipState{}
	s.confirmed = approvalKey{}
	s.preview = s.preview.Reset()
	s.probing = false
	s.flight.Reset()
}

// approvalConfirmed 当前资产在当前账户与网络下的授权已经上链确认
func (s *side) approvalConfirmed(st wallet.State) bool {
	return s.asset.IsSet() && st.Connected &&
		s.confirmed == approvalKey{asset: s.asset, account: st.Account, chainID: st.ChainID}
}

// setAssetLocked 应用一个新的资产引用并启动流水线
func (c *Controller) setAssetLocked(s *side, link string, asset domain.AssetReference) {
	s.link = link
	s.asset = asset
	s.resetLocked()
	c.triggerLocked(s)
}

// ownershipRequired 起草时只要求持有开单资产；成交时只要求持有成交资产
func (c *Controller) ownershipRequired(which domain.Side) bool {
	if c.closingMode {
		return which == domain.SideClosing
	}
	return which == domain.SideOpening
}

func (c *Controller) triggerLocked(s *side) {
	if !s.asset.IsSet() {
		s.flight.Reset()
		s.probing = false
		return
	}
	req := ownership.Request{
		Side:              s.which,
		Account:           c.wallet.Account,
		HasAccount:        c.wallet.Connected,
		ChainID:           c.wallet.ChainID,
		Asset:             s.asset,
		OwnershipRequired: c.ownershipRequired(s.which),
		Recheck:           s.recheck,
	}
	ctx := c.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	if s.flight.Trigger(ctx, req, c.continuation(s)) {
		s.probing = true
	}
}

// continuation 探测完成后应用所有权，再解析预览。每次写状态前都要确认本次运行仍然有效
func (c *Controller) continuation(s *side) ownership.Continuation {
	return func(ctx context.Context, res ownership.Result, live func() bool) {
		c.mu.Lock()
		if !live() {
			c.mu.Unlock()
			return
		}
		own := res.State.Normalize()
		if own.Owned && !own.Approved && s.approvalConfirmed(c.wallet) {
			own.Approved = true
		}
		s.own = own
		s.standard = res.Standard
		s.probing = false
		s.preview = s.preview.Begin()
		asset, standard := s.asset, s.standard
		token := c.tokenLocked(asset)
		c.changedLocked()
		c.mu.Unlock()

		preview, found := c.resolvePreview(ctx, token, asset, standard)

		c.mu.Lock()
		defer c.mu.Unlock()
		if !live() {
			return
		}
		if found {
			s.preview = s.preview.Resolved(preview)
		} else {
			s.preview = s.preview.Missing()
		}
		c.changedLocked()
	}
}

// resolvePreview 预览失败只影响展示，不能中断流水线
func (c *Controller) resolvePreview(ctx context.Context, token chain.Token, asset domain.AssetReference, standard domain.TokenStandard) (preview domain.Preview, found bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("预览解析 panic: %v", r)
			preview, found = domain.Preview{}, false
		}
	}()
	if c.deps.Resolver == nil {
		return domain.Preview{}, false
	}
	return c.deps.Resolver.Resolve(ctx, token, asset, standard)
}

func (c *Controller) tokenLocked(asset domain.AssetReference) chain.Token {
	network, err := c.deps.Networks.Network(c.wallet.ChainID)
	if err != nil {
		return nil
	}
	token, err := network.Token(asset.ContractAddress)
	if err != nil {
		return nil
	}
	return token
}
