package trade

import (
	"github.com/popswap/gopopswap/internal/chain"
	"github.com/popswap/gopopswap/internal/domain"
)

// SideView 一侧资产的只读视图
type SideView struct {
	Link      string                `json:"link"`
	Asset     domain.AssetReference `json:"asset"`
	Standard  string                `json:"standard"`
	Ownership domain.OwnershipState `json:"ownership"`
	Preview   domain.PreviewState   `json:"preview"`
	Probing   bool                  `json:"probing"`
	Approving bool                  `json:"approving"`
}

// Gating 各操作按钮是否显示、是否可用
type Gating struct {
	ShowOpeningActions bool   `json:"showOpeningActions"`
	CanApproveOpening  bool   `json:"canApproveOpening"`
	CanOpenTrade       bool   `json:"canOpenTrade"`
	ShowClosingActions bool   `json:"showClosingActions"`
	CanApproveClosing  bool   `json:"canApproveClosing"`
	CanTrade           bool   `json:"canTrade"`
	TradeLabel         string `json:"tradeLabel"`
}

// Snapshot 控制器状态的只读副本
type Snapshot struct {
	Phase        domain.Phase `json:"phase"`
	ClosingMode  bool         `json:"closingMode"`
	SwapID       string       `json:"swapId,omitempty"`
	ShareID      string       `json:"shareId,omitempty"`
	ShareLink    string       `json:"shareLink,omitempty"`
	Completed    bool         `json:"completed"`
	Account      string       `json:"account,omitempty"`
	Connected    bool         `json:"connected"`
	ChainID      uint64       `json:"chainId"`
	NetworkLabel string       `json:"networkLabel"`
	Opening      SideView     `json:"opening"`
	Closing      SideView     `json:"closing"`
	LastError    string       `json:"lastError,omitempty"`
	Gating       Gating       `json:"gating"`
	Version      uint64       `json:"version"`
}

// Snapshot 当前状态的只读副本
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		Phase:        c.phaseLocked(),
		ClosingMode:  c.closingMode,
		SwapID:       c.swapID,
		ShareID:      c.shareID,
		ShareLink:    domain.ShareLink(c.opts.ShareBaseURL, c.shareID),
		Completed:    c.completed,
		Account:      c.wallet.AccountHex(),
		Connected:    c.wallet.Connected,
		ChainID:      c.wallet.ChainID,
		NetworkLabel: chain.NetworkLabel(c.wallet.ChainID),
		Opening:      viewOf(c.opening),
		Closing:      viewOf(c.closing),
		LastError:    c.lastError,
		Gating:       c.gatingLocked(),
		Version:      c.version,
	}
}

func viewOf(s *side) SideView {
	std := ""
	if s.standard != domain.StandardUnknown {
		std = s.standard.String()
	}
	return SideView{
		Link:      s.link,
		Asset:     s.asset,
		Standard:  std,
		Ownership: s.own,
		Preview:   s.preview,
		Probing:   s.probing,
		Approving: s.approving,
	}
}

func (c *Controller) phaseLocked() domain.Phase {
	if c.closingMode {
		switch {
		case c.completed:
			return domain.PhaseCompleted
		case c.submittingClose:
			return domain.PhaseSubmittingClose
		case c.closing.approving:
			return domain.PhaseApprovingClose
		default:
			return domain.PhaseInspectingClose
		}
	}
	switch {
	case c.opened:
		return domain.PhaseOpened
	case c.submittingOpen:
		return domain.PhaseSubmittingOpen
	case c.opening.approving:
		return domain.PhaseApproving
	case c.opening.asset.IsSet() && c.closing.asset.IsSet() && c.opening.own.Owned && !c.opening.own.Approved:
		return domain.PhaseAwaitingApproval
	default:
		return domain.PhaseDrafting
	}
}

func (c *Controller) gatingLocked() Gating {
	var g Gating
	bothSet := c.opening.asset.IsSet() && c.closing.asset.IsSet()
	connected := c.wallet.Connected

	if !c.closingMode {
		g.ShowOpeningActions = connected && bothSet && c.opening.own.Owned && !c.opened
		g.CanApproveOpening = g.ShowOpeningActions && !c.opening.own.Approved && !c.opening.approving &&
			!c.opening.approvalConfirmed(c.wallet)
		g.CanOpenTrade = g.ShowOpeningActions && c.opening.own.Approved && !c.submittingOpen
		return g
	}

	if c.closing.own.Owned {
		g.TradeLabel = LabelTrade
	} else {
		g.TradeLabel = LabelClosingMustBeOwned
	}
	g.ShowClosingActions = connected && c.loaded && c.closing.own.Owned && !c.completed
	g.CanApproveClosing = g.ShowClosingActions && !c.closing.own.Approved && !c.closing.approving &&
		!c.closing.approvalConfirmed(c.wallet)
	g.CanTrade = g.ShowClosingActions && bothSet &&
		c.closing.own.Approved &&
		c.opening.standard != domain.StandardUnknown &&
		c.closing.standard != domain.StandardUnknown &&
		!c.submittingClose
	return g
}
