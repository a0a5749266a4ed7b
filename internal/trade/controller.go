// Package trade 驱动一笔 NFT 交易的完整生命周期：
// 开单方粘贴两侧资产链接、授权并开单；成交方载入交易、授权并成交。
package trade

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/popswap/gopopswap/internal/chain"
	"github.com/popswap/gopopswap/internal/domain"
	"github.com/popswap/gopopswap/internal/history"
	"github.com/popswap/gopopswap/internal/ownership"
	"github.com/popswap/gopopswap/internal/wallet"
	"github.com/popswap/gopopswap/pkg/sigchan"
)

var log = logrus.WithField("component", "trade")

var (
	// ErrActionPending 同一操作的交易尚未确认
	ErrActionPending = errors.New("action already pending")
	// ErrNotReady 当前状态不允许该操作
	ErrNotReady = errors.New("action not available in current state")
	// ErrNoSwap 没有载入交易
	ErrNoSwap = errors.New("no trade loaded")
	// ErrNoAccount 钱包未连接
	ErrNoAccount = errors.New("wallet not connected")
)

// 交易记录中的描述
const (
	SummaryApproveOpening = "Approve Opening NFT"
	SummaryApproveClosing = "Approve Closing NFT"
	SummaryOpenTrade      = "Opening NFT Trade"
	SummaryCloseTrade     = "Trading NFTs"
)

// 成交按钮文案
const (
	LabelTrade              = "Trade NFTs"
	LabelClosingMustBeOwned = "Closing NFT Must Be Owned To Trade"
)

// DefaultExpiration 开单的有效期，固定为提交时刻起七天
const DefaultExpiration = 7 * 24 * time.Hour

// Prober 所有权探测
type Prober interface {
	Probe(ctx context.Context, req ownership.Request) ownership.Result
}

// PreviewResolver 预览解析
type PreviewResolver interface {
	Resolve(ctx context.Context, token chain.Token, asset domain.AssetReference, standard domain.TokenStandard) (domain.Preview, bool)
}

type Deps struct {
	Wallet   wallet.Provider
	Networks chain.Networks
	Prober   Prober
	Resolver PreviewResolver
	History  history.Recorder
	Now      func() time.Time
}

type Options struct {
	ShareBaseURL string
}

// Controller 一个交易会话的状态机。所有状态由 mu 保护；
// 两侧各有一条探测+解析流水线，结果只有在其代次仍然有效时才会被应用。
type Controller struct {
	deps Deps
	opts Options

	ctx    context.Context
	cancel context.CancelFunc

	mu              sync.Mutex
	wallet          wallet.State
	closingMode     bool
	swapID          string
	loaded          bool
	opened          bool
	shareID         string
	completed       bool
	opening         *side
	closing         *side
	submittingOpen  bool
	submittingClose bool
	lastError       string
	version         uint64

	changes *sigchan.Broadcaster
	wg      sync.WaitGroup
}

func New(deps Deps, opts Options) *Controller {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.History == nil {
		deps.History = history.Nop{}
	}
	c := &Controller{
		deps:    deps,
		opts:    opts,
		changes: sigchan.New(),
	}
	c.opening = newSide(domain.SideOpening, deps.Prober)
	c.closing = newSide(domain.SideClosing, deps.Prober)
	return c
}

// Start 进入会话。swapID 非空时载入已有交易进入成交流程，否则进入起草流程。
// 载入失败时返回错误并记录在 LastError，钱包或网络变化后会自动重试。
func (c *Controller) Start(ctx context.Context, swapID string) error {
	c.ctx, c.cancel = context.WithCancel(ctx)

	updates, unsubscribe := c.deps.Wallet.Subscribe()
	c.mu.Lock()
	c.wallet = c.deps.Wallet.Current()
	if swapID != "" {
		c.closingMode = true
		c.swapID = swapID
	}
	c.changedLocked()
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer unsubscribe()
		c.watchWallet(updates)
	}()

	if swapID == "" {
		return nil
	}
	return c.loadTrade(c.ctx)
}

// Close 停止后台协程并结束所有订阅；进行中的探测结果会被丢弃
func (c *Controller) Close() {
	if c.cancel != nil {
		c.cancel()
	}
	c.opening.flight.Reset()
	c.closing.flight.Reset()
	c.wg.Wait()
	c.opening.flight.Wait()
	c.closing.flight.Wait()
	c.changes.Close()
}

// Subscribe 状态变化通知（合并的信号，读取请调用 Snapshot）
func (c *Controller) Subscribe() (<-chan struct{}, func()) {
	return c.changes.Subscribe()
}

// WaitIdle 等待两侧当前的流水线结束
func (c *Controller) WaitIdle() {
	c.opening.flight.Wait()
	c.closing.flight.Wait()
}

// ClearError 清除错误提示
func (c *Controller) ClearError() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastError != "" {
		c.lastError = ""
		c.changedLocked()
	}
}

func (c *Controller) watchWallet(updates <-chan wallet.State) {
	for {
		select {
		case <-c.ctx.Done():
			return
		case st, ok := <-updates:
			if !ok {
				return
			}
			c.onWallet(st)
		}
	}
}

// onWallet 账户或网络变化：两侧所有权作废并重新探测
func (c *Controller) onWallet(st wallet.State) {
	c.mu.Lock()
	if st == c.wallet {
		c.mu.Unlock()
		return
	}
	log.WithFields(logrus.Fields{"account": st.AccountHex(), "chainId": st.ChainID}).Info("钱包状态变化")
	c.wallet = st
	retryLoad := c.closingMode && !c.loaded
	for _, s := range c.sides() {
		s.own = domain.OwnershipState{}
		c.triggerLocked(s)
	}
	c.changedLocked()
	c.mu.Unlock()

	if retryLoad {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			_ = c.loadTrade(c.ctx)
		}()
	}
}

// loadTrade 读取链上交易并填充两侧资产
func (c *Controller) loadTrade(ctx context.Context) error {
	c.mu.Lock()
	chainID, swapID := c.wallet.ChainID, c.swapID
	c.mu.Unlock()

	rec, err := c.fetchTrade(ctx, chainID, swapID)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.wallet.ChainID != chainID {
		// 网络已切换，由新网络的重试负责
		return err
	}
	if err != nil {
		c.lastError = err.Error()
		c.changedLocked()
		log.WithError(err).WithField("swapId", swapID).Warn("载入交易失败")
		return err
	}

	c.loaded = true
	c.completed = rec.Completed()
	c.lastError = ""
	c.setAssetLocked(c.opening, rec.Opening.MarketplaceLink(), rec.Opening)
	c.setAssetLocked(c.closing, rec.Closing.MarketplaceLink(), rec.Closing)
	c.changedLocked()
	log.WithFields(logrus.Fields{"swapId": swapID, "completed": c.completed}).Info("交易已载入")
	return nil
}

func (c *Controller) fetchTrade(ctx context.Context, chainID uint64, swapID string) (domain.TradeRecord, error) {
	tc, err := c.tradeContract(chainID)
	if err != nil {
		return domain.TradeRecord{}, err
	}
	rec, err := tc.GetTrade(ctx, swapID)
	if err != nil {
		return domain.TradeRecord{}, fmt.Errorf("读取交易 %s 失败: %w", swapID, err)
	}
	return rec, nil
}

func (c *Controller) tradeContract(chainID uint64) (chain.TradeContract, error) {
	network, err := c.deps.Networks.Network(chainID)
	if err != nil {
		return nil, err
	}
	return network.Trade()
}

func (c *Controller) sides() []*side {
	return []*side{c.opening, c.closing}
}

func (c *Controller) sideFor(which domain.Side) *side {
	if which == domain.SideClosing {
		return c.closing
	}
	return c.opening
}

func (c *Controller) changedLocked() {
	c.version++
	c.changes.Emit()
}
