// Package app 按配置组装运行时：节点、钱包、元数据解析、交易记录，供各个入口共用。
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/popswap/gopopswap/internal/chain"
	"github.com/popswap/gopopswap/internal/history"
	"github.com/popswap/gopopswap/internal/metadata"
	"github.com/popswap/gopopswap/internal/ownership"
	"github.com/popswap/gopopswap/internal/trade"
	"github.com/popswap/gopopswap/internal/wallet"
	"github.com/popswap/gopopswap/pkg/config"
	"github.com/popswap/gopopswap/pkg/gas"
	"github.com/popswap/gopopswap/pkg/shutdown"
)

var log = logrus.WithField("component", "app")

// App 已连接的运行时
type App struct {
	Config   *config.Config
	Wallet   *wallet.Session
	Networks *chain.Registry
	Prober   *ownership.Prober
	Resolver *metadata.Resolver
	History  *history.Store
	Recorder *history.AsyncRecorder
	// Shutdown 按启动的逆序关闭各组件
	Shutdown *shutdown.Manager

	// PrimaryChain 主节点报告的 chainId
	PrimaryChain uint64
}

// New 连接节点并加载钱包。失败时已经启动的组件会被关闭
func New(ctx context.Context, cfg *config.Config) (_ *App, err error) {
	a := &App{Config: cfg, Shutdown: shutdown.NewManager()}
	defer func() {
		if err != nil {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = a.Shutdown.Shutdown(closeCtx)
		}
	}()

	a.Wallet = wallet.NewSession(cfg.Chain.ChainID)
	a.Networks = chain.NewRegistry(a.Wallet, chain.TransactorOptions{
		Gas:            gas.NewEstimator(cfg.GasMargin),
		ConfirmTimeout: cfg.Chain.ConfirmTimeout,
	})
	a.Shutdown.OnShutdown("chain", func(context.Context) error {
		a.Networks.Close()
		return nil
	})

	dialCtx, dialCancel := context.WithTimeout(ctx, 30*time.Second)
	defer dialCancel()
	a.PrimaryChain, err = a.Networks.Dial(dialCtx, cfg.Chain.RPCURL, cfg.Chain.TradeContracts)
	if err != nil {
		return nil, err
	}
	for _, url := range cfg.Chain.ExtraRPCURLs {
		if _, derr := a.Networks.Dial(dialCtx, url, cfg.Chain.TradeContracts); derr != nil {
			log.WithError(derr).Warnf("连接额外节点 %s 失败", url)
		}
	}
	if cfg.Chain.ChainID != 0 && cfg.Chain.ChainID != a.PrimaryChain {
		log.Warnf("配置的 chain_id=%d 与节点报告的 %d 不一致，以节点为准", cfg.Chain.ChainID, a.PrimaryChain)
	}
	a.Wallet.SwitchNetwork(a.PrimaryChain)

	key, err := wallet.LoadKey(cfg.Wallet)
	switch {
	case errors.Is(err, wallet.ErrNoKeyConfigured):
		log.Warn("未配置钱包，只能浏览交易")
	case err != nil:
		return nil, fmt.Errorf("加载钱包失败: %w", err)
	default:
		a.Wallet.Connect(key)
	}

	a.History, err = history.Open(cfg.Server.HistoryDB)
	if err != nil {
		return nil, err
	}
	a.Shutdown.OnShutdown("history-store", func(context.Context) error { return a.History.Close() })
	a.Recorder = history.NewAsyncRecorder(a.History, 64)
	a.Shutdown.OnShutdown("history-recorder", a.Recorder.Close)

	a.Resolver = metadata.New(ctx, metadata.Options{
		IPFSGateway:       cfg.Metadata.IPFSGateway,
		ProbeGateway:      cfg.Metadata.ProbeGateway,
		MarketplaceAPI:    cfg.Metadata.MarketplaceAPI,
		MarketplaceAPIKey: cfg.Metadata.MarketplaceAPIKey,
		Timeout:           cfg.Metadata.RequestTimeout,
		CacheTTL:          cfg.Metadata.CacheTTL,
		MarketplaceRPS:    cfg.Metadata.MarketplaceRPS,
	})
	a.Prober = ownership.NewProber(a.Networks)
	return a, nil
}

// NewController 新的交易会话，尚未 Start
func (a *App) NewController() *trade.Controller {
	return trade.New(trade.Deps{
		Wallet:   a.Wallet,
		Networks: a.Networks,
		Prober:   a.Prober,
		Resolver: a.Resolver,
		History:  a.Recorder,
	}, trade.Options{ShareBaseURL: a.Config.Trade.ShareBaseURL})
}
