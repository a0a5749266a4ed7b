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
	"github.com/sirupsen/logrus"

	"github.com/popswap/gopopswap/pkg/gas"
)

var log = logrus.WithField("component", "chain")

var (
	// ErrNoSigner 没有连接钱包，无法发送交易
	ErrNoSigner = errors.New("no signer connected")
	// ErrReverted 交易已上链但执行失败
	ErrReverted = errors.New("transaction reverted")
)

// Backend 本包用到的节点能力；*ethclient.Client 满足该接口
type Backend interface {
	ethereum.ContractCaller
	ethereum.GasEstimator
	ethereum.GasPricer
	ethereum.TransactionSender
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error)
	ChainID(ctx context.Context) (*big.Int, error)
}

// Signer 当前连接账户的签名能力
type Signer interface {
	Address() common.Address
	SignTx(tx *ethtypes.Transaction, chainID *big.Int) (*ethtypes.Transaction, error)
}

// SignerSource 每次发送交易时取当前签名者，钱包断开时返回 ErrNoSigner
type SignerSource interface {
	Signer() (Signer, error)
}

// Pending 已广播、等待确认的交易
type Pending interface {
	Hash() common.Hash
	From() common.Address
	Wait(ctx context.Context) (*ethtypes.Receipt, error)
}

// Transactor 负责 gas 估算、签名、广播
type Transactor struct {
	backend      Backend
	chainID      *big.Int
	signers      SignerSource
	gas          *gas.Estimator
	pollInterval time.Duration
	confirmWait  time.Duration
}

type TransactorOptions struct {
	Gas            *gas.Estimator
	PollInterval   time.Duration
	ConfirmTimeout time.Duration
}

func NewTransactor(backend Backend, chainID uint64, signers SignerSource, opts TransactorOptions) *Transactor {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 3 * time.Second
	}
	if opts.ConfirmTimeout <= 0 {
		opts.ConfirmTimeout = 5 * time.Minute
	}
	return &Transactor{
		backend:      backend,
		chainID:      new(big.Int).SetUint64(chainID),
		signers:      signers,
		gas:          opts.Gas,
		pollInterval: opts.PollInterval,
		confirmWait:  opts.ConfirmTimeout,
	}
}

// Transact 估算 gas（加安全余量）后签名并广播一笔 legacy 交易
func (t *Transactor) Transact(ctx context.Context, to common.Address, data []byte) (Pending, error) {
	if t.signers == nil {
		return nil, ErrNoSigner
	}
	signer, err := t.signers.Signer()
	if err != nil {
		return nil, err
	}
	from := signer.Address()

	nonce, err := t.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("获取nonce失败: %w", err)
	}
	gasPrice, err := t.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("获取gas价格失败: %w", err)
	}
	estimated, err := t.backend.EstimateGas(ctx, ethereum.CallMsg{
		From:  from,
		To:    &to,
		Data:  data,
		Value: big.NewInt(0),
	})
	if err != nil {
		return nil, fmt.Errorf("估算gas失败: %w", err)
	}
	gasLimit := t.gas.WithMargin(estimated)

	tx := ethtypes.NewTransaction(nonce, to, big.NewInt(0), gasLimit, gasPrice, data)
	signed, err := signer.SignTx(tx, t.chainID)
	if err != nil {
		return nil, fmt.Errorf("签名交易失败: %w", err)
	}
	if err := t.backend.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("发送交易失败: %w", err)
	}

	log.WithFields(logrus.Fields{
		"tx":       signed.Hash().Hex(),
		"to":       to.Hex(),
		"gas":      estimated,
		"gasLimit": gasLimit,
	}).Info("交易已广播")

	return &pendingTx{
		hash:     signed.Hash(),
		from:     from,
		backend:  t.backend,
		interval: t.pollInterval,
		maxWait:  t.confirmWait,
	}, nil
}

type pendingTx struct {
	hash     common.Hash
	from     common.Address
	backend  Backend
	interval time.Duration
	maxWait  time.Duration
}

func (p *pendingTx) Hash() common.Hash    { return p.hash }
func (p *pendingTx) From() common.Address { return p.from }

// Wait 轮询回执直到确认、超时或 ctx 取消；status=0 返回 ErrReverted（同时返回回执）
func (p *pendingTx) Wait(ctx context.Context) (*ethtypes.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, p.maxWait)
	defer cancel()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		receipt, err := p.backend.TransactionReceipt(ctx, p.hash)
		switch {
		case err == nil && receipt != nil:
			if receipt.Status != ethtypes.ReceiptStatusSuccessful {
				return receipt, fmt.Errorf("交易 %s 执行失败: %w", p.hash.Hex(), ErrReverted)
			}
			return receipt, nil
		case err != nil && !errors.Is(err, ethereum.NotFound):
			log.WithError(err).WithField("tx", p.hash.Hex()).Warn("查询交易回执失败，继续重试")
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("等待交易 %s 确认超时: %w", p.hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}
