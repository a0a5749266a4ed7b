package chain

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

var (
	// ErrUnknownNetwork 没有为该 chainId 配置节点
	ErrUnknownNetwork = errors.New("unknown network")
	// ErrNoTradeContract 该网络上没有部署交易合约
	ErrNoTradeContract = errors.New("no trade contract on network")
)

var networkLabels = map[uint64]string{
	1:        "Mainnet",
	3:        "Ropsten",
	4:        "Rinkeby",
	5:        "Görli",
	42:       "Kovan",
	137:      "Polygon",
	80002:    "Amoy",
	11155111: "Sepolia",
}

// NetworkLabel 网络的展示名称，未知网络显示 chainId
func NetworkLabel(chainID uint64) string {
	if label, ok := networkLabels[chainID]; ok {
		return label
	}
	return fmt.Sprintf("Chain %d", chainID)
}

// Network 一条链上的合约访问入口
type Network interface {
	ChainID() uint64
	Token(address string) (Token, error)
	Trade() (TradeContract, error)
}

// Networks 按 chainId 取网络
type Networks interface {
	Network(chainID uint64) (Network, error)
}

type network struct {
	chainID    uint64
	backend    Backend
	transactor *Transactor
	trade      TradeContract
}

func (n *network) ChainID() uint64 { return n.chainID }

func (n *network) Token(address string) (Token, error) {
	addr, err := ParseContractAddress(address)
	if err != nil {
		return nil, err
	}
	return NewContractToken(addr, n.backend, n.transactor), nil
}

func (n *network) Trade() (TradeContract, error) {
	if n.trade == nil {
		return nil, fmt.Errorf("%s: %w", NetworkLabel(n.chainID), ErrNoTradeContract)
	}
	return n.trade, nil
}

// Registry 已连接网络的集合
type Registry struct {
	mu       sync.RWMutex
	networks map[uint64]*network
	closers  []func()
	signers  SignerSource
	opts     TransactorOptions
}

func NewRegistry(signers SignerSource, opts TransactorOptions) *Registry {
	return &Registry{
		networks: make(map[uint64]*network),
		signers:  signers,
		opts:     opts,
	}
}

// Add 注册一个网络；tradeContract 为零地址时表示该网络没有交易合约
func (r *Registry) Add(chainID uint64, backend Backend, tradeContract common.Address) {
	transactor := NewTransactor(backend, chainID, r.signers, r.opts)
	n := &network{chainID: chainID, backend: backend, transactor: transactor}
	if tradeContract != (common.Address{}) {
		n.trade = NewTradeContract(tradeContract, backend, transactor)
	}
	r.mu.Lock()
	r.networks[chainID] = n
	r.mu.Unlock()
}

// Dial 连接节点并以节点报告的 chainId 注册；返回该 chainId
func (r *Registry) Dial(ctx context.Context, rpcURL string, tradeContracts map[uint64]string) (uint64, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return 0, fmt.Errorf("连接RPC节点失败: %w", err)
	}
	id, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return 0, fmt.Errorf("获取chainId失败: %w", err)
	}
	chainID := id.Uint64()

	var trade common.Address
	if raw, ok := tradeContracts[chainID]; ok && common.IsHexAddress(raw) {
		trade = common.HexToAddress(raw)
	} else {
		log.Warnf("%s 上未配置交易合约，只能浏览资产", NetworkLabel(chainID))
	}
	r.Add(chainID, client, trade)

	r.mu.Lock()
	r.closers = append(r.closers, client.Close)
	r.mu.Unlock()

	log.WithField("chainId", chainID).Infof("已连接 %s", NetworkLabel(chainID))
	return chainID, nil
}

func (r *Registry) Network(chainID uint64) (Network, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.networks[chainID]
	if !ok {
		return nil, fmt.Errorf("%s: %w", NetworkLabel(chainID), ErrUnknownNetwork)
	}
	return n, nil
}

// ChainIDs 已注册网络，升序
func (r *Registry) ChainIDs() []uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]uint64, 0, len(r.networks))
	for id := range r.networks {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (r *Registry) Close() {
	r.mu.Lock()
	closers := r.closers
	r.closers = nil
	r.mu.Unlock()
	for _, c := range closers {
		c()
	}
}
