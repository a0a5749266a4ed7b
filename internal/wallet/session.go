package wallet

import (
	"crypto/ecdsa"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"

	"github.com/popswap/gopopswap/internal/chain"
)

var log = logrus.WithField("component", "wallet")

// State 钱包上下文：当前账户（可能没有）与当前网络
type State struct {
	Account   common.Address `json:"account"`
	Connected bool           `json:"connected"`
	ChainID   uint64         `json:"chainId"`
}

// AccountHex 未连接时返回空串
func (s State) AccountHex() string {
	if !s.Connected {
		return ""
	}
	return s.Account.Hex()
}

// Provider 钱包上下文来源；订阅者在账户或网络变化时收到最新状态
type Provider interface {
	Current() State
	Subscribe() (<-chan State, func())
}

// Session 进程内的钱包：持有一把私钥，可连接/断开/切换网络
type Session struct {
	mu      sync.Mutex
	key     *ecdsa.PrivateKey
	state   State
	subs    map[int]chan State
	nextSub int
}

func NewSession(chainID uint64) *Session {
	return &Session{
		state: State{ChainID: chainID},
		subs:  make(map[int]chan State),
	}
}

func (s *Session) Current() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Subscribe 每个订阅者只保留最新的一次状态
func (s *Session) Subscribe() (<-chan State, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	c := make(chan State, 1)
	s.subs[id] = c

	var once sync.Once
	return c, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
			close(c)
		})
	}
}

// Connect 使用给定私钥连接
func (s *Session) Connect(key *ecdsa.PrivateKey) common.Address {
	addr := Address(key)
	s.update(func(st *State) {
		s.key = key
		st.Account = addr
		st.Connected = true
	})
	log.WithField("account", addr.Hex()).Info("钱包已连接")
	return addr
}

func (s *Session) Disconnect() {
	s.update(func(st *State) {
		s.key = nil
		st.Account = common.Address{}
		st.Connected = false
	})
	log.Info("钱包已断开")
}

// SwitchNetwork 切换当前网络；网络是否可用由调用方在探测时判定
func (s *Session) SwitchNetwork(chainID uint64) {
	s.update(func(st *State) {
		st.ChainID = chainID
	})
	log.WithField("chainId", chainID).Infof("切换到 %s", chain.NetworkLabel(chainID))
}

// Signer 实现 chain.SignerSource
func (s *Session) Signer() (chain.Signer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.key == nil {
		return nil, chain.ErrNoSigner
	}
	return keySigner{key: s.key}, nil
}

func (s *Session) update(fn func(*State)) {
	s.mu.Lock()
	before := s.state
	fn(&s.state)
	after := s.state
	subs := make([]chan State, 0, len(s.subs))
	if after != before {
		for _, c := range s.subs {
			subs = append(subs, c)
		}
	}
	// 在锁内投递，保证与取消订阅（关闭 channel）互斥
	for _, c := range subs {
		select {
		case <-c:
		default:
		}
		select {
		case c <- after:
		default:
		}
	}
	s.mu.Unlock()
}

type keySigner struct {
	key *ecdsa.PrivateKey
}

func (k keySigner) Address() common.Address {
	return Address(k.key)
}

func (k keySigner) SignTx(tx *ethtypes.Transaction, chainID *big.Int) (*ethtypes.Transaction, error) {
	return ethtypes.SignTx(tx, ethtypes.NewEIP155Signer(chainID), k.key)
}
