package ownership

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/popswap/gopopswap/internal/chain"
	"github.com/popswap/gopopswap/internal/domain"
)

var (
	account  = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	stranger = common.HexToAddress("0x00000000000000000000000000000000000000a2")
	operator = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	asset    = domain.AssetReference{ContractAddress: "0x00000000000000000000000000000000000000cc", TokenID: "42"}
	errCall  = errors.New("execution reverted")
)

// fakeToken 按标准配置响应；owner 为 nil 表示该标准结构性失败
type fakeToken struct {
	erc1155Owner *common.Address
	erc721Owner  *common.Address
	approved     bool
}

func (t *fakeToken) Address() common.Address { return common.HexToAddress(asset.ContractAddress) }

func (t *fakeToken) ProbeOwnership(_ context.Context, std domain.TokenStandard, acct common.Address, _ *big.Int) (bool, error) {
	owner := t.erc721Owner
	if std == domain.StandardERC1155 {
		owner = t.erc1155Owner
	}
	if owner == nil {
		return false, errCall
	}
	return *owner == acct, nil
}

func (t *fakeToken) ProbeApproval(context.Context, domain.TokenStandard, common.Address, common.Address, *big.Int) (bool, error) {
	return t.approved, nil
}

func (t *fakeToken) MetadataURI(context.Context, domain.TokenStandard, *big.Int) (string, error) {
	return "", errCall
}

func (t *fakeToken) SubmitApproval(context.Context, domain.TokenStandard, common.Address, *big.Int) (chain.Pending, error) {
	return nil, errCall
}

type fakeTrade struct{ chain.TradeContract }

func (fakeTrade) Address() common.Address { return operator }

type fakeNetwork struct {
	id    uint64
	token chain.Token
}

func (n fakeNetwork) ChainID() uint64                     { return n.id }
func (n fakeNetwork) Token(string) (chain.Token, error)   { return n.token, nil }
func (n fakeNetwork) Trade() (chain.TradeContract, error) { return fakeTrade{}, nil }

type fakeNetworks map[uint64]chain.Network

func (f fakeNetworks) Network(id uint64) (chain.Network, error) {
	n, ok := f[id]
	if !ok {
		return nil, chain.ErrUnknownNetwork
	}
	return n, nil
}

func addr(a common.Address) *common.Address { return &a }

func probe(t *testing.T, tok *fakeToken, req Request) Result {
	t.Helper()
	p := NewProber(fakeNetworks{4: fakeNetwork{id: 4, token: tok}})
	return p.Probe(context.Background(), req)
}

func baseRequest() Request {
	return Request{Side: domain.SideOpening, Account: account, HasAccount: true, ChainID: 4, Asset: asset, OwnershipRequired: true}
}

func TestProbe_ERC1155Owned(t *testing.T) {
	res := probe(t, &fakeToken{erc1155Owner: addr(account), approved: true}, baseRequest())
	assert.Equal(t, domain.StandardERC1155, res.Standard)
	assert.Equal(t, domain.OwnershipState{Owned: true, Approved: true}, res.State)

	res = probe(t, &fakeToken{erc1155Owner: addr(account)}, baseRequest())
	assert.Equal(t, domain.OwnershipState{Owned: true}, res.State)
}

func TestProbe_ERC721Owned(t *testing.T) {
	res := probe(t, &fakeToken{erc721Owner: addr(account), approved: true}, baseRequest())
	assert.Equal(t, domain.StandardERC721, res.Standard)
	assert.Equal(t, domain.OwnershipState{Owned: true, Approved: true}, res.State)
}

func TestProbe_NotOwnedMessages(t *testing.T) {
	tok := &fakeToken{erc721Owner: addr(stranger), approved: true}

	res := probe(t, tok, baseRequest())
	assert.Equal(t, domain.OwnershipState{ErrorMessage: MsgOpeningMustBeOwned}, res.State)
	assert.Equal(t, domain.StandardERC721, res.Standard)

	req := baseRequest()
	req.Side = domain.SideClosing
	res = probe(t, tok, req)
	assert.Equal(t, MsgClosingMustBeOwned, res.State.ErrorMessage)

	req.OwnershipRequired = false
	res = probe(t, tok, req)
	assert.Empty(t, res.State.ErrorMessage)
	assert.False(t, res.State.Approved)
}

func TestProbe_ZeroBalanceThenERC721Failure(t *testing.T) {
	res := probe(t, &fakeToken{erc1155Owner: addr(stranger)}, baseRequest())
	assert.Equal(t, domain.StandardERC1155, res.Standard)
	assert.Equal(t, MsgOpeningMustBeOwned, res.State.ErrorMessage)
}

func TestProbe_NotFoundOnNetwork(t *testing.T) {
	res := probe(t, &fakeToken{}, baseRequest())
	assert.Equal(t, domain.StandardUnknown, res.Standard)
	assert.Equal(t, "Not Found On Current Network (Rinkeby)", res.State.ErrorMessage)

	req := baseRequest()
	req.ChainID = 137
	res = probe(t, &fakeToken{erc721Owner: addr(account)}, req)
	assert.Equal(t, "Not Found On Current Network (Polygon)", res.State.ErrorMessage)
	assert.False(t, res.State.Owned)
}

func TestProbe_NoAccountOverrides(t *testing.T) {
	req := baseRequest()
	req.HasAccount = false
	req.Account = common.Address{}

	res := probe(t, &fakeToken{erc721Owner: addr(stranger), approved: true}, req)
	assert.Equal(t, domain.OwnershipState{ErrorMessage: MsgConnectWallet}, res.State)
	assert.Equal(t, domain.StandardERC721, res.Standard)

	res = probe(t, &fakeToken{}, req)
	assert.Equal(t, MsgConnectWallet, res.State.ErrorMessage)
}

func TestProbe_ApprovedImpliesOwned(t *testing.T) {
	owners := []*common.Address{nil, addr(account), addr(stranger)}
	for _, o1155 := range owners {
		for _, o721 := range owners {
			for _, approved := range []bool{false, true} {
				for _, hasAccount := range []bool{false, true} {
					req := baseRequest()
					req.HasAccount = hasAccount
					res := probe(t, &fakeToken{erc1155Owner: o1155, erc721Owner: o721, approved: approved}, req)
					if res.State.Approved {
						assert.True(t, res.State.Owned)
					}
					if !hasAccount {
						assert.Equal(t, MsgConnectWallet, res.State.ErrorMessage)
					}
				}
			}
		}
	}
}

// blockingProber 每次 Probe 都阻塞到 release 被关闭
type blockingProber struct {
	release chan struct{}
	calls   chan Request
}

func (b *blockingProber) Probe(ctx context.Context, req Request) Result {
	b.calls <- req
	select {
	case <-b.release:
	case <-ctx.Done():
	}
	return Result{State: domain.OwnershipState{Owned: true}, Standard: domain.StandardERC721}
}

func TestFlight_DropsDuplicateAndSupersedes(t *testing.T) {
	bp := &blockingProber{release: make(chan struct{}), calls: make(chan Request, 4)}
	f := NewFlight(bp)

	var applied []string
	results := make(chan string, 4)
	apply := func(tag string) Continuation {
		return func(_ context.Context, _ Result, live func() bool) {
			if live() {
				results <- tag
			}
		}
	}

	req := baseRequest()
	require.True(t, f.Trigger(context.Background(), req, apply("first")))
	<-bp.calls
	assert.False(t, f.Trigger(context.Background(), req, apply("dup")))

	next := req
	next.Asset.TokenID = "43"
	require.True(t, f.Trigger(context.Background(), next, apply("second")))
	<-bp.calls

	close(bp.release)
	f.Wait()
	close(results)
	for r := range results {
		applied = append(applied, r)
	}
	assert.Equal(t, []string{"second"}, applied)
	assert.False(t, f.Running())
}

func TestFlight_ResetDiscards(t *testing.T) {
	bp := &blockingProber{release: make(chan struct{}), calls: make(chan Request, 1)}
	f := NewFlight(bp)
	called := make(chan struct{}, 1)

	f.Trigger(context.Background(), baseRequest(), func(context.Context, Result, func() bool) {
		called <- struct{}{}
	})
	<-bp.calls
	f.Reset()
	close(bp.release)
	f.Wait()

	select {
	case <-called:
		t.Fatal("stale continuation ran after reset")
	case <-time.After(10 * time.Millisecond):
	}
	assert.False(t, f.Running())
	assert.True(t, strings.HasPrefix(MsgNotFoundOnNetwork(5), "Not Found On Current Network"))
}
