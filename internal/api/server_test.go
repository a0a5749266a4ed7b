package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/popswap/gopopswap/internal/chain"
	"github.com/popswap/gopopswap/internal/history"
	"github.com/popswap/gopopswap/internal/ownership"
	"github.com/popswap/gopopswap/internal/trade"
	"github.com/popswap/gopopswap/internal/wallet"
)

const openingLink = "https://opensea.io/assets/0x00000000000000000000000000000000000000c1/1"

// noNetworks 没有配置任何网络：所有探测都走"未找到"路径
type noNetworks struct{}

func (noNetworks) Network(uint64) (chain.Network, error) { return nil, chain.ErrUnknownNetwork }

type testEnv struct {
	srv     *Server
	handler http.Handler
	wallet  *wallet.Session
	store   *history.Store
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	store, err := history.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	session := wallet.NewSession(4)
	networks := noNetworks{}
	srv := New(Config{
		NewController: func() *trade.Controller {
			return trade.New(trade.Deps{
				Wallet:   session,
				Networks: networks,
				Prober:   ownership.NewProber(networks),
			}, trade.Options{})
		},
		History: store,
		Wallet:  session,
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Close(ctx)
	})
	return &testEnv{srv: srv, handler: srv.Router(), wallet: session, store: store}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decodeSession(t *testing.T, rec *httptest.ResponseRecorder) sessionResponse {
	t.Helper()
	var resp sessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func (e *testEnv) createSession(t *testing.T) string {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/sessions", nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	resp := decodeSession(t, rec)
	require.NotEmpty(t, resp.ID)
	return resp.ID
}

func TestHealthz(t *testing.T) {
	e := newEnv(t)
	assert.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/healthz", nil).Code)
}

func TestSessionLifecycle(t *testing.T) {
	e := newEnv(t)
	id := e.createSession(t)

	rec := e.do(t, http.MethodGet, "/api/sessions/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeSession(t, rec)
	assert.Equal(t, "drafting", string(resp.Snapshot.Phase))
	assert.False(t, resp.Snapshot.ClosingMode)

	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodGet, "/api/sessions/nope", nil).Code)

	assert.Equal(t, http.StatusNoContent, e.do(t, http.MethodDelete, "/api/sessions/"+id, nil).Code)
	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodGet, "/api/sessions/"+id, nil).Code)
}

func TestCreateSession_SwapID(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, http.MethodPost, "/api/sessions", createSessionRequest{SwapID: "abc"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(t, http.MethodPost, "/api/sessions", createSessionRequest{SwapID: "5"})
	require.Equal(t, http.StatusCreated, rec.Code)
	resp := decodeSession(t, rec)
	assert.True(t, resp.Snapshot.ClosingMode)
	assert.Equal(t, "5", resp.Snapshot.SwapID)
	assert.Contains(t, resp.Warning, "unknown network")
	assert.NotEmpty(t, resp.Snapshot.LastError)
}

func TestSetLinks(t *testing.T) {
	e := newEnv(t)
	id := e.createSession(t)

	rec := e.do(t, http.MethodPut, "/api/sessions/"+id+"/opening", linkRequest{Link: "not a link"})
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeSession(t, rec)
	assert.NotEmpty(t, resp.Warning)
	assert.False(t, resp.Snapshot.Opening.Asset.IsSet())

	rec = e.do(t, http.MethodPut, "/api/sessions/"+id+"/opening", linkRequest{Link: openingLink})
	require.Equal(t, http.StatusOK, rec.Code)
	resp = decodeSession(t, rec)
	assert.Empty(t, resp.Warning)
	assert.Equal(t, "0x00000000000000000000000000000000000000c1", resp.Snapshot.Opening.Asset.ContractAddress)
	assert.Equal(t, "1", resp.Snapshot.Opening.Asset.TokenID)

	rec = e.do(t, http.MethodPut, "/api/sessions/"+id+"/closing", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestActions_Gated(t *testing.T) {
	e := newEnv(t)
	id := e.createSession(t)

	rec := e.do(t, http.MethodPost, "/api/sessions/"+id+"/approve-opening", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	key, err := wallet.ParsePrivateKey("ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80")
	require.NoError(t, err)
	e.wallet.Connect(key)
	require.Eventually(t, func() bool {
		return decodeSession(t, e.do(t, http.MethodGet, "/api/sessions/"+id, nil)).Snapshot.Connected
	}, time.Second, 5*time.Millisecond)

	rec = e.do(t, http.MethodPost, "/api/sessions/"+id+"/open", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), trade.ErrNotReady.Error())

	rec = e.do(t, http.MethodPost, "/api/sessions/"+id+"/close", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), trade.ErrNoSwap.Error())
}

func TestWalletEndpoints(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, http.MethodGet, "/api/wallet", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"network_label":"Rinkeby"`)

	rec = e.do(t, http.MethodPut, "/api/wallet/network", networkRequest{ChainID: 137})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"network_label":"Polygon"`)
	assert.Equal(t, uint64(137), e.wallet.Current().ChainID)

	rec = e.do(t, http.MethodPut, "/api/wallet/network", networkRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTransactions(t *testing.T) {
	e := newEnv(t)
	account := "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
	_, err := e.store.Insert(context.Background(), history.Entry{
		Hash:    "0xabc",
		Account: account,
		ChainID: 4,
		Summary: trade.SummaryOpenTrade,
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodGet, "/api/transactions", nil).Code)

	rec := e.do(t, http.MethodGet, "/api/transactions?account="+account, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Account      string          `json:"account"`
		Transactions []history.Entry `json:"transactions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, strings.ToLower(account), body.Account)
	require.Len(t, body.Transactions, 1)
	assert.Equal(t, trade.SummaryOpenTrade, body.Transactions[0].Summary)
	assert.Equal(t, history.StatusPending, body.Transactions[0].Status)
}

func TestTransactionGet(t *testing.T) {
	e := newEnv(t)
	_, err := e.store.Insert(context.Background(), history.Entry{
		Hash:    "0xdef",
		Account: "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266",
		ChainID: 4,
		Summary: trade.SummaryOpenTrade,
	})
	require.NoError(t, err)

	rec := e.do(t, http.MethodGet, "/api/transactions/0xdef", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got history.Entry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "0xdef", got.Hash)
	assert.Equal(t, uint64(4), got.ChainID)

	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodGet, "/api/transactions/0xmissing", nil).Code)
}

func TestStream_PushesSnapshots(t *testing.T) {
	e := newEnv(t)
	id := e.createSession(t)

	ts := httptest.NewServer(e.handler)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/sessions/" + id + "/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	var first sessionResponse
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, id, first.ID)

	rec := e.do(t, http.MethodPut, "/api/sessions/"+id+"/opening", linkRequest{Link: openingLink})
	require.Equal(t, http.StatusOK, rec.Code)

	for {
		var msg sessionResponse
		require.NoError(t, conn.ReadJSON(&msg))
		if msg.Snapshot.Opening.Link == openingLink {
			assert.Greater(t, msg.Snapshot.Version, first.Snapshot.Version)
			return
		}
	}
}

func TestStream_ClosedWhenSessionDeleted(t *testing.T) {
	e := newEnv(t)
	id := e.createSession(t)

	ts := httptest.NewServer(e.handler)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/sessions/" + id + "/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	var first sessionResponse
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&first))

	require.Equal(t, http.StatusNoContent, e.do(t, http.MethodDelete, "/api/sessions/"+id, nil).Code)

	for {
		var msg sessionResponse
		if err := conn.ReadJSON(&msg); err != nil {
			assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "unexpected error: %v", err)
			return
		}
	}
}

func TestClose_RejectsNewActions(t *testing.T) {
	e := newEnv(t)
	require.True(t, e.srv.startAction())
	e.srv.actions.Done()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, e.srv.Close(ctx))
	assert.False(t, e.srv.startAction())
}
