package api

import (
	"context"
	"errors"
	"math/big"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/popswap/gopopswap/internal/chain"
	"github.com/popswap/gopopswap/internal/domain"
	"github.com/popswap/gopopswap/internal/trade"
)

type createSessionRequest struct {
	SwapID string `json:"swap_id"`
}

type linkRequest struct {
	Link string `json:"link"`
}

type networkRequest struct {
	ChainID uint64 `json:"chain_id"`
}

type sessionResponse struct {
	ID       string         `json:"id"`
	Snapshot trade.Snapshot `json:"snapshot"`
	Warning  string         `json:"warning,omitempty"`
}

func writeError(c *gin.Context, code int, msg string) {
	c.AbortWithStatusJSON(code, gin.H{"error": msg})
}

func (s *Server) handleSessionCreate(c *gin.Context) {
	var req createSessionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, http.StatusBadRequest, "invalid json body")
			return
		}
	}
	swapID := strings.TrimSpace(req.SwapID)
	if swapID != "" {
		if _, ok := new(big.Int).SetString(swapID, 10); !ok {
			writeError(c, http.StatusBadRequest, "swap_id must be a decimal integer")
			return
		}
	}

	sess, err := s.createSession(swapID)
	resp := sessionResponse{ID: sess.id, Snapshot: sess.controller.Snapshot()}
	if err != nil {
		// 载入失败不删除会话：钱包/网络变化后会自动重试
		resp.Warning = err.Error()
	}
	c.JSON(http.StatusCreated, resp)
}

func (s *Server) withSession(c *gin.Context) (*session, bool) {
	sess := s.session(c.Param("sessionID"))
	if sess == nil {
		writeError(c, http.StatusNotFound, "session not found")
		return nil, false
	}
	return sess, true
}

func (s *Server) handleSessionGet(c *gin.Context) {
	sess, ok := s.withSession(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, sessionResponse{ID: sess.id, Snapshot: sess.controller.Snapshot()})
}

func (s *Server) handleSessionDelete(c *gin.Context) {
	if !s.removeSession(c.Param("sessionID")) {
		writeError(c, http.StatusNotFound, "session not found")
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleSetLink(opening bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, ok := s.withSession(c)
		if !ok {
			return
		}
		var req linkRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, http.StatusBadRequest, "invalid json body")
			return
		}

		var err error
		if opening {
			err = sess.controller.SetOpeningLink(req.Link)
		} else {
			err = sess.controller.SetClosingLink(req.Link)
		}
		resp := sessionResponse{ID: sess.id, Snapshot: sess.controller.Snapshot()}
		switch {
		case errors.Is(err, domain.ErrInvalidAssetReference):
			// 解析失败只清空该侧，不是错误
			resp.Warning = err.Error()
			c.JSON(http.StatusOK, resp)
		case err != nil:
			writeError(c, statusFor(err), err.Error())
		default:
			c.JSON(http.StatusOK, resp)
		}
	}
}

type action int

const (
	actionApproveOpening action = iota
	actionApproveClosing
	actionOpen
	actionClose
)

func (a action) String() string {
	switch a {
	case actionApproveOpening:
		return "approve-opening"
	case actionApproveClosing:
		return "approve-closing"
	case actionOpen:
		return "open"
	case actionClose:
		return "close"
	default:
		return "unknown"
	}
}

// allowed 提前检查按钮是否可用，链上操作本身在后台执行
func (a action) allowed(snap trade.Snapshot) error {
	if !snap.Connected {
		return trade.ErrNoAccount
	}
	g := snap.Gating
	switch a {
	case actionApproveOpening:
		if snap.Opening.Approving {
			return trade.ErrActionPending
		}
		if !g.CanApproveOpening {
			return trade.ErrNotReady
		}
	case actionApproveClosing:
		if snap.Closing.Approving {
			return trade.ErrActionPending
		}
		if !g.CanApproveClosing {
			return trade.ErrNotReady
		}
	case actionOpen:
		if snap.Phase == domain.PhaseSubmittingOpen {
			return trade.ErrActionPending
		}
		if !g.CanOpenTrade {
			return trade.ErrNotReady
		}
	case actionClose:
		if !snap.ClosingMode {
			return trade.ErrNoSwap
		}
		if snap.Phase == domain.PhaseSubmittingClose {
			return trade.ErrActionPending
		}
		if !g.CanTrade {
			return trade.ErrNotReady
		}
	}
	return nil
}

func (a action) run(ctx context.Context, c *trade.Controller) error {
	switch a {
	case actionApproveOpening:
		return c.ApproveOpening(ctx)
	case actionApproveClosing:
		return c.ApproveClosing(ctx)
	case actionOpen:
		return c.OpenTrade(ctx)
	case actionClose:
		return c.CloseTrade(ctx)
	}
	return trade.ErrNotReady
}

// handleAction 校验通过后在后台提交交易并立即返回 202，结果通过快照/stream 获取
func (s *Server) handleAction(a action) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, ok := s.withSession(c)
		if !ok {
			return
		}
		if err := a.allowed(sess.controller.Snapshot()); err != nil {
			writeError(c, statusFor(err), err.Error())
			return
		}

		if !s.startAction() {
			writeError(c, http.StatusServiceUnavailable, "server shutting down")
			return
		}
		go func() {
			defer s.actions.Done()
			ctx, cancel := context.WithTimeout(s.ctx, s.cfg.ActionTimeout)
			defer cancel()
			entry := log.WithFields(logrus.Fields{"session": sess.id, "action": a.String()})
			if err := a.run(ctx, sess.controller); err != nil {
				if trade.IsUserError(err) {
					// 预检查与执行之间状态已变化
					entry.WithError(err).Debug("操作被拒绝")
					return
				}
				entry.WithError(err).Warn("操作失败")
				return
			}
			entry.Info("操作完成")
		}()

		c.JSON(http.StatusAccepted, sessionResponse{ID: sess.id, Snapshot: sess.controller.Snapshot()})
	}
}

func (s *Server) handleClearError(c *gin.Context) {
	sess, ok := s.withSession(c)
	if !ok {
		return
	}
	sess.controller.ClearError()
	c.JSON(http.StatusOK, sessionResponse{ID: sess.id, Snapshot: sess.controller.Snapshot()})
}

func (s *Server) handleWalletGet(c *gin.Context) {
	if s.cfg.Wallet == nil {
		writeError(c, http.StatusNotImplemented, "wallet not configured")
		return
	}
	st := s.cfg.Wallet.Current()
	c.JSON(http.StatusOK, gin.H{
		"account":       st.AccountHex(),
		"connected":     st.Connected,
		"chain_id":      st.ChainID,
		"network_label": chain.NetworkLabel(st.ChainID),
	})
}

func (s *Server) handleWalletNetwork(c *gin.Context) {
	if s.cfg.Wallet == nil {
		writeError(c, http.StatusNotImplemented, "wallet not configured")
		return
	}
	var req networkRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ChainID == 0 {
		writeError(c, http.StatusBadRequest, "chain_id is required")
		return
	}
	s.cfg.Wallet.SwitchNetwork(req.ChainID)
	s.handleWalletGet(c)
}

func (s *Server) handleTransactions(c *gin.Context) {
	if s.cfg.History == nil {
		writeError(c, http.StatusNotImplemented, "history not configured")
		return
	}
	account := strings.TrimSpace(c.Query("account"))
	if account == "" && s.cfg.Wallet != nil {
		account = s.cfg.Wallet.Current().AccountHex()
	}
	if account == "" {
		writeError(c, http.StatusBadRequest, "account is required")
		return
	}
	limit := 50
	if v := strings.TrimSpace(c.Query("limit")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	entries, err := s.cfg.History.List(c.Request.Context(), account, limit)
	if err != nil {
		writeError(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"account": strings.ToLower(account), "transactions": entries})
}

func (s *Server) handleTransactionGet(c *gin.Context) {
	if s.cfg.History == nil {
		writeError(c, http.StatusNotImplemented, "history not configured")
		return
	}
	entry, err := s.cfg.History.Get(c.Request.Context(), c.Param("hash"))
	if err != nil {
		writeError(c, http.StatusInternalServerError, err.Error())
		return
	}
	if entry == nil {
		writeError(c, http.StatusNotFound, "transaction not found")
		return
	}
	c.JSON(http.StatusOK, entry)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, trade.ErrNoAccount):
		return http.StatusUnauthorized
	case errors.Is(err, trade.ErrActionPending), errors.Is(err, trade.ErrNotReady), errors.Is(err, trade.ErrNoSwap):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
