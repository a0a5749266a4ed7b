// Package api 通过 HTTP/WebSocket 暴露交易会话：每个会话对应一个 trade.Controller。
package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/popswap/gopopswap/internal/history"
	"github.com/popswap/gopopswap/internal/metrics"
	"github.com/popswap/gopopswap/internal/trade"
	"github.com/popswap/gopopswap/internal/wallet"
)

var log = logrus.WithField("component", "api")

// ControllerFactory 为新会话创建控制器（尚未 Start）
type ControllerFactory func() *trade.Controller

// TransactionLister 交易记录查询；Get 未找到时返回 nil
type TransactionLister interface {
	List(ctx context.Context, account string, limit int) ([]history.Entry, error)
	Get(ctx context.Context, hash string) (*history.Entry, error)
}

// WalletControl 服务端钱包：查询与切换网络
type WalletControl interface {
	Current() wallet.State
	SwitchNetwork(chainID uint64)
}

type Config struct {
	NewController ControllerFactory
	History       TransactionLister
	Wallet        WalletControl
	// ActionTimeout 单次链上操作（含等待确认）的最长时间
	ActionTimeout time.Duration
}

type session struct {
	id         string
	controller *trade.Controller
	createdAt  time.Time
}

type Server struct {
	cfg      Config
	upgrader websocket.Upgrader

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	sessions map[string]*session

	actions sync.WaitGroup
}

func New(cfg Config) *Server {
	if cfg.ActionTimeout <= 0 {
		cfg.ActionTimeout = 10 * time.Minute
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:    cfg,
		ctx:    ctx,
		cancel: cancel,
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
		sessions: make(map[string]*session),
	}
}

func (s *Server) Router() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })

	api := r.Group("/api")
	api.GET("/wallet", s.handleWalletGet)
	api.PUT("/wallet/network", s.handleWalletNetwork)
	api.GET("/transactions", s.handleTransactions)
	api.GET("/transactions/:hash", s.handleTransactionGet)

	sessions := api.Group("/sessions")
	sessions.POST("", s.handleSessionCreate)
	sessionID := sessions.Group("/:sessionID")
	sessionID.GET("", s.handleSessionGet)
	sessionID.DELETE("", s.handleSessionDelete)
	sessionID.PUT("/opening", s.handleSetLink(true))
	sessionID.PUT("/closing", s.handleSetLink(false))
	sessionID.POST("/approve-opening", s.handleAction(actionApproveOpening))
	sessionID.POST("/approve-closing", s.handleAction(actionApproveClosing))
	sessionID.POST("/open", s.handleAction(actionOpen))
	sessionID.POST("/close", s.handleAction(actionClose))
	sessionID.POST("/clear-error", s.handleClearError)
	sessionID.GET("/stream", s.handleStream)

	return r
}

// createSession 创建并启动会话；swapID 非空时进入成交流程
func (s *Server) createSession(swapID string) (*session, error) {
	c := s.cfg.NewController()
	sess := &session{id: uuid.NewString(), controller: c, createdAt: time.Now()}
	err := c.Start(s.ctx, swapID)

	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()
	metrics.SessionsActive.Add(1)

	log.WithFields(logrus.Fields{"session": sess.id, "swapId": swapID}).Info("会话已创建")
	return sess, err
}

func (s *Server) session(id string) *session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[id]
}

func (s *Server) removeSession(id string) bool {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if ok {
		metrics.SessionsActive.Add(-1)
		sess.controller.Close()
	}
	return ok
}

// startAction 登记一个后台操作；服务关闭后不再接受新的操作
func (s *Server) startAction() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx.Err() != nil {
		return false
	}
	s.actions.Add(1)
	return true
}

// Close 取消进行中的操作并关闭所有会话
func (s *Server) Close(ctx context.Context) error {
	s.mu.Lock()
	s.cancel()
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.actions.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	s.mu.Lock()
	all := make([]*session, 0, len(s.sessions))
	for id, sess := range s.sessions {
		all = append(all, sess)
		delete(s.sessions, id)
	}
	s.mu.Unlock()
	for _, sess := range all {
		metrics.SessionsActive.Add(-1)
		sess.controller.Close()
	}
	return nil
}
