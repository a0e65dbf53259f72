package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	c "github.com/life-stream-dev/life-stream-go-tabletop/internal/config"
	"github.com/life-stream-dev/life-stream-go-tabletop/internal/assets"
	"github.com/life-stream-dev/life-stream-go-tabletop/internal/connection"
	"github.com/life-stream-dev/life-stream-go-tabletop/internal/engine"
	"github.com/life-stream-dev/life-stream-go-tabletop/internal/logger"
)

const maxFrameSize = 64 * 1024

// Server 对外暴露 websocket 入口与上传网关
type Server struct {
	config   c.Config
	engine   *engine.Engine
	manager  *connection.ConnectionManager
	assets   assets.Store
	upgrader websocket.Upgrader
	http     *http.Server
	// mu 保护 closing 与 handlers.Add, 关闭开始后不再接收新连接
	mu       sync.Mutex
	closing  bool
	handlers sync.WaitGroup
}

func NewServer(config c.Config, eng *engine.Engine, manager *connection.ConnectionManager, store assets.Store) *Server {
	s := &Server{
		config:  config,
		engine:  eng,
		manager: manager,
		assets:  store,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     originChecker(config.Server.AllowedOrigins),
	}
	s.http = &http.Server{
		Addr:              config.Addr(),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler 返回完整的路由, 测试中直接挂到 httptest.Server 上
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", s.handleWebsocket)
	for _, prefix := range []string{"", "/api"} {
		mux.HandleFunc("POST "+prefix+"/session/{sessionId}/map", s.handleMapUpload)
		mux.HandleFunc("GET "+prefix+"/session/{sessionId}/state", s.handleState)
	}
	mux.HandleFunc("GET "+assets.URLPrefix+"{name}", s.handleAsset)
	return withCORS(s.config.Server.AllowedOrigins, mux)
}

// ListenAndServe 阻塞直到服务停止, 正常关闭时返回 nil
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

func (s *Server) Serve(ln net.Listener) error {
	logger.InfoF("Tabletop Server Listen On %s", ln.Addr().String())
	if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Invoke 停止接收新请求并断开所有 websocket 连接
func (s *Server) Invoke(ctx context.Context) error {
	logger.InfoF("Shutting down tabletop server")
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()

	err := s.http.Shutdown(ctx)
	s.manager.CloseAll()

	done := make(chan struct{})
	go func() {
		s.handlers.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return errors.Join(err, ctx.Err())
	}
	return err
}

// register 登记连接及其读写协程; 服务开始关闭后返回 false
func (s *Server) register(conn *connection.Connection) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.handlers.Add(2)
	s.manager.AddConnection(conn)
	return true
}
