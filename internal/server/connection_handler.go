package server

import (
	"errors"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/life-stream-dev/life-stream-go-tabletop/internal/connection"
	"github.com/life-stream-dev/life-stream-go-tabletop/internal/logger"
	"github.com/life-stream-dev/life-stream-go-tabletop/internal/protocol"
)

type ConnectionHandler struct {
	server    *Server
	ws        *websocket.Conn
	conn      *connection.Connection
	connId    string
	closeOnce sync.Once
}

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade 已经写回了错误响应
		logger.WarnF("Fail to upgrade connection from %s, details: %v", r.RemoteAddr, err)
		return
	}

	connId := connection.NewConnID()
	c := &ConnectionHandler{
		server: s,
		ws:     ws,
		conn:   connection.NewConnection(connId, s.config.Server.SendBuffer),
		connId: connId,
	}
	if !s.register(c.conn) {
		logger.DebugF("[%s] Reject websocket connection from %s, server is shutting down", connId, r.RemoteAddr)
		closeMessage := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
		_ = ws.WriteControl(websocket.CloseMessage, closeMessage, time.Now().Add(time.Second))
		_ = ws.Close()
		return
	}
	logger.DebugF("[%s] Accepted websocket connection from %s", connId, r.RemoteAddr)

	go func() {
		defer s.handlers.Done()
		c.writeLoop()
	}()
	go func() {
		defer s.handlers.Done()
		c.readLoop()
	}()
}

func (c *ConnectionHandler) readTimeout() time.Duration {
	return c.server.config.ReadTimeout()
}

func (c *ConnectionHandler) readLoop() {
	defer c.close()

	c.ws.SetReadLimit(maxFrameSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(c.readTimeout()))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.readTimeout()))
	})

	for {
		messageType, data, err := c.ws.ReadMessage()
		if err != nil {
			handleReadError(c.connId, err)
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(c.readTimeout()))

		if messageType != websocket.TextMessage {
			logger.WarnF("[%s] Ignore non-text frame of %d bytes", c.connId, len(data))
			continue
		}

		msg, err := protocol.Decode(data)
		if err != nil {
			logger.WarnF("[%s] Drop message, details: %v", c.connId, err)
			continue
		}
		logger.DebugF("[%s] Receive %s message for session %s", c.connId, msg.Event(), msg.Session())
		c.server.engine.Dispatch(c.connId, msg)
	}
}

func (c *ConnectionHandler) writeLoop() {
	ticker := time.NewTicker(c.server.config.PingInterval())
	defer func() {
		ticker.Stop()
		c.close()
	}()

	writeTimeout := c.server.config.WriteTimeout()
	for {
		select {
		case data := <-c.conn.Outbound():
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				logger.WarnF("[%s] Fail to send data, details: %v", c.connId, err)
				return
			}
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				logger.WarnF("[%s] Fail to send ping, details: %v", c.connId, err)
				return
			}
		case <-c.conn.Done():
			closeMessage := websocket.FormatCloseMessage(websocket.CloseGoingAway, "")
			_ = c.ws.WriteControl(websocket.CloseMessage, closeMessage, time.Now().Add(writeTimeout))
			return
		}
	}
}

// close 由读写任一方触发, 只执行一次
func (c *ConnectionHandler) close() {
	c.closeOnce.Do(func() {
		c.server.engine.Leave(c.connId)
		c.server.manager.RemoveConnection(c.connId)
		c.conn.Close()
		if err := c.ws.Close(); err != nil && !isNetClosedError(err) {
			logger.WarnF("[%s] Error occured while closing connection, details: %v", c.connId, err)
		}
		logger.DebugF("[%s] Connection closed", c.connId)
	})
}

func isNetClosedError(err error) bool {
	if errors.Is(err, net.ErrClosed) {
		return true
	}
	var opErr *net.OpError
	ok := errors.As(err, &opErr)
	return ok && opErr.Timeout()
}

func handleReadError(connId string, err error) {
	switch {
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived):
		logger.InfoF("[%s] Client close connection", connId)
	case os.IsTimeout(err):
		logger.WarnF("[%s] Reading timeout", connId)
	case isNetClosedError(err):
		logger.DebugF("[%s] Connection already closed", connId)
	default:
		logger.ErrorF("[%s] Error occured while reading message, details: %v", connId, err)
	}
}
