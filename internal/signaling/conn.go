package signaling

import (
	"errors"
	"log/slog"
	"net"
	"runtime/debug"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hanasu-chat/hanasu-signal/internal/metrics"
	"github.com/hanasu-chat/hanasu-signal/internal/protocol"
	"github.com/hanasu-chat/hanasu-signal/internal/ratelimit"
)

const wsWriteWait = 1 * time.Second

// wsConn is one signaling WebSocket. It implements hub.Peer.
type wsConn struct {
	srv     *Server
	conn    *websocket.Conn
	session string
	log     *slog.Logger

	queue   *sendQueue
	limiter *ratelimit.TokenBucket

	done      chan struct{}
	closeOnce sync.Once
}

func (c *wsConn) Session() string { return c.session }

func (c *wsConn) Send(frame []byte) bool { return c.queue.Enqueue(frame) }

// serve runs the read loop until the transport closes. A nil identity leaves
// the connection inert: frames are read and discarded so that the close is
// still observed, but nothing reaches the hub.
func (c *wsConn) serve(identity *handshake) {
	defer c.Close()
	defer func() {
		if r := recover(); r != nil {
			c.srv.metrics.Inc(metrics.EventWSPanic)
			c.log.Error("ws_panic", "panic", r, "stack", string(debug.Stack()))
			c.closeWith(websocket.CloseInternalServerErr, "internal error")
		}
	}()

	c.conn.SetReadLimit(c.srv.cfg.MaxMessageBytes)
	c.extendReadDeadline()
	c.conn.SetPongHandler(func(string) error {
		c.extendReadDeadline()
		return nil
	})
	go c.pingLoop()

	if identity != nil {
		go c.writeLoop()

		// Deferred before Register so a panic inside the hub still releases
		// the directory entry.
		defer c.srv.hub.Unregister(c.session)
		c.srv.hub.Register(c, identity.ID, identity.Name)

		c.srv.metrics.Inc(metrics.EventWSConnected)
		c.log.Info("ws_connected", "user_id", identity.ID)
		defer func() {
			c.srv.metrics.Inc(metrics.EventWSDisconnected)
			c.log.Info("ws_disconnected", "user_id", identity.ID)
		}()
	}

	c.readLoop(identity != nil)
}

func (c *wsConn) readLoop(registered bool) {
	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			switch {
			case isTimeout(err):
				c.log.Debug("ws_idle_timeout")
				c.closeWith(websocket.CloseNormalClosure, "idle timeout")
			case errors.Is(err, websocket.ErrReadLimit):
				// gorilla has already sent CloseMessageTooBig.
				c.log.Debug("ws_message_too_large")
			case websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived):
				c.log.Debug("ws_read_error", "err", err)
			}
			return
		}
		c.extendReadDeadline()

		// Rate limit after the read so the client reliably sees the close
		// frame instead of a TCP reset caused by unread data.
		if !c.limiter.Allow() {
			c.srv.metrics.Inc(metrics.EventWSRateLimited)
			c.log.Warn("ws_rate_limited")
			c.closeWith(websocket.ClosePolicyViolation, "rate limit exceeded")
			return
		}
		if !registered {
			continue
		}
		if msgType != websocket.TextMessage {
			c.closeWith(websocket.CloseUnsupportedData, "expected text message")
			return
		}

		msg, err := protocol.ParseClientMessage(data)
		if err != nil {
			c.srv.metrics.Inc(metrics.EventWSMalformedMessage)
			c.log.Debug("ws_malformed_message", "err", err)
			continue
		}
		c.srv.hub.Handle(c.session, msg)
	}
}

func (c *wsConn) writeLoop() {
	for {
		frame, ok := c.queue.Dequeue()
		if !ok {
			return
		}
		_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			c.log.Debug("ws_write_failed", "err", err)
			c.Close()
			return
		}
	}
}

func (c *wsConn) pingLoop() {
	t := time.NewTicker(c.srv.cfg.PingInterval)
	defer t.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-t.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		}
	}
}

func (c *wsConn) extendReadDeadline() {
	_ = c.conn.SetReadDeadline(time.Now().Add(c.srv.cfg.IdleTimeout))
}

func (c *wsConn) closeWith(code int, reason string) {
	_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(wsWriteWait))
}

func (c *wsConn) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.queue.Close()
		_ = c.conn.Close()
		c.srv.untrack(c)
	})
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
