package gateway

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

const writeTimeout = 5 * time.Second

// errConnClosed is returned by conn.send once the connection is gone or was
// dropped for falling behind.
var errConnClosed = errors.New("gateway: connection closed")

// conn wraps a websocket with a bounded outbound queue drained by one writer
// goroutine. send never blocks: a peer that cannot keep up is disconnected.
type conn struct {
	ws     *websocket.Conn
	out    chan ServerMessage
	ctx    context.Context
	cancel context.CancelFunc
	remote string
}

func newConn(parent context.Context, ws *websocket.Conn, queue int, remote string) *conn {
	ctx, cancel := context.WithCancel(parent)
	c := &conn{
		ws:     ws,
		out:    make(chan ServerMessage, queue),
		ctx:    ctx,
		cancel: cancel,
		remote: remote,
	}
	go c.writeLoop()
	return c
}

func (c *conn) send(m ServerMessage) error {
	if c.ctx.Err() != nil {
		return errConnClosed
	}
	select {
	case c.out <- m:
		return nil
	default:
		slog.Warn("gateway: peer too slow, disconnecting", "remote", c.remote)
		c.ws.Close(websocket.StatusPolicyViolation, "send queue full")
		c.cancel()
		return errConnClosed
	}
}

func (c *conn) writeLoop() {
	for {
		select {
		case <-c.ctx.Done():
			return
		case m := <-c.out:
			ctx, cancel := context.WithTimeout(c.ctx, writeTimeout)
			err := wsjson.Write(ctx, c.ws, m)
			cancel()
			if err != nil {
				slog.Debug("gateway: write failed", "remote", c.remote, "err", err)
				c.cancel()
				return
			}
		}
	}
}

// close ends the writer and closes the websocket normally.
func (c *conn) close(reason string) {
	c.cancel()
	c.ws.Close(websocket.StatusNormalClosure, reason)
}
