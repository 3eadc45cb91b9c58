package gateway

import (
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/coder/websocket"

	"github.com/MrWong99/jurubahasa/internal/display"
)

// Hub serves read-only viewers of a display.Board over websockets. Each
// viewer first receives the operations that rebuild the board's current
// state and then every later operation as it happens.
type Hub struct {
	board   *display.Board
	queue   int
	origins []string
	viewers atomic.Int64
}

// NewHub returns a Hub over board. queue bounds each viewer's backlog.
func NewHub(board *display.Board, queue int, origins []string) *Hub {
	if queue <= 0 {
		queue = defaultSendQueue
	}
	return &Hub{board: board, queue: queue, origins: origins}
}

// Viewers returns the number of connected viewers.
func (h *Hub) Viewers() int { return int(h.viewers.Load()) }

// ServeHTTP upgrades the request and streams board operations until the
// viewer disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.origins})
	if err != nil {
		slog.Debug("gateway: watch upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}
	// Viewers never send anything; CloseRead handles control frames and
	// cancels the context when the peer goes away.
	ctx := ws.CloseRead(r.Context())
	c := newConn(ctx, ws, h.queue, r.RemoteAddr)
	defer c.close("bye")

	h.viewers.Add(1)
	defer h.viewers.Add(-1)

	// Hold gate until the snapshot is queued so that no live operation can
	// overtake it.
	var gate sync.Mutex
	gate.Lock()
	snap, unsubscribe := h.board.Subscribe(func(op display.Op) {
		gate.Lock()
		defer gate.Unlock()
		_ = c.send(displayMessage(op))
	})
	defer unsubscribe()
	for _, op := range snap.Ops() {
		if err := c.send(displayMessage(op)); err != nil {
			break
		}
	}
	gate.Unlock()

	slog.Info("gateway: viewer joined", "remote", r.RemoteAddr, "viewers", h.Viewers())
	<-c.ctx.Done()
	slog.Info("gateway: viewer left", "remote", r.RemoteAddr)
}
