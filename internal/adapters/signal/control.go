package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/connecto/internal/app"
	"github.com/dkeye/connecto/internal/domain"
)

var ErrBackpressure = errors.New("backpressure")

// Controller owns the websocket side of the engine: it upgrades
// connections, registers presence, dispatches inbound messages and
// implements the engine's Notifier. Matcher and Relay are set after
// construction since they take the controller as their Notifier.
type Controller struct {
	Presence *app.Presence
	Matcher  *app.Matcher
	Relay    *app.Relay

	ReadLimit int64
}

type WsConn struct {
	conn *websocket.Conn
	send chan app.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *WsConn) TrySend(f app.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleWS upgrades the connection and brings one participant online. The
// identity is minted per connection; the backing account, if any, was bound
// upstream by the session middleware.
func (ctl *Controller) HandleWS(ctx context.Context, c *gin.Context) {
	uid := domain.UserID(uuid.NewString())
	account := domain.AccountID(c.GetString("account"))
	name := c.Query("name")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	if ctl.ReadLimit > 0 {
		ws.SetReadLimit(ctl.ReadLimit)
	}
	log.Info().Str("module", "signal").Str("uid", string(uid)).Msg("new WS connection")

	conn := &WsConn{
		conn: ws,
		send: make(chan app.Frame, 32),
	}

	if _, err := ctl.Presence.Register(uid, account, name, conn); err != nil {
		// DuplicateIdentity is fatal to this connection attempt only.
		log.Error().Err(err).Str("module", "signal").Str("uid", string(uid)).Msg("register failed")
		conn.Close()
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, cancel, uid, conn)

	ctl.sendJSON(conn, connectedMsg{Type: "connected", UserID: uid, Timestamp: nowMillis()})
}
