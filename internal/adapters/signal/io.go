package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/connecto/internal/domain"
)

func (ctl *Controller) writePump(ctx context.Context, c *WsConn) {
	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if !ok {
				log.Debug().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		}
	}
}

func (ctl *Controller) readPump(ctx context.Context, cancel context.CancelFunc, uid domain.UserID, c *WsConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("uid", string(uid)).Msg("readPump closing")
		ctl.Matcher.Disconnect(context.Background(), uid)
		cancel()
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				log.Debug().Err(err).Str("module", "signal").Str("uid", string(uid)).Msg("readPump read error")
				return
			}
			ctl.handleMessage(ctx, uid, c, data)
		}
	}
}

func (ctl *Controller) handleMessage(ctx context.Context, uid domain.UserID, c *WsConn, data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("bad json")
		ctl.sendError(c, "Invalid message format")
		return
	}

	switch env.Type {
	case inFindRandom:
		ctl.handleFindRandom(ctx, uid, c)
	case inConnectUser:
		ctl.handleConnectUser(ctx, uid, c, data)
	case inCancelSearch:
		ctl.Matcher.CancelSearch(uid)
	case inChatMessage:
		ctl.handleChat(uid, c, data)
	case inWebRTCSignal:
		ctl.handleWebRTCSignal(uid, c, data)
	case inDisconnectChat, inEndSession:
		ctl.Matcher.End(ctx, uid)
	case inPing:
		ctl.sendJSON(c, pongMsg{Type: "pong"})
	default:
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown message type")
		ctl.sendError(c, "Unknown message type")
	}
}

func (ctl *Controller) sendJSON(c *WsConn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	_ = c.TrySend(b)
}

func (ctl *Controller) sendError(c *WsConn, message string) {
	ctl.sendJSON(c, errorMsg{Type: "error", Message: message, Timestamp: nowMillis()})
}
