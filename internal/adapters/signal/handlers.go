package signal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/connecto/internal/app"
	"github.com/dkeye/connecto/internal/domain"
)

func (ctl *Controller) handleFindRandom(ctx context.Context, uid domain.UserID, c *WsConn) {
	if err := ctl.Matcher.FindRandom(ctx, uid); err != nil {
		ctl.replyMatchError(c, err)
	}
}

func (ctl *Controller) handleConnectUser(ctx context.Context, uid domain.UserID, c *WsConn, data []byte) {
	var p connectUserPayload
	if err := json.Unmarshal(data, &p); err != nil || p.TargetUserID == "" {
		ctl.sendError(c, "Invalid message format")
		return
	}
	if err := ctl.Matcher.ConnectTo(ctx, uid, p.TargetUserID); err != nil {
		ctl.replyMatchError(c, err)
	}
}

func (ctl *Controller) replyMatchError(c *WsConn, err error) {
	var insufficient *app.InsufficientBalanceError
	switch {
	case errors.As(err, &insufficient):
		ctl.sendJSON(c, insufficientBalanceMsg{
			Type:      "insufficient_balance",
			Required:  insufficient.Required,
			Current:   insufficient.Current,
			Timestamp: nowMillis(),
		})
	case errors.Is(err, app.ErrAlreadyInSession):
		ctl.sendError(c, "You are already in a conversation")
	case errors.Is(err, app.ErrTargetUnavailable):
		ctl.sendError(c, "User is not available")
	case errors.Is(err, app.ErrNotFound):
		ctl.sendError(c, "User not found")
	default:
		log.Error().Err(err).Str("module", "signal").Msg("match request failed")
		ctl.sendError(c, "Internal error")
	}
}

func (ctl *Controller) handleChat(uid domain.UserID, c *WsConn, data []byte) {
	var p chatPayload
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendError(c, "Invalid message format")
		return
	}
	switch err := ctl.Relay.Chat(uid, p.Text); {
	case errors.Is(err, app.ErrMessageTooLong):
		ctl.sendError(c, fmt.Sprintf("Message too long. Max %d characters.", ctl.Relay.MaxLen()))
	case errors.Is(err, app.ErrRateLimited):
		ctl.sendError(c, "Message sent too quickly. Please slow down.")
	}
}

func (ctl *Controller) handleWebRTCSignal(uid domain.UserID, c *WsConn, data []byte) {
	var p signalPayload
	if err := json.Unmarshal(data, &p); err != nil || len(p.Signal) == 0 {
		ctl.sendError(c, "Invalid message format")
		return
	}
	_ = ctl.Relay.Signal(uid, p.Signal)
}
