package signal

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/connecto/internal/domain"
)

// The controller is the engine's Notifier: every outbound message is
// marshaled once here and pushed onto the recipient's connection without
// blocking. A recipient that vanished mid-flight is an expected race.

func (ctl *Controller) sendTo(to domain.UserID, v any) {
	e, ok := ctl.Presence.Get(to)
	if !ok {
		log.Debug().Str("module", "signal").Str("uid", string(to)).Msg("notify dropped, recipient gone")
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("notify marshal")
		return
	}
	if err := e.Conn.TrySend(b); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("uid", string(to)).Msg("notify send failed")
	}
}

func (ctl *Controller) MatchFound(to, partner domain.UserID, sessionID string) {
	ctl.sendTo(to, matchFoundMsg{Type: "match_found", SessionID: sessionID, PartnerID: partner, Timestamp: nowMillis()})
}

func (ctl *Controller) Searching(to domain.UserID) {
	ctl.sendTo(to, searchingMsg{Type: "searching", Message: "Looking for a partner...", Timestamp: nowMillis()})
}

func (ctl *Controller) SearchCancelled(to domain.UserID) {
	ctl.sendTo(to, searchCancelledMsg{Type: "search_cancelled", Timestamp: nowMillis()})
}

func (ctl *Controller) PartnerDisconnected(to domain.UserID) {
	ctl.sendTo(to, partnerDisconnectedMsg{Type: "partner_disconnected", Message: "Your partner has disconnected", Timestamp: nowMillis()})
}

func (ctl *Controller) CallEnded(to domain.UserID, durationSeconds, cost int64) {
	ctl.sendTo(to, callEndedMsg{Type: "call_ended", DurationSeconds: durationSeconds, Cost: cost, Timestamp: nowMillis()})
}

func (ctl *Controller) ChatMessage(to, from domain.UserID, text string) {
	ctl.sendTo(to, chatMessageMsg{Type: "chat_message", SenderID: from, Text: text, Timestamp: nowMillis()})
}

func (ctl *Controller) Signal(to, from domain.UserID, signal json.RawMessage) {
	ctl.sendTo(to, webrtcSignalMsg{Type: "webrtc_signal", SenderID: from, Signal: signal, Timestamp: nowMillis()})
}

// OnlineChanged fans the roster out to everyone; one marshal per broadcast.
func (ctl *Controller) OnlineChanged(users []domain.UserInfo) {
	b, err := json.Marshal(onlineUsersMsg{Type: "online_users", Users: users, Count: len(users), Timestamp: nowMillis()})
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("online_users marshal")
		return
	}
	for _, u := range users {
		if e, ok := ctl.Presence.Get(u.ID); ok {
			_ = e.Conn.TrySend(b)
		}
	}
}
