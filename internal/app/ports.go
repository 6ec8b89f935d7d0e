package app

import (
	"encoding/json"

	"github.com/dkeye/connecto/internal/domain"
)

// Frame is a raw outbound payload, already serialized.
type Frame []byte

// Conn abstracts the signaling transport of one participant.
// Owned by the presence registry via its entry; the adapter must Close() it.
type Conn interface {
	TrySend(Frame) error
	Close()
}

// Notifier is the outbound side of the engine. The signaling adapter
// implements it by marshaling typed messages onto participant connections,
// so the engine itself never touches JSON framing.
type Notifier interface {
	MatchFound(to, partner domain.UserID, sessionID string)
	Searching(to domain.UserID)
	SearchCancelled(to domain.UserID)
	PartnerDisconnected(to domain.UserID)
	CallEnded(to domain.UserID, durationSeconds, cost int64)
	ChatMessage(to, from domain.UserID, text string)
	Signal(to, from domain.UserID, signal json.RawMessage)
	OnlineChanged(users []domain.UserInfo)
}
