package signal

import (
	"encoding/json"
	"time"

	"github.com/dkeye/connecto/internal/domain"
)

// Inbound message kinds. Everything a participant can ask for arrives as a
// JSON object with a type discriminator.
const (
	inFindRandom     = "find_random"
	inConnectUser    = "connect_user"
	inCancelSearch   = "cancel_search"
	inChatMessage    = "chat_message"
	inWebRTCSignal   = "webrtc_signal"
	inDisconnectChat = "disconnect_chat"
	inEndSession     = "end_session"
	inPing           = "ping"
)

type envelope struct {
	Type string `json:"type"`
}

type connectUserPayload struct {
	TargetUserID domain.UserID `json:"targetUserId"`
}

type chatPayload struct {
	Text string `json:"text"`
}

type signalPayload struct {
	Signal json.RawMessage `json:"signal"`
}

// Outbound messages.

type connectedMsg struct {
	Type      string        `json:"type"`
	UserID    domain.UserID `json:"userId"`
	Timestamp int64         `json:"timestamp"`
}

type onlineUsersMsg struct {
	Type      string            `json:"type"`
	Users     []domain.UserInfo `json:"users"`
	Count     int               `json:"count"`
	Timestamp int64             `json:"timestamp"`
}

type searchingMsg struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

type searchCancelledMsg struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

type matchFoundMsg struct {
	Type      string        `json:"type"`
	SessionID string        `json:"sessionId"`
	PartnerID domain.UserID `json:"partnerId"`
	Timestamp int64         `json:"timestamp"`
}

type chatMessageMsg struct {
	Type      string        `json:"type"`
	SenderID  domain.UserID `json:"senderId"`
	Text      string        `json:"text"`
	Timestamp int64         `json:"timestamp"`
}

type webrtcSignalMsg struct {
	Type      string          `json:"type"`
	SenderID  domain.UserID   `json:"senderId"`
	Signal    json.RawMessage `json:"signal"`
	Timestamp int64           `json:"timestamp"`
}

type partnerDisconnectedMsg struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

type callEndedMsg struct {
	Type            string `json:"type"`
	DurationSeconds int64  `json:"durationSeconds"`
	Cost            int64  `json:"cost"`
	Timestamp       int64  `json:"timestamp"`
}

type insufficientBalanceMsg struct {
	Type      string `json:"type"`
	Required  int64  `json:"required"`
	Current   int64  `json:"current"`
	Timestamp int64  `json:"timestamp"`
}

type errorMsg struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

type pongMsg struct {
	Type string `json:"type"`
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}
