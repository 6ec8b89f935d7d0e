package app

import (
	"encoding/json"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/connecto/internal/domain"
)

// htmlSanitizer neutralizes HTML-significant characters in chat text so a
// downstream renderer cannot be injected through the relay.
var htmlSanitizer = strings.NewReplacer(
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#x27;",
	"/", "&#x2F;",
)

func Sanitize(text string) string {
	return htmlSanitizer.Replace(text)
}

// Relay forwards chat and WebRTC signaling between the two members of a
// session. Payloads are opaque except for chat text, which is throttled,
// bounded and sanitized. A vanished partner is an expected race: logged,
// dropped, never surfaced to the sender.
type Relay struct {
	presence *Presence
	throttle *Throttle
	notifier Notifier
	maxLen   int
}

func NewRelay(presence *Presence, throttle *Throttle, notifier Notifier, maxLen int) *Relay {
	return &Relay{presence: presence, throttle: throttle, notifier: notifier, maxLen: maxLen}
}

func (r *Relay) MaxLen() int { return r.maxLen }

// Chat relays sanitized chat text to the sender's current partner.
func (r *Relay) Chat(from domain.UserID, text string) error {
	if len(text) == 0 {
		return nil
	}
	if len(text) > r.maxLen {
		return ErrMessageTooLong
	}
	if !r.throttle.Allow(from) {
		return ErrRateLimited
	}
	partner, ok := r.presence.PartnerOf(from)
	if !ok {
		log.Debug().Str("module", "app.relay").Str("uid", string(from)).Msg("chat dropped, no partner")
		return nil
	}
	r.notifier.ChatMessage(partner.ID, from, Sanitize(text))
	return nil
}

// Signal relays an opaque WebRTC signal blob verbatim to the partner.
func (r *Relay) Signal(from domain.UserID, signal json.RawMessage) error {
	partner, ok := r.presence.PartnerOf(from)
	if !ok {
		log.Debug().Str("module", "app.relay").Str("uid", string(from)).Msg("signal dropped, no partner")
		return nil
	}
	r.notifier.Signal(partner.ID, from, signal)
	return nil
}
