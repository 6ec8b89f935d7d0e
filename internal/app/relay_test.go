package app

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/connecto/internal/domain"
)

func newTestRelay(t *testing.T) (*Relay, *Presence, *recordingNotifier) {
	t.Helper()
	presence := NewPresence()
	throttle := NewThrottle(500 * time.Millisecond)
	notifier := &recordingNotifier{}
	relay := NewRelay(presence, throttle, notifier, 1000)

	for _, id := range []domain.UserID{"a", "b"} {
		_, err := presence.Register(id, "", "", nullConn{})
		require.NoError(t, err)
	}
	presence.SetMatched("a", "b")
	return relay, presence, notifier
}

func TestRelayChatSanitizesHTML(t *testing.T) {
	relay, _, notifier := newTestRelay(t)

	require.NoError(t, relay.Chat("a", "<b>hi</b>"))

	msgs := notifier.byKind("chat_message")
	require.Len(t, msgs, 1)
	assert.Equal(t, domain.UserID("b"), msgs[0].to)
	assert.Equal(t, domain.UserID("a"), msgs[0].partner)
	assert.Equal(t, "&lt;b&gt;hi&lt;&#x2F;b&gt;", msgs[0].text)
}

func TestRelayChatTooLong(t *testing.T) {
	relay, _, notifier := newTestRelay(t)

	long := make([]byte, 1001)
	for i := range long {
		long[i] = 'x'
	}
	assert.ErrorIs(t, relay.Chat("a", string(long)), ErrMessageTooLong)
	assert.Empty(t, notifier.byKind("chat_message"))
}

func TestRelayChatRateLimited(t *testing.T) {
	relay, _, notifier := newTestRelay(t)

	require.NoError(t, relay.Chat("a", "first"))
	assert.ErrorIs(t, relay.Chat("a", "second"), ErrRateLimited)
	assert.Len(t, notifier.byKind("chat_message"), 1)
}

func TestRelayDropsSilentlyWithoutPartner(t *testing.T) {
	relay, presence, notifier := newTestRelay(t)
	presence.ClearMatch("a", "b")

	// Not an error for the sender: it may have raced a teardown.
	assert.NoError(t, relay.Chat("a", "anyone there?"))
	assert.NoError(t, relay.Signal("a", json.RawMessage(`{"sdp":"x"}`)))
	assert.Empty(t, notifier.byKind("chat_message"))
	assert.Empty(t, notifier.byKind("webrtc_signal"))
}

func TestRelaySignalForwardsVerbatim(t *testing.T) {
	relay, _, notifier := newTestRelay(t)

	payload := `{"type":"offer","sdp":"v=0 <script>"}`
	require.NoError(t, relay.Signal("a", json.RawMessage(payload)))

	msgs := notifier.byKind("webrtc_signal")
	require.Len(t, msgs, 1)
	assert.Equal(t, payload, msgs[0].text, "signal payload must not be touched")
}
