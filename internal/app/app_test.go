package app

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/dkeye/connecto/internal/billing"
	"github.com/dkeye/connecto/internal/domain"
)

// nullConn is a transport that swallows frames.
type nullConn struct{}

func (nullConn) TrySend(Frame) error { return nil }
func (nullConn) Close()              {}

type notice struct {
	kind    string
	to      domain.UserID
	partner domain.UserID
	session string
	text    string
	dur     int64
	cost    int64
}

// recordingNotifier captures everything the engine would push out.
type recordingNotifier struct {
	mu      sync.Mutex
	notices []notice
}

func (r *recordingNotifier) record(n notice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, n)
}

func (r *recordingNotifier) MatchFound(to, partner domain.UserID, sessionID string) {
	r.record(notice{kind: "match_found", to: to, partner: partner, session: sessionID})
}

func (r *recordingNotifier) Searching(to domain.UserID) {
	r.record(notice{kind: "searching", to: to})
}

func (r *recordingNotifier) SearchCancelled(to domain.UserID) {
	r.record(notice{kind: "search_cancelled", to: to})
}

func (r *recordingNotifier) PartnerDisconnected(to domain.UserID) {
	r.record(notice{kind: "partner_disconnected", to: to})
}

func (r *recordingNotifier) CallEnded(to domain.UserID, durationSeconds, cost int64) {
	r.record(notice{kind: "call_ended", to: to, dur: durationSeconds, cost: cost})
}

func (r *recordingNotifier) ChatMessage(to, from domain.UserID, text string) {
	r.record(notice{kind: "chat_message", to: to, partner: from, text: text})
}

func (r *recordingNotifier) Signal(to, from domain.UserID, signal json.RawMessage) {
	r.record(notice{kind: "webrtc_signal", to: to, partner: from, text: string(signal)})
}

func (r *recordingNotifier) OnlineChanged([]domain.UserInfo) {}

func (r *recordingNotifier) byKind(kind string) []notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []notice
	for _, n := range r.notices {
		if n.kind == kind {
			out = append(out, n)
		}
	}
	return out
}

// hookBilling lets a test interleave engine calls with the billing reads
// that run outside the matching lock.
type hookBilling struct {
	Billing
	onBalance func()
}

func (h *hookBilling) Balance(ctx context.Context, account domain.AccountID) (int64, error) {
	if h.onBalance != nil {
		h.onBalance()
	}
	return h.Billing.Balance(ctx, account)
}

// newTestMatcher wires a matcher over a fresh in-memory ledger.
func newTestMatcher() (*Matcher, *Presence, *recordingNotifier, *billing.Ledger, *billing.MemoryStore) {
	store := billing.NewMemoryStore()
	ledger := billing.NewLedger(store, nil, 0.80, 2)
	presence := NewPresence()
	queue := NewQueue()
	throttle := NewThrottle(500 * time.Millisecond)
	notifier := &recordingNotifier{}
	m := NewMatcher(presence, queue, throttle, ledger, notifier)
	return m, presence, notifier, ledger, store
}
