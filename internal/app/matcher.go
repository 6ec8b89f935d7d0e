package app

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/connecto/internal/billing"
	"github.com/dkeye/connecto/internal/domain"
)

// Billing is the matcher's view of the ledger: pre-session balance checks
// and exactly-once settlement on teardown.
type Billing interface {
	Balance(ctx context.Context, account domain.AccountID) (int64, error)
	RateFor(ctx context.Context, account domain.AccountID) (int64, error)
	MinimumBalance(ratePerMinute int64) int64
	Settle(ctx context.Context, req billing.SettleRequest) (*billing.Settlement, error)
}

// Session is one live pair. Undirected at the relay layer; billing treats
// Payer/Earner asymmetrically. Owned exclusively by the matcher — presence
// entries hold only the partner id for lookup.
type Session struct {
	ID            string
	MemberA       domain.UserID
	MemberB       domain.UserID
	StartedAt     time.Time
	RatePerMinute int64
	Payer         domain.AccountID
	Earner        domain.AccountID
}

// Matcher pairs participants and owns the per-pair lifecycle. One mutex
// serializes every pairwise transition, so a match commits for both members
// or for neither, and no third party can slip in between check and commit.
// Wallet guards are the ledger's; nothing here blocks on I/O under mu.
type Matcher struct {
	presence *Presence
	queue    *Queue
	throttle *Throttle
	billing  Billing
	notifier Notifier

	mu       sync.Mutex
	sessions map[string]*Session
	byMember map[domain.UserID]*Session
	now      func() time.Time
}

func NewMatcher(presence *Presence, queue *Queue, throttle *Throttle, b Billing, n Notifier) *Matcher {
	return &Matcher{
		presence: presence,
		queue:    queue,
		throttle: throttle,
		billing:  b,
		notifier: n,
		sessions: make(map[string]*Session),
		byMember: make(map[domain.UserID]*Session),
		now:      time.Now,
	}
}

// FindRandom pairs id with the longest-waiting searcher, or parks id in the
// queue when nobody is waiting. Random pairings are free (rate 0).
func (m *Matcher) FindRandom(ctx context.Context, id domain.UserID) error {
	entry, ok := m.presence.Get(id)
	if !ok {
		return ErrNotFound
	}

	m.mu.Lock()
	if _, matched := m.byMember[id]; matched {
		m.mu.Unlock()
		return ErrAlreadyInSession
	}
	if entry.Status == domain.StatusSearching {
		m.mu.Unlock()
		m.notifier.Searching(id)
		return nil
	}

	partner := m.popSearcher(id)
	if partner == "" {
		m.presence.SetSearching(id)
		m.queue.Enqueue(id)
		m.mu.Unlock()
		m.notifier.Searching(id)
		return nil
	}

	sess := m.createSession(partner, id, 0, "", "")
	m.mu.Unlock()

	m.notifier.MatchFound(id, partner, sess.ID)
	m.notifier.MatchFound(partner, id, sess.ID)
	log.Info().Str("module", "app.matcher").Str("session", sess.ID).
		Str("a", string(partner)).Str("b", string(id)).Msg("random match")
	return nil
}

// popSearcher must be called with m.mu held. Skips queue entries that went
// stale (disconnected or no longer searching).
func (m *Matcher) popSearcher(excluding domain.UserID) domain.UserID {
	for {
		candidate, ok := m.queue.PopNext(excluding)
		if !ok {
			return ""
		}
		e, ok := m.presence.Get(candidate)
		if ok && e.Status == domain.StatusSearching {
			return candidate
		}
		log.Debug().Str("module", "app.matcher").Str("uid", string(candidate)).Msg("dropping stale queue entry")
	}
}

// ConnectTo pairs id with an explicitly chosen target. When the target is a
// registered earner the session is monetized at the earner's rate and the
// payer must hold the minimum balance up front; otherwise no session is
// created at all.
func (m *Matcher) ConnectTo(ctx context.Context, id, target domain.UserID) error {
	entry, ok := m.presence.Get(id)
	if !ok {
		return ErrNotFound
	}
	if target == id {
		return ErrTargetUnavailable
	}
	tEntry, ok := m.presence.Get(target)
	if !ok {
		return ErrTargetUnavailable
	}

	// Billing reads happen before the matching lock; a balance that moves
	// between this check and settlement is resolved by clamping the charge.
	rate, err := m.billing.RateFor(ctx, tEntry.Account)
	if err != nil {
		return err
	}
	var payer, earner domain.AccountID
	if rate > 0 {
		payer, earner = entry.Account, tEntry.Account
		required := m.billing.MinimumBalance(rate)
		var current int64
		if payer != "" {
			if current, err = m.billing.Balance(ctx, payer); err != nil {
				return err
			}
		}
		if current < required {
			return &InsufficientBalanceError{Required: required, Current: current}
		}
	}

	// The billing reads above ran without the matching lock; either side may
	// have disconnected in the meantime. Re-fetch both entries under the lock
	// and trust only what presence says now.
	m.mu.Lock()
	entry, ok = m.presence.Get(id)
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	if _, matched := m.byMember[id]; matched || entry.Status == domain.StatusMatched {
		m.mu.Unlock()
		return ErrAlreadyInSession
	}
	tEntry, ok = m.presence.Get(target)
	if !ok {
		m.mu.Unlock()
		return ErrTargetUnavailable
	}
	if _, busy := m.byMember[target]; busy || tEntry.Status != domain.StatusAvailable {
		m.mu.Unlock()
		return ErrTargetUnavailable
	}
	sess := m.createSession(id, target, rate, payer, earner)
	m.mu.Unlock()

	m.notifier.MatchFound(id, target, sess.ID)
	m.notifier.MatchFound(target, id, sess.ID)
	log.Info().Str("module", "app.matcher").Str("session", sess.ID).
		Str("a", string(id)).Str("b", string(target)).Int64("rate", rate).Msg("direct match")
	return nil
}

// createSession must be called with m.mu held. Both members flip to matched
// in one presence critical section.
func (m *Matcher) createSession(a, b domain.UserID, rate int64, payer, earner domain.AccountID) *Session {
	sess := &Session{
		ID:            uuid.NewString(),
		MemberA:       a,
		MemberB:       b,
		StartedAt:     m.now(),
		RatePerMinute: rate,
		Payer:         payer,
		Earner:        earner,
	}
	m.sessions[sess.ID] = sess
	m.byMember[a] = sess
	m.byMember[b] = sess
	m.queue.Remove(a)
	m.queue.Remove(b)
	m.presence.SetMatched(a, b)
	return sess
}

// CancelSearch returns a searching id to available. No-op while matched.
func (m *Matcher) CancelSearch(id domain.UserID) {
	m.mu.Lock()
	if _, matched := m.byMember[id]; matched {
		m.mu.Unlock()
		return
	}
	m.queue.Remove(id)
	m.presence.SetAvailable(id)
	m.mu.Unlock()
	m.notifier.SearchCancelled(id)
}

// SessionOf returns the live session id belongs to, if any.
func (m *Matcher) SessionOf(id domain.UserID) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byMember[id]
	return s, ok
}

// End tears down id's session explicitly; the connection stays open and both
// members become available again.
func (m *Matcher) End(ctx context.Context, id domain.UserID) {
	m.teardown(ctx, id, false)
}

// Disconnect handles a closed transport: leave the queue, tear down any
// session, drop presence and throttle state. Idempotent.
func (m *Matcher) Disconnect(ctx context.Context, id domain.UserID) {
	m.teardown(ctx, id, true)
	m.throttle.Forget(id)
}

// teardown releases both members of id's session, if one exists. The session
// is removed under the matching lock, so exactly one caller settles it; the
// ledger's own idempotency backs this up across triggers. A disconnecting id
// leaves presence inside the same critical section, so a concurrent match
// request can never observe it as still available.
func (m *Matcher) teardown(ctx context.Context, id domain.UserID, disconnecting bool) {
	m.mu.Lock()
	m.queue.Remove(id)
	sess, ok := m.byMember[id]
	if !ok {
		if disconnecting {
			m.presence.Unregister(id)
		} else {
			m.presence.SetAvailable(id)
		}
		m.mu.Unlock()
		return
	}
	delete(m.sessions, sess.ID)
	delete(m.byMember, sess.MemberA)
	delete(m.byMember, sess.MemberB)

	partner := sess.MemberA
	if partner == id {
		partner = sess.MemberB
	}
	// The partner learns about the teardown no later than its own state
	// flips back to available.
	m.notifier.PartnerDisconnected(partner)
	m.presence.ClearMatch(sess.MemberA, sess.MemberB)
	if disconnecting {
		m.presence.Unregister(id)
	}
	m.mu.Unlock()

	res, err := m.billing.Settle(ctx, billing.SettleRequest{
		SessionID:     sess.ID,
		Payer:         sess.Payer,
		Earner:        sess.Earner,
		RatePerMinute: sess.RatePerMinute,
		StartedAt:     sess.StartedAt,
		EndedAt:       m.now(),
	})
	if err != nil {
		log.Error().Err(err).Str("module", "app.matcher").Str("session", sess.ID).Msg("settlement failed")
		return
	}

	m.notifier.CallEnded(partner, res.DurationSeconds, res.Cost)
	if !disconnecting {
		m.notifier.CallEnded(id, res.DurationSeconds, res.Cost)
	}
	log.Info().Str("module", "app.matcher").Str("session", sess.ID).
		Int64("duration_s", res.DurationSeconds).Int64("cost", res.Cost).Msg("session ended")
}
