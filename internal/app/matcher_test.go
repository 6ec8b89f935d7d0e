package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/connecto/internal/billing"
	"github.com/dkeye/connecto/internal/domain"
)

func register(t *testing.T, p *Presence, id domain.UserID, account domain.AccountID) {
	t.Helper()
	_, err := p.Register(id, account, "", nullConn{})
	require.NoError(t, err)
}

func TestFindRandomPairsBothParties(t *testing.T) {
	ctx := context.Background()
	m, presence, notifier, _, _ := newTestMatcher()
	register(t, presence, "a", "")
	register(t, presence, "b", "")

	require.NoError(t, m.FindRandom(ctx, "a"))
	ea, _ := presence.Get("a")
	assert.Equal(t, domain.StatusSearching, ea.Status)
	require.Len(t, notifier.byKind("searching"), 1)

	require.NoError(t, m.FindRandom(ctx, "b"))

	matches := notifier.byKind("match_found")
	require.Len(t, matches, 2)
	bySender := map[domain.UserID]notice{}
	for _, n := range matches {
		bySender[n.to] = n
	}
	assert.Equal(t, domain.UserID("b"), bySender["a"].partner)
	assert.Equal(t, domain.UserID("a"), bySender["b"].partner)
	assert.Equal(t, bySender["a"].session, bySender["b"].session)

	ea, _ = presence.Get("a")
	eb, _ := presence.Get("b")
	assert.Equal(t, domain.StatusMatched, ea.Status)
	assert.Equal(t, domain.StatusMatched, eb.Status)
}

func TestFindRandomWhileMatchedRejected(t *testing.T) {
	ctx := context.Background()
	m, presence, _, _, _ := newTestMatcher()
	register(t, presence, "a", "")
	register(t, presence, "b", "")
	require.NoError(t, m.ConnectTo(ctx, "a", "b"))

	assert.ErrorIs(t, m.FindRandom(ctx, "a"), ErrAlreadyInSession)
}

func TestFindRandomNeverSelfMatches(t *testing.T) {
	ctx := context.Background()
	m, presence, notifier, _, _ := newTestMatcher()
	register(t, presence, "a", "")

	require.NoError(t, m.FindRandom(ctx, "a"))
	// Only searcher in the universe: must wait, not match itself.
	require.NoError(t, m.FindRandom(ctx, "a"))

	assert.Empty(t, notifier.byKind("match_found"))
	e, _ := presence.Get("a")
	assert.Equal(t, domain.StatusSearching, e.Status)
}

func TestConnectToBusyTarget(t *testing.T) {
	ctx := context.Background()
	m, presence, _, _, _ := newTestMatcher()
	register(t, presence, "a", "")
	register(t, presence, "b", "")
	register(t, presence, "c", "")
	require.NoError(t, m.ConnectTo(ctx, "b", "c"))

	err := m.ConnectTo(ctx, "a", "b")
	assert.ErrorIs(t, err, ErrTargetUnavailable)

	ea, _ := presence.Get("a")
	assert.Equal(t, domain.StatusAvailable, ea.Status)
	_, inSession := m.SessionOf("a")
	assert.False(t, inSession)
}

func TestConnectToSelfOrUnknown(t *testing.T) {
	ctx := context.Background()
	m, presence, _, _, _ := newTestMatcher()
	register(t, presence, "a", "")

	assert.ErrorIs(t, m.ConnectTo(ctx, "a", "a"), ErrTargetUnavailable)
	assert.ErrorIs(t, m.ConnectTo(ctx, "a", "ghost"), ErrTargetUnavailable)
}

func TestConnectToMonetizedRequiresMinimumBalance(t *testing.T) {
	ctx := context.Background()
	m, presence, _, ledger, _ := newTestMatcher()
	register(t, presence, "caller", "acct-caller")
	register(t, presence, "listener", "acct-listener")

	require.NoError(t, ledger.SetRate(ctx, "acct-listener", 5))
	_, err := ledger.Recharge(ctx, "acct-caller", 5)
	require.NoError(t, err)

	err = m.ConnectTo(ctx, "caller", "listener")
	var insufficient *InsufficientBalanceError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, int64(10), insufficient.Required)
	assert.Equal(t, int64(5), insufficient.Current)

	// No session was created and the listener is still free.
	el, _ := presence.Get("listener")
	assert.Equal(t, domain.StatusAvailable, el.Status)
}

func TestConnectToTargetVanishesDuringBalanceCheck(t *testing.T) {
	ctx := context.Background()
	store := billing.NewMemoryStore()
	ledger := billing.NewLedger(store, nil, 0.80, 2)
	presence := NewPresence()
	notifier := &recordingNotifier{}
	hooked := &hookBilling{Billing: ledger}
	m := NewMatcher(presence, NewQueue(), NewThrottle(500*time.Millisecond), hooked, notifier)

	register(t, presence, "caller", "payer")
	register(t, presence, "listener", "earner")
	require.NoError(t, ledger.SetRate(ctx, "earner", 10))
	_, err := ledger.Recharge(ctx, "payer", 100)
	require.NoError(t, err)

	// The listener's transport drops while the balance check is in flight.
	hooked.onBalance = func() { m.Disconnect(ctx, "listener") }

	err = m.ConnectTo(ctx, "caller", "listener")
	assert.ErrorIs(t, err, ErrTargetUnavailable)

	_, inSession := m.SessionOf("caller")
	assert.False(t, inSession)
	ec, _ := presence.Get("caller")
	assert.Equal(t, domain.StatusAvailable, ec.Status)
	assert.Empty(t, notifier.byKind("match_found"))

	// No wallet movement for a session that never existed.
	balance, err := ledger.Balance(ctx, "payer")
	require.NoError(t, err)
	assert.Equal(t, int64(100), balance)
}

func TestCancelSearch(t *testing.T) {
	ctx := context.Background()
	m, presence, notifier, _, _ := newTestMatcher()
	register(t, presence, "a", "")

	require.NoError(t, m.FindRandom(ctx, "a"))
	m.CancelSearch("a")

	require.Len(t, notifier.byKind("search_cancelled"), 1)
	e, _ := presence.Get("a")
	assert.Equal(t, domain.StatusAvailable, e.Status)

	// The queue entry is gone: a later searcher waits instead of matching.
	register(t, presence, "b", "")
	require.NoError(t, m.FindRandom(ctx, "b"))
	assert.Empty(t, notifier.byKind("match_found"))
}

func TestDisconnectWhileMatched(t *testing.T) {
	ctx := context.Background()
	m, presence, notifier, _, store := newTestMatcher()
	register(t, presence, "a", "")
	register(t, presence, "b", "")
	require.NoError(t, m.ConnectTo(ctx, "a", "b"))

	m.Disconnect(ctx, "a")

	require.Len(t, notifier.byKind("partner_disconnected"), 1)
	assert.Equal(t, domain.UserID("b"), notifier.byKind("partner_disconnected")[0].to)

	eb, ok := presence.Get("b")
	require.True(t, ok)
	assert.Equal(t, domain.StatusAvailable, eb.Status)
	assert.Empty(t, eb.Partner)

	_, gone := presence.Get("a")
	assert.False(t, gone)

	// Settlement ran exactly once; a second teardown is a no-op.
	calls, err := store.Calls(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, calls, 1)

	m.End(ctx, "b")
	calls, err = store.Calls(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, calls, 1)
	require.Len(t, notifier.byKind("partner_disconnected"), 1)
}

func TestMonetizedCallSettlesOnEnd(t *testing.T) {
	ctx := context.Background()
	m, presence, notifier, ledger, store := newTestMatcher()
	register(t, presence, "caller", "payer")
	register(t, presence, "listener", "earner")

	require.NoError(t, ledger.SetRate(ctx, "earner", 10))
	_, err := ledger.Recharge(ctx, "payer", 100)
	require.NoError(t, err)

	t0 := time.Unix(1700000000, 0)
	m.now = func() time.Time { return t0 }
	require.NoError(t, m.ConnectTo(ctx, "caller", "listener"))

	m.now = func() time.Time { return t0.Add(125 * time.Second) }
	m.End(ctx, "caller")

	// 125s -> 3 billable minutes at 10/min.
	ended := notifier.byKind("call_ended")
	require.Len(t, ended, 2)
	for _, n := range ended {
		assert.Equal(t, int64(125), n.dur)
		assert.Equal(t, int64(30), n.cost)
	}

	balance, err := ledger.Balance(ctx, "payer")
	require.NoError(t, err)
	assert.Equal(t, int64(70), balance)

	txs, err := store.Transactions(ctx, "payer", 0)
	require.NoError(t, err)
	require.Len(t, txs, 2) // recharge + one debit
	assert.Equal(t, domain.TxDebit, txs[0].Type)
	assert.Equal(t, int64(-30), txs[0].Amount)

	// Both parties are available again.
	ec, _ := presence.Get("caller")
	el, _ := presence.Get("listener")
	assert.Equal(t, domain.StatusAvailable, ec.Status)
	assert.Equal(t, domain.StatusAvailable, el.Status)
}
