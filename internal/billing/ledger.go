package billing

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/sethvargo/go-retry"

	"github.com/dkeye/connecto/internal/domain"
)

// Milestone is a one-time badge bonus crossed on cumulative minutes.
type Milestone struct {
	Minutes int64
	Badge   string
	Bonus   int64
}

// DefaultMilestones mirrors the Silver/Gold/Platinum ladder.
var DefaultMilestones = []Milestone{
	{Minutes: 1000, Badge: "Silver", Bonus: 500},
	{Minutes: 5000, Badge: "Gold", Bonus: 2000},
	{Minutes: 20000, Badge: "Platinum", Bonus: 5000},
}

// SettleRequest identifies the session to bill. An empty Payer means a free
// peer-to-peer session; an empty Earner means all revenue is platform fee.
type SettleRequest struct {
	SessionID     string
	Payer         domain.AccountID
	Earner        domain.AccountID
	RatePerMinute int64
	StartedAt     time.Time
	EndedAt       time.Time
}

// Settlement is the billing outcome of one session. Settling the same
// session again returns the identical value.
type Settlement struct {
	SessionID         string `json:"sessionId"`
	DurationSeconds   int64  `json:"durationSeconds"`
	BillableMinutes   int64  `json:"billableMinutes"`
	Cost              int64  `json:"cost"`
	EarnerShare       int64  `json:"earnerShare"`
	PlatformFee       int64  `json:"platformFee"`
	InsufficientFunds bool   `json:"insufficientFunds"`
	BonusAwarded      int64  `json:"bonusAwarded,omitempty"`
	Badge             string `json:"badge,omitempty"`
}

type settleState struct {
	mu   sync.Mutex
	done bool
	res  *Settlement
}

// Ledger applies session settlements to wallets. Per-account locks serialize
// balance movements so a settlement never races a concurrent recharge on the
// same account; unrelated accounts proceed in parallel.
type Ledger struct {
	store      Store
	events     Events
	earnShare  float64
	minMinutes int64
	milestones []Milestone
	now        func() time.Time

	mu       sync.Mutex
	settled  map[string]*settleState
	accounts map[domain.AccountID]*sync.Mutex
}

func NewLedger(store Store, events Events, earnShare float64, minMinutes int64) *Ledger {
	return &Ledger{
		store:      store,
		events:     events,
		earnShare:  earnShare,
		minMinutes: minMinutes,
		milestones: DefaultMilestones,
		now:        time.Now,
		settled:    make(map[string]*settleState),
		accounts:   make(map[domain.AccountID]*sync.Mutex),
	}
}

// MinimumBalance is the pre-session threshold a payer must hold before a
// monetized session is created at all.
func (l *Ledger) MinimumBalance(ratePerMinute int64) int64 {
	return ratePerMinute * l.minMinutes
}

// Balance returns the current balance of account.
func (l *Ledger) Balance(ctx context.Context, account domain.AccountID) (int64, error) {
	w, err := l.store.Wallet(ctx, account)
	if err != nil {
		return 0, err
	}
	return w.Balance, nil
}

// RateFor returns the per-minute rate of account's earning profile, or 0
// when the account is not an earner.
func (l *Ledger) RateFor(ctx context.Context, account domain.AccountID) (int64, error) {
	if account == "" {
		return 0, nil
	}
	p, err := l.store.Profile(ctx, account)
	if err != nil {
		return 0, err
	}
	if p == nil {
		return 0, nil
	}
	return p.RatePerMinute, nil
}

// SetRate registers (or updates) account as an earner at the given
// per-minute rate. Rate 0 turns earning off.
func (l *Ledger) SetRate(ctx context.Context, account domain.AccountID, ratePerMinute int64) error {
	if ratePerMinute < 0 {
		return fmt.Errorf("rate must not be negative, got %d", ratePerMinute)
	}
	p, err := l.store.Profile(ctx, account)
	if err != nil {
		return err
	}
	if p == nil {
		p = &domain.Profile{AccountID: account}
	}
	p.RatePerMinute = ratePerMinute
	p.UpdatedAt = l.now()
	return l.store.SaveProfile(ctx, p)
}

func (l *Ledger) Transactions(ctx context.Context, account domain.AccountID, limit int) ([]domain.Transaction, error) {
	return l.store.Transactions(ctx, account, limit)
}

func (l *Ledger) Calls(ctx context.Context, account domain.AccountID, limit int) ([]domain.Call, error) {
	return l.store.Calls(ctx, account, limit)
}

// Recharge credits account and appends the matching ledger record.
func (l *Ledger) Recharge(ctx context.Context, account domain.AccountID, amount int64) (*domain.Transaction, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("recharge amount must be positive, got %d", amount)
	}
	unlock := l.lockAccounts(account)
	defer unlock()

	w, err := l.store.Wallet(ctx, account)
	if err != nil {
		return nil, err
	}
	tx := &domain.Transaction{
		ID:            uuid.NewString(),
		AccountID:     account,
		Type:          domain.TxRecharge,
		Amount:        amount,
		BalanceBefore: w.Balance,
		BalanceAfter:  w.Balance + amount,
		ReferenceType: "recharge",
		Description:   fmt.Sprintf("Wallet recharge: %d coins", amount),
		CreatedAt:     l.now(),
	}
	if err := l.store.AppendTransaction(ctx, tx); err != nil {
		return nil, fmt.Errorf("append recharge transaction: %w", err)
	}
	return tx, nil
}

// Settle bills one session. Idempotent: a second call for the same session
// returns the prior result without touching any wallet.
func (l *Ledger) Settle(ctx context.Context, req SettleRequest) (*Settlement, error) {
	st := l.state(req.SessionID)
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.done {
		log.Debug().Str("module", "billing").Str("session", req.SessionID).Msg("settlement already applied")
		return st.res, nil
	}

	res, err := l.settle(ctx, req)
	if err != nil {
		return nil, err
	}
	st.done = true
	st.res = res
	return res, nil
}

func (l *Ledger) state(sessionID string) *settleState {
	l.mu.Lock()
	defer l.mu.Unlock()
	st, ok := l.settled[sessionID]
	if !ok {
		st = &settleState{}
		l.settled[sessionID] = st
	}
	return st
}

func (l *Ledger) settle(ctx context.Context, req SettleRequest) (*Settlement, error) {
	endedAt := req.EndedAt
	if endedAt.IsZero() {
		endedAt = l.now()
	}
	durationSeconds := int64(endedAt.Sub(req.StartedAt) / time.Second)
	if durationSeconds < 0 {
		durationSeconds = 0
	}
	billableMinutes := (durationSeconds + 59) / 60

	res := &Settlement{
		SessionID:       req.SessionID,
		DurationSeconds: durationSeconds,
		BillableMinutes: billableMinutes,
	}

	call := &domain.Call{
		ID:              req.SessionID,
		CallerAccount:   req.Payer,
		EarnerAccount:   req.Earner,
		RatePerMinute:   req.RatePerMinute,
		StartedAt:       req.StartedAt,
		EndedAt:         endedAt,
		DurationSeconds: durationSeconds,
		BillableMinutes: billableMinutes,
		Status:          domain.CallEnded,
		CreatedAt:       l.now(),
	}

	// Free peer-to-peer session: record the call, move no money.
	if req.RatePerMinute == 0 || req.Payer == "" {
		if err := l.persist(ctx, &LedgerEntry{Call: call}); err != nil {
			return nil, err
		}
		l.publish(ctx, "call.settled", res)
		return res, nil
	}

	unlock := l.lockAccounts(req.Payer, req.Earner)
	defer unlock()

	payer, err := l.store.Wallet(ctx, req.Payer)
	if err != nil {
		return nil, fmt.Errorf("load payer wallet: %w", err)
	}

	cost := billableMinutes * req.RatePerMinute
	if cost > payer.Balance {
		// The session still ends; the charge is capped at what is there.
		res.InsufficientFunds = true
		cost = payer.Balance
	}
	res.Cost = cost

	entry := &LedgerEntry{Call: call}
	entry.PayerBalance = payer.Balance - cost
	entry.Debit = &domain.Transaction{
		ID:            uuid.NewString(),
		AccountID:     req.Payer,
		Type:          domain.TxDebit,
		Amount:        -cost,
		BalanceBefore: payer.Balance,
		BalanceAfter:  entry.PayerBalance,
		ReferenceType: "call_session",
		ReferenceID:   req.SessionID,
		Description:   fmt.Sprintf("Call charge: %d min @ %d coins/min", billableMinutes, req.RatePerMinute),
		CreatedAt:     l.now(),
	}

	if req.Earner != "" {
		if err := l.creditEarner(ctx, req, entry, res, cost, billableMinutes); err != nil {
			return nil, err
		}
	} else {
		res.PlatformFee = cost
	}

	call.Cost = res.Cost
	call.EarnerShare = res.EarnerShare
	call.PlatformFee = res.PlatformFee

	if err := l.persist(ctx, entry); err != nil {
		return nil, err
	}

	l.publish(ctx, "call.settled", res)
	if res.BonusAwarded > 0 {
		l.publish(ctx, "wallet.bonus", map[string]any{
			"accountId": req.Earner,
			"badge":     res.Badge,
			"bonus":     res.BonusAwarded,
		})
	}
	return res, nil
}

func (l *Ledger) creditEarner(ctx context.Context, req SettleRequest, entry *LedgerEntry, res *Settlement, cost, billableMinutes int64) error {
	share := int64(float64(cost) * l.earnShare)
	res.EarnerShare = share
	res.PlatformFee = cost - share

	earner, err := l.store.Wallet(ctx, req.Earner)
	if err != nil {
		return fmt.Errorf("load earner wallet: %w", err)
	}
	profile, err := l.store.Profile(ctx, req.Earner)
	if err != nil {
		return fmt.Errorf("load earner profile: %w", err)
	}
	if profile == nil {
		profile = &domain.Profile{AccountID: req.Earner, RatePerMinute: req.RatePerMinute}
	}

	entry.EarnerBalance = earner.Balance + share
	entry.Credit = &domain.Transaction{
		ID:            uuid.NewString(),
		AccountID:     req.Earner,
		Type:          domain.TxCredit,
		Amount:        share,
		BalanceBefore: earner.Balance,
		BalanceAfter:  entry.EarnerBalance,
		ReferenceType: "call_session",
		ReferenceID:   req.SessionID,
		Description:   fmt.Sprintf("Call earning: %d min", billableMinutes),
		CreatedAt:     l.now(),
	}

	profile.TotalCalls++
	profile.TotalMinutes += billableMinutes
	profile.TotalEarnings += share
	profile.PendingPayout += share
	profile.UpdatedAt = l.now()

	// At most one badge per settlement, matching award order.
	for _, m := range l.milestones {
		if profile.TotalMinutes >= m.Minutes && !profile.HasBadge(m.Badge) {
			profile.Badges = append(profile.Badges, m.Badge)
			profile.Tier = m.Badge
			profile.TotalEarnings += m.Bonus
			profile.PendingPayout += m.Bonus

			entry.Bonus = &domain.Transaction{
				ID:            uuid.NewString(),
				AccountID:     req.Earner,
				Type:          domain.TxBonus,
				Amount:        m.Bonus,
				BalanceBefore: entry.EarnerBalance,
				BalanceAfter:  entry.EarnerBalance + m.Bonus,
				ReferenceType: "badge_bonus",
				ReferenceID:   req.SessionID,
				Description:   fmt.Sprintf("Unlocked %s Badge Bonus", m.Badge),
				CreatedAt:     l.now(),
			}
			entry.EarnerBalance += m.Bonus
			res.BonusAwarded = m.Bonus
			res.Badge = m.Badge
			break
		}
	}

	entry.Profile = profile
	return nil
}

// persist writes the settlement set, retrying transient store failures.
// The store applies the whole entry in one transaction, so a retry never
// observes a half-applied settlement.
func (l *Ledger) persist(ctx context.Context, entry *LedgerEntry) error {
	backoff := retry.WithMaxRetries(3, retry.NewFibonacci(100*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := l.store.ApplySettlement(ctx, entry); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		log.Error().Err(err).Str("module", "billing").Str("call", entry.Call.ID).Msg("settlement persist failed")
		return fmt.Errorf("apply settlement: %w", err)
	}
	return nil
}

func (l *Ledger) publish(ctx context.Context, key string, payload any) {
	if l.events == nil {
		return
	}
	if err := l.events.Publish(ctx, key, payload); err != nil {
		log.Warn().Err(err).Str("module", "billing").Str("key", key).Msg("event publish failed")
	}
}

// lockAccounts acquires the guards of every non-empty account in
// lexicographic order, so two settlements touching the same pair can never
// deadlock. The returned func releases them in reverse order.
func (l *Ledger) lockAccounts(accounts ...domain.AccountID) func() {
	ids := make([]domain.AccountID, 0, len(accounts))
	for _, a := range accounts {
		if a != "" {
			ids = append(ids, a)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	ids = dedupe(ids)

	locks := make([]*sync.Mutex, 0, len(ids))
	for _, a := range ids {
		locks = append(locks, l.accountMu(a))
	}
	for _, mu := range locks {
		mu.Lock()
	}
	return func() {
		for i := len(locks) - 1; i >= 0; i-- {
			locks[i].Unlock()
		}
	}
}

func dedupe(ids []domain.AccountID) []domain.AccountID {
	out := ids[:0]
	for i, a := range ids {
		if i == 0 || a != ids[i-1] {
			out = append(out, a)
		}
	}
	return out
}

func (l *Ledger) accountMu(a domain.AccountID) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	mu, ok := l.accounts[a]
	if !ok {
		mu = &sync.Mutex{}
		l.accounts[a] = mu
	}
	return mu
}
