package billing

import (
	"context"
	"sync"
	"time"

	"github.com/dkeye/connecto/internal/domain"
)

// MemoryStore keeps wallets, profiles, calls and the transaction log in
// process memory. It is the store used in tests and when no database is
// configured; state does not survive a restart.
type MemoryStore struct {
	mu       sync.Mutex
	wallets  map[domain.AccountID]*domain.Wallet
	profiles map[domain.AccountID]*domain.Profile
	txs      []domain.Transaction
	calls    []domain.Call
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		wallets:  make(map[domain.AccountID]*domain.Wallet),
		profiles: make(map[domain.AccountID]*domain.Profile),
	}
}

func (s *MemoryStore) Wallet(_ context.Context, account domain.AccountID) (*domain.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w := s.wallet(account)
	cp := *w
	return &cp, nil
}

// wallet must be called with s.mu held.
func (s *MemoryStore) wallet(account domain.AccountID) *domain.Wallet {
	w, ok := s.wallets[account]
	if !ok {
		now := time.Now()
		w = &domain.Wallet{AccountID: account, CreatedAt: now, UpdatedAt: now}
		s.wallets[account] = w
	}
	return w
}

func (s *MemoryStore) Profile(_ context.Context, account domain.AccountID) (*domain.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[account]
	if !ok {
		return nil, nil
	}
	cp := *p
	cp.Badges = append([]string(nil), p.Badges...)
	return &cp, nil
}

func (s *MemoryStore) SaveProfile(_ context.Context, p *domain.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	cp.Badges = append([]string(nil), p.Badges...)
	s.profiles[p.AccountID] = &cp
	return nil
}

func (s *MemoryStore) ApplySettlement(_ context.Context, e *LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.Call != nil {
		s.calls = append(s.calls, *e.Call)
	}
	if e.Debit != nil {
		s.txs = append(s.txs, *e.Debit)
		w := s.wallet(e.Debit.AccountID)
		w.Balance = e.PayerBalance
		w.UpdatedAt = time.Now()
	}
	if e.Credit != nil {
		s.txs = append(s.txs, *e.Credit)
	}
	if e.Bonus != nil {
		s.txs = append(s.txs, *e.Bonus)
	}
	if e.Credit != nil || e.Bonus != nil {
		var earner domain.AccountID
		if e.Credit != nil {
			earner = e.Credit.AccountID
		} else {
			earner = e.Bonus.AccountID
		}
		w := s.wallet(earner)
		w.Balance = e.EarnerBalance
		w.UpdatedAt = time.Now()
	}
	if e.Profile != nil {
		cp := *e.Profile
		cp.Badges = append([]string(nil), e.Profile.Badges...)
		s.profiles[cp.AccountID] = &cp
	}
	return nil
}

func (s *MemoryStore) AppendTransaction(_ context.Context, tx *domain.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txs = append(s.txs, *tx)
	w := s.wallet(tx.AccountID)
	w.Balance = tx.BalanceAfter
	w.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) Transactions(_ context.Context, account domain.AccountID, limit int) ([]domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Transaction, 0, limit)
	// Newest first.
	for i := len(s.txs) - 1; i >= 0; i-- {
		if s.txs[i].AccountID != account {
			continue
		}
		out = append(out, s.txs[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) Calls(_ context.Context, account domain.AccountID, limit int) ([]domain.Call, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Call, 0, limit)
	for i := len(s.calls) - 1; i >= 0; i-- {
		c := s.calls[i]
		if c.CallerAccount != account && c.EarnerAccount != account {
			continue
		}
		out = append(out, c)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}
