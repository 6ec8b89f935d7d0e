// Package billing converts elapsed call time into wallet movements backed by
// an append-only transaction ledger.
package billing

import (
	"context"

	"github.com/dkeye/connecto/internal/domain"
)

// LedgerEntry is the complete write set of one settlement. A store must
// apply it atomically: either every record lands or none does. A debit
// without its matching credit is never an acceptable persisted state.
type LedgerEntry struct {
	Call   *domain.Call
	Debit  *domain.Transaction
	Credit *domain.Transaction
	Bonus  *domain.Transaction

	PayerBalance  int64
	EarnerBalance int64
	Profile       *domain.Profile
}

// Store is the persistence the ledger depends on. It needs atomic
// read-modify-write on a single account row and an append-only transaction
// log; everything else is the ledger's business.
type Store interface {
	// Wallet returns the wallet for account, creating a zero-balance one
	// when it does not exist yet.
	Wallet(ctx context.Context, account domain.AccountID) (*domain.Wallet, error)

	// Profile returns the earning profile for account, or nil when the
	// account is not an earner.
	Profile(ctx context.Context, account domain.AccountID) (*domain.Profile, error)
	SaveProfile(ctx context.Context, p *domain.Profile) error

	// ApplySettlement persists one settlement write set atomically.
	ApplySettlement(ctx context.Context, e *LedgerEntry) error

	// AppendTransaction appends tx and moves the wallet balance to
	// tx.BalanceAfter in the same atomic step.
	AppendTransaction(ctx context.Context, tx *domain.Transaction) error

	Transactions(ctx context.Context, account domain.AccountID, limit int) ([]domain.Transaction, error)
	Calls(ctx context.Context, account domain.AccountID, limit int) ([]domain.Call, error)
}

// Events is the external notification sink for settlement outcomes.
type Events interface {
	Publish(ctx context.Context, key string, payload any) error
}
