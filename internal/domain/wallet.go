package domain

import "time"

// Wallet holds a mutable coin balance. Every change to Balance is paired with
// exactly one appended Transaction whose before/after values match the change.
type Wallet struct {
	AccountID AccountID `gorm:"primaryKey" json:"accountId"`
	Balance   int64     `json:"balance"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type TransactionType string

const (
	TxDebit    TransactionType = "debit"
	TxCredit   TransactionType = "credit"
	TxBonus    TransactionType = "bonus"
	TxRecharge TransactionType = "recharge"
)

// Transaction is an immutable ledger entry. Append-only, never updated.
type Transaction struct {
	ID            string          `gorm:"primaryKey" json:"id"`
	AccountID     AccountID       `gorm:"index" json:"accountId"`
	Type          TransactionType `json:"type"`
	Amount        int64           `json:"amount"` // signed
	BalanceBefore int64           `json:"balanceBefore"`
	BalanceAfter  int64           `json:"balanceAfter"`
	ReferenceType string          `json:"referenceType"`
	ReferenceID   string          `json:"referenceId"`
	Description   string          `json:"description"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// Profile is the earning side of an account: a listener with a per-minute
// rate plus cumulative totals used for payouts and milestone badges.
type Profile struct {
	AccountID     AccountID `gorm:"primaryKey" json:"accountId"`
	RatePerMinute int64     `json:"ratePerMinute"`
	TotalCalls    int64     `json:"totalCalls"`
	TotalMinutes  int64     `json:"totalMinutes"`
	TotalEarnings int64     `json:"totalEarnings"`
	PendingPayout int64     `json:"pendingPayout"`
	Badges        []string  `gorm:"serializer:json" json:"badges"`
	Tier          string    `json:"tier"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

func (p *Profile) HasBadge(name string) bool {
	for _, b := range p.Badges {
		if b == name {
			return true
		}
	}
	return false
}
