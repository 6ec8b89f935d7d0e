package domain

import "time"

type CallStatus string

const (
	CallActive CallStatus = "active"
	CallEnded  CallStatus = "ended"
)

// Call is the persisted record of one paired session. Live pairing state is
// held by the matcher; this row is written when the call settles.
type Call struct {
	ID              string     `gorm:"primaryKey" json:"id"`
	CallerAccount   AccountID  `gorm:"index" json:"callerAccount"`
	EarnerAccount   AccountID  `gorm:"index" json:"earnerAccount,omitempty"`
	RatePerMinute   int64      `json:"ratePerMinute"`
	StartedAt       time.Time  `json:"startedAt"`
	EndedAt         time.Time  `json:"endedAt"`
	DurationSeconds int64      `json:"durationSeconds"`
	BillableMinutes int64      `json:"billableMinutes"`
	Cost            int64      `json:"cost"`
	EarnerShare     int64      `json:"earnerShare"`
	PlatformFee     int64      `json:"platformFee"`
	Status          CallStatus `json:"status"`
	CreatedAt       time.Time  `json:"createdAt"`
}
