// Package domain contains entity without logic, just meta-data
package domain

// UserID is the ephemeral handle of one connected participant. It lives
// exactly as long as the transport connection and is regenerated on reconnect.
type UserID string

// AccountID is the persistent wallet account backing a participant.
// Anonymous participants have an empty AccountID and no wallet.
type AccountID string

// Status of a connected participant.
type Status string

const (
	StatusAvailable Status = "available"
	StatusSearching Status = "searching"
	StatusMatched   Status = "matched"
)

// UserInfo is a read-only view for broadcasts and APIs (no transport fields).
type UserInfo struct {
	ID     UserID `json:"userId"`
	Name   string `json:"name,omitempty"`
	Status Status `json:"status"`
}
