package models

import (
	"time"
)

// SessionToken is one row per live browser/tab session, keyed by an opaque
// random token. Rows age out of the active count lazily; they are deleted
// only on explicit end-of-session or by the periodic cleanup.
type SessionToken struct {
	Token      string    `gorm:"primaryKey;size:64" json:"token"`
	OwnerID    *string   `gorm:"index;size:64" json:"owner_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	LastPingAt time.Time `gorm:"index" json:"last_ping_at"`
}

// TableName sets the table name
func (SessionToken) TableName() string {
	return "session_tokens"
}

// ActiveCount is the live session counter served to dashboards.
type ActiveCount struct {
	TotalUsers    int64     `json:"total_users"`
	TotalSessions int64     `json:"total_sessions"`
	UpdatedAt     time.Time `json:"updated_at"`
	Degraded      bool      `json:"degraded,omitempty"`
}

// IssueRequest asks for a session token. A caller holding a token sends it
// back to be reused instead of minting a new one.
type IssueRequest struct {
	Token   string `json:"token" binding:"omitempty,max=64"`
	OwnerID string `json:"owner_id" binding:"omitempty,max=64"`
}

// PingRequest is a keep-alive for an issued token.
type PingRequest struct {
	Token   string `json:"token" binding:"required,max=64"`
	OwnerID string `json:"owner_id" binding:"omitempty,max=64"`
}

// IssueResponse returns the token the caller should ping with.
type IssueResponse struct {
	Token string `json:"token"`
}

// PingResponse reports whether the token is still known; a false answer
// tells the caller to re-issue (e.g. after a server restart).
type PingResponse struct {
	Active bool `json:"active"`
}
