package models

import (
	"time"
)

// Visitor status values
const (
	StatusRegistered = "registered"
	StatusOnline     = "online"
	StatusOffline    = "offline"
)

// VisitorIdentity is one row per distinct client ever seen. Rows are never
// deleted; only last-seen, session count and online state mutate.
type VisitorIdentity struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	ClientKey    string     `gorm:"uniqueIndex;size:64;not null" json:"client_key"`
	FirstSeenAt  time.Time  `json:"first_seen_at"`
	LastSeenAt   time.Time  `json:"last_seen_at"`
	OnlineSince  *time.Time `json:"online_since,omitempty"`
	Status       string     `gorm:"size:16;index;default:registered" json:"status"`
	SessionCount int        `gorm:"default:1" json:"session_count"`
	UserAgent    string     `gorm:"size:256" json:"user_agent,omitempty"`
}

// TableName sets the table name
func (VisitorIdentity) TableName() string {
	return "visitor_identities"
}

// Snapshot is the aggregate view served to dashboards. Degraded marks a
// best-effort result returned after a storage failure.
type Snapshot struct {
	TotalVisitors int64     `json:"total_visitors"`
	TodayVisitors int64     `json:"today_visitors"`
	OnlineNow     int64     `json:"online_now"`
	LastUpdate    time.Time `json:"last_update"`
	Degraded      bool      `json:"degraded,omitempty"`
}

// Aggregates is the single read the snapshot is built from. OnlineKeys
// doubles as the refresh source for the in-memory presence set.
type Aggregates struct {
	TotalVisitors int64
	TodayVisitors int64
	OnlineKeys    []string
}

// RegisterVisitRequest is the register-visit request body. Both fields are
// optional; the HTTP layer falls back to the connection's address and agent.
type RegisterVisitRequest struct {
	ClientKey string `json:"client_key" binding:"omitempty,max=64"`
	UserAgent string `json:"user_agent" binding:"omitempty,max=256"`
}

// MarkRequest addresses mark-online / mark-offline at a specific client key.
type MarkRequest struct {
	ClientKey string `json:"client_key" binding:"omitempty,max=64"`
}
