package models

import (
	"time"
)

// Migration outcomes
const (
	OutcomeFresh    = "fresh"    // no tables existed; clean schema created
	OutcomeCurrent  = "current"  // schema already current; nothing to do
	OutcomeMigrated = "migrated" // legacy rows transformed into identities
	OutcomeReset    = "reset"    // transform failed; clean empty schema recreated
)

// LegacyTableName is the pre-identity, per-session visitor table.
const LegacyTableName = "visitor_sessions"

// MigrationResult summarizes one startup migration run.
type MigrationResult struct {
	ID         string    `json:"id"`
	Outcome    string    `json:"outcome"`
	LegacyRows int       `json:"legacy_rows"`
	Identities int       `json:"identities"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Error      string    `json:"error,omitempty"`
}

// LegacyVisitorSession mirrors the legacy schema: one row per browser
// session, keyed by an ephemeral session id rather than a stable client
// key.
type LegacyVisitorSession struct {
	ID        uint      `gorm:"primaryKey"`
	SessionID string    `gorm:"column:session_id"`
	IPAddress string    `gorm:"column:ip_address"`
	UserAgent string    `gorm:"column:user_agent"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

// TableName sets the table name
func (LegacyVisitorSession) TableName() string {
	return LegacyTableName
}
