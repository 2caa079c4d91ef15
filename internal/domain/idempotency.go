package domain

import "time"

// Idempotency records that a mutating request was already executed, keyed by
// (owner, session_id, key). Replays within the TTL return the current state
// of the session instead of re-running the operation.
type Idempotency struct {
	ID        string    `gorm:"type:varchar(36);primaryKey"`
	Owner     string    `gorm:"type:varchar(320);not null;uniqueIndex:ux_owner_session_key,priority:1"`
	SessionID string    `gorm:"type:varchar(320);not null;uniqueIndex:ux_owner_session_key,priority:2"`
	Key       string    `gorm:"type:varchar(320);not null;uniqueIndex:ux_owner_session_key,priority:3"`
	Operation string    `gorm:"type:varchar(32);not null"`
	Status    int       `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime"`
	ExpiresAt time.Time `gorm:"not null;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }
