// Package domain defines the persistence models for sessions, reports,
// images, credit accounts and their audit log. These types are mapped with
// GORM and form the core data layer of the report engine.
package domain

import (
	"time"

	"gorm.io/datatypes"
)

// SessionStatus is the coarse, UI-facing progress of a Session.
type SessionStatus string

const (
	SessionCreated   SessionStatus = "created"
	SessionAnalyzing SessionStatus = "analyzing"
	SessionAnalyzed  SessionStatus = "analyzed"
)

// ReportStatus is the lifecycle position of a Report.
type ReportStatus string

const (
	ReportDraft      ReportStatus = "draft"
	ReportProcessing ReportStatus = "processing"
	ReportProtected  ReportStatus = "protected"
	ReportCompleted  ReportStatus = "completed"
)

// ImageType discriminates the artifacts attached to a session.
type ImageType string

const (
	ImageUserUpload   ImageType = "user_upload"
	ImageBestDraping  ImageType = "best_draping"
	ImageWorstDraping ImageType = "worst_draping"
)

// CreditType classifies a ledger entry.
type CreditType string

const (
	CreditBonus    CreditType = "bonus"
	CreditUsage    CreditType = "usage"
	CreditPurchase CreditType = "purchase"
)

// OutfitStatus tracks a single style-validator request.
type OutfitStatus string

const (
	OutfitProcessing OutfitStatus = "processing"
	OutfitCompleted  OutfitStatus = "completed"
	OutfitFailed     OutfitStatus = "failed"
)

// Session is an anonymous upload/analysis context. OwnerEmail is written at
// most once (first claim wins) and is never overwritten afterwards.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - OwnerEmail: normalized owner identity; nil until claimed.
//   - ClientIP: optional address of the creating client.
//   - Status: created|analyzing|analyzed, synced from the report lifecycle.
type Session struct {
	ID         string        `json:"id"                    gorm:"type:char(36);primaryKey"`
	OwnerEmail *string       `json:"owner_email,omitempty" gorm:"type:varchar(320);index:idx_session_owner"`
	ClientIP   *string       `json:"client_ip,omitempty"   gorm:"type:varchar(64)"`
	Status     SessionStatus `json:"status"                gorm:"type:varchar(16);not null;default:'created'"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

// TableName returns the database table name for Session.
func (Session) TableName() string { return "sessions" }

// Report is the analysis result bound 1:1 to a Session. Payload is non-null
// exactly when Status is protected or completed.
//
// PaidAt records that the session has been paid for (an unlock debit was
// committed). AnalyzedAt is the time the current payload was persisted and
// drives the recovery reminder sweep. ProcessingAt marks when the row last
// entered processing so crashed analyses can be reverted.
type Report struct {
	SessionID      string         `json:"session_id"                 gorm:"type:char(36);primaryKey"`
	Status         ReportStatus   `json:"status"                     gorm:"type:varchar(16);not null;default:'draft';index:idx_report_status;check:status IN ('draft','processing','protected','completed')"`
	Season         *string        `json:"season,omitempty"           gorm:"type:varchar(64)"`
	Payload        datatypes.JSON `json:"payload,omitempty"`
	InputImageURL  string         `json:"input_image_url"            gorm:"type:text;not null"`
	ImageHash      *string        `json:"image_hash,omitempty"       gorm:"type:varchar(128);index:idx_report_hash"`
	Rating         *int           `json:"rating,omitempty"           gorm:"check:rating IS NULL OR (rating BETWEEN 1 AND 5)"`
	Feedback       *string        `json:"feedback,omitempty"         gorm:"type:text"`
	RecoverySentAt *time.Time     `json:"recovery_sent_at,omitempty"`
	IsFeatured     bool           `json:"is_featured"                gorm:"not null;default:false"`
	PaidAt         *time.Time     `json:"paid_at,omitempty"`
	AnalyzedAt     *time.Time     `json:"analyzed_at,omitempty"`
	ProcessingAt   *time.Time     `json:"-"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`

	// Session is the parent; the report is removed with it.
	Session Session `json:"-" gorm:"foreignKey:SessionID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Report.
func (Report) TableName() string { return "reports" }

// Image is an artifact attached to a session, keyed by (session, type).
// Rows are immutable once created; a second insert for the same key is a
// no-op.
type Image struct {
	SessionID string    `json:"session_id" gorm:"type:char(36);primaryKey"`
	Type      ImageType `json:"type"       gorm:"type:varchar(16);primaryKey;check:type IN ('user_upload','best_draping','worst_draping')"`
	URL       string    `json:"url"        gorm:"type:text;not null"`
	ObjectKey string    `json:"-"          gorm:"type:text;not null;default:''"`
	CreatedAt time.Time `json:"created_at"`

	Session Session `json:"-" gorm:"foreignKey:SessionID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Image.
func (Image) TableName() string { return "images" }

// CreditAccount holds the integer balance of one user. The user identity is
// the normalized owner e-mail.
type CreditAccount struct {
	UserID    string    `json:"user_id"   gorm:"type:varchar(320);primaryKey"`
	Balance   int64     `json:"balance"   gorm:"not null;default:0;check:balance >= 0"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for CreditAccount.
func (CreditAccount) TableName() string { return "credit_accounts" }

// CreditLogEntry is an append-only audit row written in the same transaction
// as every balance change. ExternalID carries the payment event id and is
// unique, which makes purchase crediting at-most-once.
type CreditLogEntry struct {
	ID          uint64     `json:"id"                    gorm:"primaryKey;autoIncrement"`
	UserID      string     `json:"user_id"               gorm:"type:varchar(320);not null;index:idx_credit_log_user,priority:1"`
	Amount      int64      `json:"amount"                gorm:"not null"`
	Type        CreditType `json:"type"                  gorm:"type:varchar(16);not null;check:type IN ('bonus','usage','purchase')"`
	Description string     `json:"description"           gorm:"type:text;not null;default:''"`
	ExternalID  *string    `json:"external_id,omitempty" gorm:"type:varchar(255);uniqueIndex:ux_credit_log_external"`
	SessionID   *string    `json:"session_id,omitempty"  gorm:"type:char(36);index"`
	CreatedAt   time.Time  `json:"created_at"            gorm:"index:idx_credit_log_user,priority:2"`
}

// TableName returns the database table name for CreditLogEntry.
func (CreditLogEntry) TableName() string { return "credit_log" }

// ValidatorQuota is the separate bounded pool consumed by the style
// validator. It is lazily seeded with the free allowance.
type ValidatorQuota struct {
	UserID    string    `json:"user_id"         gorm:"type:varchar(320);primaryKey"`
	Times     int64     `json:"validator_times" gorm:"column:validator_times;not null;default:0;check:validator_times >= 0"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for ValidatorQuota.
func (ValidatorQuota) TableName() string { return "validator_quotas" }

// Outfit is one style-validator request and its verdict.
type Outfit struct {
	ID         uint64         `json:"id"                   gorm:"primaryKey;autoIncrement"`
	SessionID  *string        `json:"session_id,omitempty" gorm:"type:char(36);index"`
	OwnerEmail string         `json:"owner_email"          gorm:"type:varchar(320);not null;index"`
	ImageURL   string         `json:"image_url"            gorm:"type:text;not null"`
	Status     OutfitStatus   `json:"status"               gorm:"type:varchar(16);not null;default:'processing'"`
	Verdict    datatypes.JSON `json:"verdict,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// TableName returns the database table name for Outfit.
func (Outfit) TableName() string { return "outfits" }

// UnresolvedPayment records a verified payment event that could not be
// mapped to a user or a credit pack. These rows are an operational alert.
type UnresolvedPayment struct {
	ID          uint64    `json:"id"           gorm:"primaryKey;autoIncrement"`
	EventID     string    `json:"event_id"     gorm:"type:varchar(255);not null;uniqueIndex"`
	Email       string    `json:"email"        gorm:"type:varchar(320);not null;default:''"`
	UserID      string    `json:"user_id"      gorm:"type:varchar(320);not null;default:''"`
	AmountCents int64     `json:"amount_cents" gorm:"not null;default:0"`
	Reason      string    `json:"reason"       gorm:"type:varchar(64);not null"`
	CreatedAt   time.Time `json:"created_at"`
}

// TableName returns the database table name for UnresolvedPayment.
func (UnresolvedPayment) TableName() string { return "unresolved_payments" }

// SchemaMeta is a single-row table carrying the schema version the database
// was last migrated to.
type SchemaMeta struct {
	ID        int       `gorm:"primaryKey"`
	Version   int       `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// TableName returns the database table name for SchemaMeta.
func (SchemaMeta) TableName() string { return "schema_meta" }
