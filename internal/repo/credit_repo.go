package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/color-report-engine/internal/domain"
)

// EnsureAccount creates the account with the given opening balance unless it
// already exists. The bool reports whether this call created it, which is
// how callers decide to log a signup bonus exactly once.
func EnsureAccount(ctx context.Context, db *gorm.DB, userID string, opening int64) (bool, error) {
	now := time.Now().UTC()
	acct := &domain.CreditAccount{UserID: userID, Balance: opening, CreatedAt: now, UpdatedAt: now}
	res := db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(acct)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// GetAccount returns the account, or ErrNotFound.
func GetAccount(ctx context.Context, db *gorm.DB, userID string) (*domain.CreditAccount, error) {
	var a domain.CreditAccount
	if err := db.WithContext(ctx).First(&a, "user_id = ?", userID).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

// DecrementBalance subtracts amount only when the balance covers it. The
// check and the write are a single statement, so concurrent debits against
// the same account serialize on the row. The bool is false when funds were
// insufficient (or the account does not exist).
func DecrementBalance(ctx context.Context, db *gorm.DB, userID string, amount int64) (bool, error) {
	res := db.WithContext(ctx).Model(&domain.CreditAccount{}).
		Where("user_id = ? AND balance >= ?", userID, amount).
		Updates(map[string]any{
			"balance":    gorm.Expr("balance - ?", amount),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// IncrementBalance adds amount to an existing account.
func IncrementBalance(ctx context.Context, db *gorm.DB, userID string, amount int64) error {
	res := db.WithContext(ctx).Model(&domain.CreditAccount{}).
		Where("user_id = ?", userID).
		Updates(map[string]any{
			"balance":    gorm.Expr("balance + ?", amount),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// InsertCreditLog appends an audit entry. A repeated external id surfaces as
// ErrDuplicate.
func InsertCreditLog(ctx context.Context, db *gorm.DB, e *domain.CreditLogEntry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if err := db.WithContext(ctx).Create(e).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// ExternalIDApplied reports whether a log entry with this external id exists.
func ExternalIDApplied(ctx context.Context, db *gorm.DB, externalID string) (bool, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.CreditLogEntry{}).Where("external_id = ?", externalID).Count(&n).Error
	return n > 0, err
}

// CountCreditLog returns the number of log entries for a user.
func CountCreditLog(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.CreditLogEntry{}).Where("user_id = ?", userID).Count(&n).Error
	return n, err
}

// ListCreditLogPage returns a user's log entries, newest first.
func ListCreditLogPage(ctx context.Context, db *gorm.DB, userID string, offset, limit int) ([]domain.CreditLogEntry, error) {
	var out []domain.CreditLogEntry
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// SumCreditLog returns the sum of all logged amounts for a user. It must
// equal the account balance; the CLI uses it as an integrity audit.
func SumCreditLog(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	var row struct{ Total int64 }
	err := db.WithContext(ctx).Model(&domain.CreditLogEntry{}).
		Select("COALESCE(SUM(amount), 0) AS total").
		Where("user_id = ?", userID).
		Scan(&row).Error
	return row.Total, err
}
