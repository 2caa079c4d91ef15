package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/color-report-engine/internal/domain"
)

// RecordUnresolvedPayment stores a payment that could not be credited.
// Redeliveries of the same event keep the first row.
func RecordUnresolvedPayment(ctx context.Context, db *gorm.DB, p *domain.UnresolvedPayment) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	return db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(p).Error
}

// ListUnresolvedPayments returns the newest unresolved payments.
func ListUnresolvedPayments(ctx context.Context, db *gorm.DB, limit int) ([]domain.UnresolvedPayment, error) {
	var out []domain.UnresolvedPayment
	err := db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&out).Error
	return out, err
}
