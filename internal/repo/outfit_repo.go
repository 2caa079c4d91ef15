package repo

import (
	"context"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/color-report-engine/internal/domain"
)

// EnsureValidatorQuota seeds the validator pool with `free` uses on first
// access. Existing quotas are left untouched.
func EnsureValidatorQuota(ctx context.Context, db *gorm.DB, userID string, free int64) error {
	now := time.Now().UTC()
	q := &domain.ValidatorQuota{UserID: userID, Times: free, CreatedAt: now, UpdatedAt: now}
	return db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(q).Error
}

// GetValidatorQuota returns the remaining validator uses, or ErrNotFound.
func GetValidatorQuota(ctx context.Context, db *gorm.DB, userID string) (*domain.ValidatorQuota, error) {
	var q domain.ValidatorQuota
	if err := db.WithContext(ctx).First(&q, "user_id = ?", userID).Error; err != nil {
		return nil, err
	}
	return &q, nil
}

// DecrementValidatorQuota consumes one use when available.
func DecrementValidatorQuota(ctx context.Context, db *gorm.DB, userID string) (bool, error) {
	res := db.WithContext(ctx).Model(&domain.ValidatorQuota{}).
		Where("user_id = ? AND validator_times >= 1", userID).
		Updates(map[string]any{
			"validator_times": gorm.Expr("validator_times - 1"),
			"updated_at":      time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// CreateOutfit inserts a processing outfit row.
func CreateOutfit(ctx context.Context, db *gorm.DB, sessionID *string, owner, imageURL string) (*domain.Outfit, error) {
	now := time.Now().UTC()
	o := &domain.Outfit{
		SessionID:  sessionID,
		OwnerEmail: owner,
		ImageURL:   imageURL,
		Status:     domain.OutfitProcessing,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := db.WithContext(ctx).Create(o).Error; err != nil {
		return nil, err
	}
	return o, nil
}

// FinishOutfit records the final status and verdict.
func FinishOutfit(ctx context.Context, db *gorm.DB, id uint64, status domain.OutfitStatus, verdict datatypes.JSON) error {
	updates := map[string]any{"status": status, "updated_at": time.Now().UTC()}
	if verdict != nil {
		updates["verdict"] = verdict
	}
	return db.WithContext(ctx).Model(&domain.Outfit{}).Where("id = ?", id).Updates(updates).Error
}

// GetOutfit fetches an outfit by ID, or ErrNotFound.
func GetOutfit(ctx context.Context, db *gorm.DB, id uint64) (*domain.Outfit, error) {
	var o domain.Outfit
	if err := db.WithContext(ctx).First(&o, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &o, nil
}
