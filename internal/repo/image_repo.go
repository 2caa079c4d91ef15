package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/color-report-engine/internal/domain"
)

// GetImage returns the image of the given type for a session, or ErrNotFound.
func GetImage(ctx context.Context, db *gorm.DB, sessionID string, typ domain.ImageType) (*domain.Image, error) {
	var img domain.Image
	if err := db.WithContext(ctx).First(&img, "session_id = ? AND type = ?", sessionID, typ).Error; err != nil {
		return nil, err
	}
	return &img, nil
}

// InsertImage inserts the row unless (session, type) already exists; the
// existing row is never overwritten. The bool reports whether this call
// inserted.
func InsertImage(ctx context.Context, db *gorm.DB, sessionID string, typ domain.ImageType, url, objectKey string) (bool, error) {
	img := &domain.Image{
		SessionID: sessionID,
		Type:      typ,
		URL:       url,
		ObjectKey: objectKey,
		CreatedAt: time.Now().UTC(),
	}
	res := db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(img)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// DeleteImage removes one image row. Used only to replace the photo of a
// draft before any derived artifact exists.
func DeleteImage(ctx context.Context, db *gorm.DB, sessionID string, typ domain.ImageType) error {
	return db.WithContext(ctx).Where("session_id = ? AND type = ?", sessionID, typ).Delete(&domain.Image{}).Error
}

// ListImages returns all images of a session ordered by type.
func ListImages(ctx context.Context, db *gorm.DB, sessionID string) ([]domain.Image, error) {
	var out []domain.Image
	err := db.WithContext(ctx).Where("session_id = ?", sessionID).Order("type ASC").Find(&out).Error
	return out, err
}
