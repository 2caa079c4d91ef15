// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate queries used for
// conditional responses (ETag generation) in the HTTP layer.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/color-report-engine/internal/domain"
)

// ReportStats returns the report's last update time together with the number
// of attached images and the newest image timestamp. A change to any of them
// changes what GET /report renders.
//
// Return values:
//   - reportUpdated: the report's UpdatedAt
//   - images:        number of image rows for the session
//   - lastImage:     newest image CreatedAt, or nil if none
//   - err:           ErrNotFound when the report does not exist
func ReportStats(ctx context.Context, db *gorm.DB, sessionID string) (reportUpdated time.Time, images int64, lastImage *time.Time, err error) {
	var r struct {
		UpdatedAt time.Time
	}
	res := db.WithContext(ctx).Model(&domain.Report{}).Select("updated_at").Where("session_id = ?", sessionID).Limit(1).Scan(&r)
	if res.Error != nil {
		return time.Time{}, 0, nil, res.Error
	}
	if res.RowsAffected == 0 {
		return time.Time{}, 0, nil, ErrNotFound
	}

	q := db.WithContext(ctx).Model(&domain.Image{}).Where("session_id = ?", sessionID)
	if err = q.Count(&images).Error; err != nil {
		return time.Time{}, 0, nil, err
	}
	if images == 0 {
		return r.UpdatedAt, 0, nil, nil
	}

	// Get latest created_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		CreatedAt time.Time
	}
	if err = q.Select("created_at").Order("created_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return time.Time{}, 0, nil, err
	}
	return r.UpdatedAt, images, &row.CreatedAt, nil
}
