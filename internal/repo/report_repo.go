package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/color-report-engine/internal/domain"
)

// GetReport fetches the report of a session, or ErrNotFound.
func GetReport(ctx context.Context, db *gorm.DB, sessionID string) (*domain.Report, error) {
	var r domain.Report
	if err := db.WithContext(ctx).First(&r, "session_id = ?", sessionID).Error; err != nil {
		return nil, err
	}
	return &r, nil
}

// CreateReport inserts a draft report. A concurrent insert for the same
// session surfaces as ErrDuplicate.
func CreateReport(ctx context.Context, db *gorm.DB, sessionID, imageURL string, hash *string) (*domain.Report, error) {
	now := time.Now().UTC()
	r := &domain.Report{
		SessionID:     sessionID,
		Status:        domain.ReportDraft,
		InputImageURL: imageURL,
		ImageHash:     hash,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := db.WithContext(ctx).Create(r).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return r, nil
}

// UpdateDraftInput replaces the uploaded photo of a report that is still a
// draft. The bool reports whether a draft row matched.
func UpdateDraftInput(ctx context.Context, db *gorm.DB, sessionID, imageURL string, hash *string) (bool, error) {
	res := db.WithContext(ctx).Model(&domain.Report{}).
		Where("session_id = ? AND status = ?", sessionID, domain.ReportDraft).
		Updates(map[string]any{
			"input_image_url": imageURL,
			"image_hash":      hash,
			"updated_at":      time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// TransitionReport is the compare-and-swap used for every lifecycle step:
// the row moves to `to` (plus extra column updates) only if its current
// status is one of `from`. Exactly one concurrent caller can win.
func TransitionReport(ctx context.Context, db *gorm.DB, sessionID string, from []domain.ReportStatus, to domain.ReportStatus, fields map[string]any) (bool, error) {
	updates := map[string]any{"status": to, "updated_at": time.Now().UTC()}
	for k, v := range fields {
		updates[k] = v
	}
	res := db.WithContext(ctx).Model(&domain.Report{}).
		Where("session_id = ? AND status IN ?", sessionID, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// FindCompletedByHash returns the most recent completed report whose photo
// has the given content hash, or ErrNotFound.
func FindCompletedByHash(ctx context.Context, db *gorm.DB, hash string) (*domain.Report, error) {
	var r domain.Report
	err := db.WithContext(ctx).
		Where("image_hash = ? AND status = ?", hash, domain.ReportCompleted).
		Order("updated_at DESC").
		First(&r).Error
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// SetReportFeedback stores rating and comment regardless of status.
func SetReportFeedback(ctx context.Context, db *gorm.DB, sessionID string, rating int, comment *string) error {
	res := db.WithContext(ctx).Model(&domain.Report{}).
		Where("session_id = ?", sessionID).
		Updates(map[string]any{"rating": rating, "feedback": comment, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListStaleProtected returns protected reports analyzed before `before`
// that have not had a recovery reminder yet.
func ListStaleProtected(ctx context.Context, db *gorm.DB, before time.Time, limit int) ([]domain.Report, error) {
	var out []domain.Report
	err := db.WithContext(ctx).
		Where("status = ? AND recovery_sent_at IS NULL AND analyzed_at < ?", domain.ReportProtected, before).
		Order("analyzed_at ASC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// MarkRecoverySent stamps recovery_sent_at once. The bool is false when the
// report was already stamped or is no longer protected.
func MarkRecoverySent(ctx context.Context, db *gorm.DB, sessionID string, at time.Time) (bool, error) {
	res := db.WithContext(ctx).Model(&domain.Report{}).
		Where("session_id = ? AND status = ? AND recovery_sent_at IS NULL", sessionID, domain.ReportProtected).
		Update("recovery_sent_at", at)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ListStaleProcessing returns reports that entered processing before `before`.
func ListStaleProcessing(ctx context.Context, db *gorm.DB, before time.Time, limit int) ([]domain.Report, error) {
	var out []domain.Report
	err := db.WithContext(ctx).
		Where("status = ? AND (processing_at IS NULL OR processing_at < ?)", domain.ReportProcessing, before).
		Order("updated_at ASC").
		Limit(limit).
		Find(&out).Error
	return out, err
}
