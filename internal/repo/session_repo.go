// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Session
// model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a session is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - Conditional updates report whether their WHERE clause matched through
//     the returned bool, never through an error.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/color-report-engine/internal/domain"
)

// CreateSession inserts a new Session with a random UUID. owner and clientIP
// are optional.
func CreateSession(ctx context.Context, db *gorm.DB, owner, clientIP *string) (*domain.Session, error) {
	s := &domain.Session{
		ID:         uuid.NewString(),
		OwnerEmail: owner,
		ClientIP:   clientIP,
		Status:     domain.SessionCreated,
		CreatedAt:  time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(s).Error; err != nil {
		return nil, err
	}
	return s, nil
}

// GetSession fetches a session by ID, or ErrNotFound.
func GetSession(ctx context.Context, db *gorm.DB, id string) (*domain.Session, error) {
	var s domain.Session
	if err := db.WithContext(ctx).First(&s, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// ClaimSession sets owner_email only when it is currently NULL. The returned
// bool reports whether this call wrote the owner.
func ClaimSession(ctx context.Context, db *gorm.DB, id, owner string) (bool, error) {
	res := db.WithContext(ctx).Model(&domain.Session{}).
		Where("id = ? AND owner_email IS NULL", id).
		Updates(map[string]any{"owner_email": owner, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// SetSessionStatus syncs the coarse session status.
func SetSessionStatus(ctx context.Context, db *gorm.DB, id string, status domain.SessionStatus) error {
	return db.WithContext(ctx).Model(&domain.Session{}).
		Where("id = ?", id).
		Updates(map[string]any{"status": status, "updated_at": time.Now().UTC()}).Error
}

// DeleteSession removes the session; reports and images cascade.
// Returns ErrNotFound if nothing was deleted.
func DeleteSession(ctx context.Context, db *gorm.DB, id string) error {
	tx := db.WithContext(ctx)
	// Explicit child deletes keep the cascade intact on SQLite connections
	// opened without foreign_keys.
	if err := tx.Where("session_id = ?", id).Delete(&domain.Image{}).Error; err != nil {
		return err
	}
	if err := tx.Where("session_id = ?", id).Delete(&domain.Report{}).Error; err != nil {
		return err
	}
	res := tx.Where("id = ?", id).Delete(&domain.Session{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// OwnerExists reports whether any session is owned by email.
func OwnerExists(ctx context.Context, db *gorm.DB, email string) (bool, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.Session{}).Where("owner_email = ?", email).Limit(1).Count(&n).Error
	return n > 0, err
}

// Sessions exposes the session functions as a value satisfying the service
// layer's repository contract.
type Sessions struct{}

func (Sessions) CreateSession(ctx context.Context, db *gorm.DB, owner, clientIP *string) (*domain.Session, error) {
	return CreateSession(ctx, db, owner, clientIP)
}

func (Sessions) GetSession(ctx context.Context, db *gorm.DB, id string) (*domain.Session, error) {
	return GetSession(ctx, db, id)
}

func (Sessions) ClaimSession(ctx context.Context, db *gorm.DB, id, owner string) (bool, error) {
	return ClaimSession(ctx, db, id, owner)
}

func (Sessions) DeleteSession(ctx context.Context, db *gorm.DB, id string) error {
	return DeleteSession(ctx, db, id)
}
