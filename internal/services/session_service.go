package services

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/color-report-engine/internal/domain"
	"github.com/tbourn/color-report-engine/internal/repo"
)

// SessionRepo is the persistence contract used by SessionService.
type SessionRepo interface {
	CreateSession(ctx context.Context, db *gorm.DB, owner, clientIP *string) (*domain.Session, error)
	GetSession(ctx context.Context, db *gorm.DB, id string) (*domain.Session, error)
	ClaimSession(ctx context.Context, db *gorm.DB, id, owner string) (bool, error)
	DeleteSession(ctx context.Context, db *gorm.DB, id string) error
}

// SessionService creates, claims and deletes sessions.
type SessionService struct {
	DB   *gorm.DB
	Repo SessionRepo
}

// NewSessionService constructs a SessionService.
func NewSessionService(db *gorm.DB, r SessionRepo) *SessionService {
	return &SessionService{DB: db, Repo: r}
}

// Create starts an anonymous (or pre-claimed) session.
func (s *SessionService) Create(ctx context.Context, ownerEmail, clientIP string) (*domain.Session, error) {
	tr := otel.Tracer("services/SessionService")
	ctx, span := tr.Start(ctx, "Create")
	defer span.End()

	var owner *string
	if strings.TrimSpace(ownerEmail) != "" {
		email, err := ownerIdentity(ownerEmail)
		if err != nil {
			return nil, err
		}
		owner = &email
	}
	var ip *string
	if clientIP = strings.TrimSpace(clientIP); clientIP != "" {
		ip = &clientIP
	}
	return s.Repo.CreateSession(ctx, s.DB, owner, ip)
}

// Get returns a session or ErrSessionNotFound.
func (s *SessionService) Get(ctx context.Context, id string) (*domain.Session, error) {
	sess, err := s.Repo.GetSession(ctx, s.DB, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSessionNotFound
	}
	return sess, err
}

// Claim binds the session to email if it has no owner yet. The first claim
// wins and is never overwritten. The result reports whether email owns the
// session after the call, so repeating a successful claim is a no-op that
// still returns true.
func (s *SessionService) Claim(ctx context.Context, sessionID, ownerEmail string) (bool, error) {
	tr := otel.Tracer("services/SessionService")
	ctx, span := tr.Start(ctx, "Claim", trace.WithAttributes(attribute.String("session.id", sessionID)))
	defer span.End()

	email, err := ownerIdentity(ownerEmail)
	if err != nil {
		return false, err
	}
	won, err := s.Repo.ClaimSession(ctx, s.DB, sessionID, email)
	if err != nil {
		return false, err
	}
	if won {
		return true, nil
	}
	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		return false, err
	}
	return sess.OwnerEmail != nil && *sess.OwnerEmail == email, nil
}

// Delete removes a session with its report and images. Only the owner may
// delete an owned session; an unowned one can be deleted by anyone holding
// its id.
func (s *SessionService) Delete(ctx context.Context, sessionID, ownerEmail string) error {
	tr := otel.Tracer("services/SessionService")
	ctx, span := tr.Start(ctx, "Delete", trace.WithAttributes(attribute.String("session.id", sessionID)))
	defer span.End()

	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.OwnerEmail != nil && *sess.OwnerEmail != NormalizeEmail(ownerEmail) {
		return ErrForbidden
	}
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.Repo.DeleteSession(ctx, tx, sessionID)
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrSessionNotFound
	}
	return err
}

// checkOwner fails unless the session is anonymous or already owned by
// email. It writes nothing.
func checkOwner(ctx context.Context, db *gorm.DB, sessionID, email string) error {
	sess, err := repo.GetSession(ctx, db, sessionID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrSessionNotFound
	}
	if err != nil {
		return err
	}
	if sess.OwnerEmail != nil && *sess.OwnerEmail != email {
		return ErrForbidden
	}
	return nil
}

// requireOwner makes sure email owns the session, claiming it when it is
// still anonymous. Report operations call it inside the transaction that
// charges, so an operation that fails leaves the session unclaimed.
func requireOwner(ctx context.Context, db *gorm.DB, sessionID, email string) error {
	sess, err := repo.GetSession(ctx, db, sessionID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrSessionNotFound
	}
	if err != nil {
		return err
	}
	if sess.OwnerEmail == nil {
		won, err := repo.ClaimSession(ctx, db, sessionID, email)
		if err != nil {
			return err
		}
		if won {
			return nil
		}
		if sess, err = repo.GetSession(ctx, db, sessionID); err != nil {
			return err
		}
	}
	if sess.OwnerEmail == nil || *sess.OwnerEmail != email {
		return ErrForbidden
	}
	return nil
}
