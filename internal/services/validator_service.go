package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/tbourn/color-report-engine/internal/domain"
	"github.com/tbourn/color-report-engine/internal/inference"
	"github.com/tbourn/color-report-engine/internal/repo"
	"github.com/tbourn/color-report-engine/internal/storage"
)

// ValidatorService checks whether an outfit suits its wearer. It draws from
// a per-user pool of validator uses that is separate from report credits;
// a use is consumed only when a verdict was produced.
type ValidatorService struct {
	DB       *gorm.DB
	Store    storage.Store
	Provider inference.Provider
	Events   Publisher

	// FreeUses seeds the pool on first access.
	FreeUses int64
	Timeout  time.Duration
}

// Remaining returns the validator uses left for email.
func (s *ValidatorService) Remaining(ctx context.Context, ownerEmail string) (int64, error) {
	email, err := ownerIdentity(ownerEmail)
	if err != nil {
		return 0, err
	}
	if err := repo.EnsureValidatorQuota(ctx, s.DB, email, s.FreeUses); err != nil {
		return 0, err
	}
	q, err := repo.GetValidatorQuota(ctx, s.DB, email)
	if err != nil {
		return 0, err
	}
	return q.Times, nil
}

// Validate runs one outfit check on a photo already in the object store.
// When sessionID names an analyzed session its season is passed to the
// provider as context.
func (s *ValidatorService) Validate(ctx context.Context, ownerEmail, imageURL string, sessionID *string) (*domain.Outfit, error) {
	tr := otel.Tracer("services/ValidatorService")
	ctx, span := tr.Start(ctx, "Validate", trace.WithAttributes(attribute.Bool("session.linked", sessionID != nil)))
	defer span.End()

	email, err := ownerIdentity(ownerEmail)
	if err != nil {
		return nil, err
	}
	imageURL = strings.TrimSpace(imageURL)
	if imageURL == "" {
		return nil, ErrMissingImage
	}
	key, ok := s.Store.KeyForURL(imageURL)
	if !ok {
		return nil, ErrForeignImageURL
	}

	remaining, err := s.Remaining(ctx, email)
	if err != nil {
		return nil, err
	}
	if remaining < 1 {
		return nil, ErrValidatorExhausted
	}

	outfit, err := repo.CreateOutfit(ctx, s.DB, sessionID, email, imageURL)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int64("outfit.id", int64(outfit.ID)))

	work := context.WithoutCancel(ctx)
	verdict, err := s.ask(work, key, sessionID)
	if err != nil {
		s.fail(work, outfit.ID)
		return nil, err
	}

	err = s.DB.WithContext(work).Transaction(func(tx *gorm.DB) error {
		ok, err := repo.DecrementValidatorQuota(work, tx, email)
		if err != nil {
			return err
		}
		if !ok {
			return ErrValidatorExhausted
		}
		return repo.FinishOutfit(work, tx, outfit.ID, domain.OutfitCompleted, verdict)
	})
	if err != nil {
		s.fail(work, outfit.ID)
		return nil, err
	}

	publish(work, s.Events, Event{Type: EventOutfitValidated, UserID: email, Amount: 1})
	return repo.GetOutfit(work, s.DB, outfit.ID)
}

// Get returns an outfit owned by email.
func (s *ValidatorService) Get(ctx context.Context, ownerEmail string, id uint64) (*domain.Outfit, error) {
	o, err := repo.GetOutfit(ctx, s.DB, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrOutfitNotFound
	}
	if err != nil {
		return nil, err
	}
	if o.OwnerEmail != NormalizeEmail(ownerEmail) {
		return nil, ErrOutfitNotFound
	}
	return o, nil
}

func (s *ValidatorService) ask(ctx context.Context, key string, sessionID *string) (datatypes.JSON, error) {
	data, contentType, err := s.Store.Get(ctx, key)
	if err != nil {
		return nil, providerErr("load_outfit", err)
	}
	instruction := inference.OutfitValidationInstruction
	if season := s.seasonOf(ctx, sessionID); season != "" {
		instruction += "\nThe wearer's seasonal color type is " + season + "."
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout())
	defer cancel()
	raw, err := s.Provider.Analyze(callCtx, inference.AnalyzeRequest{
		Image:       inference.Image{Data: data, MIMEType: contentType},
		Instruction: instruction,
	})
	if err != nil {
		countProviderFailure("validate_outfit", err)
		return nil, providerErr("validate_outfit", err)
	}
	if !json.Valid(raw) {
		countProviderFailure("validate_outfit", inference.ErrBadResponse)
		return nil, providerErr("validate_outfit", inference.ErrBadResponse)
	}
	return datatypes.JSON(raw), nil
}

func (s *ValidatorService) seasonOf(ctx context.Context, sessionID *string) string {
	if sessionID == nil || *sessionID == "" {
		return ""
	}
	rep, err := repo.GetReport(ctx, s.DB, *sessionID)
	if err != nil || rep.Season == nil {
		return ""
	}
	return *rep.Season
}

func (s *ValidatorService) fail(ctx context.Context, id uint64) {
	if err := repo.FinishOutfit(ctx, s.DB, id, domain.OutfitFailed, nil); err != nil {
		log.Error().Err(err).Uint64("outfit_id", id).Msg("marking outfit failed")
	}
}

func (s *ValidatorService) timeout() time.Duration {
	if s.Timeout > 0 {
		return s.Timeout
	}
	return 60 * time.Second
}
