package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/color-report-engine/internal/domain"
	"github.com/tbourn/color-report-engine/internal/observability"
	"github.com/tbourn/color-report-engine/internal/payment"
	"github.com/tbourn/color-report-engine/internal/repo"
)

// WebhookOutcome classifies a processed delivery. Every outcome is
// acknowledged to the gateway so it stops redelivering.
type WebhookOutcome string

const (
	WebhookCredited   WebhookOutcome = "credited"
	WebhookDuplicate  WebhookOutcome = "duplicate"
	WebhookIgnored    WebhookOutcome = "ignored"
	WebhookUnresolved WebhookOutcome = "unresolved"
)

// Unresolved payment reasons.
const (
	reasonUnknownUser   = "unknown_user"
	reasonUnknownAmount = "unknown_amount"
)

// WebhookResult describes what a delivery did.
type WebhookResult struct {
	Outcome WebhookOutcome `json:"outcome"`
	EventID string         `json:"event_id,omitempty"`
	UserID  string         `json:"-"`
	Credits int64          `json:"credits,omitempty"`
}

// PaymentService reconciles payment gateway webhooks into ledger credits.
// Each gateway event id is applied at most once.
type PaymentService struct {
	DB     *gorm.DB
	Ledger *Ledger
	Events Publisher

	// Secret verifies webhook signatures. When empty, Production decides:
	// production refuses every delivery, other environments accept
	// unsigned deliveries with a warning.
	Secret     string
	Tolerance  time.Duration
	Production bool

	// Packs maps a paid amount in cents to the credits it buys.
	Packs map[int64]int64

	Now func() time.Time
}

// HandleWebhook verifies, parses and applies one delivery.
func (s *PaymentService) HandleWebhook(ctx context.Context, body []byte, signature string) (*WebhookResult, error) {
	tr := otel.Tracer("services/PaymentService")
	ctx, span := tr.Start(ctx, "HandleWebhook", trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()

	if err := s.verify(body, signature); err != nil {
		observability.Webhooks.WithLabelValues("rejected").Inc()
		return nil, err
	}
	ev, err := payment.ParseEvent(body)
	if err != nil {
		observability.Webhooks.WithLabelValues("rejected").Inc()
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	span.SetAttributes(attribute.String("payment.event_id", ev.ID), attribute.String("payment.event_type", ev.Type))

	res, err := s.apply(ctx, ev)
	if err != nil {
		return nil, err
	}
	observability.Webhooks.WithLabelValues(string(res.Outcome)).Inc()
	return res, nil
}

func (s *PaymentService) apply(ctx context.Context, ev *payment.Event) (*WebhookResult, error) {
	res := &WebhookResult{EventID: ev.ID}
	if ev.Type != payment.EventCheckoutCompleted || !ev.Paid {
		res.Outcome = WebhookIgnored
		return res, nil
	}

	applied, err := repo.ExternalIDApplied(ctx, s.DB, ev.ID)
	if err != nil {
		return nil, err
	}
	if applied {
		res.Outcome = WebhookDuplicate
		return res, nil
	}

	userID, err := s.resolveUser(ctx, ev)
	if err != nil {
		return nil, err
	}
	if userID == "" {
		return s.unresolved(ctx, ev, reasonUnknownUser)
	}
	credits, ok := s.Packs[ev.AmountCents]
	if !ok {
		return s.unresolved(ctx, ev, reasonUnknownAmount)
	}

	extID := ev.ID
	err = s.Ledger.Credit(ctx, userID, credits, domain.CreditPurchase, fmt.Sprintf("purchase %d credits", credits), &extID)
	if errors.Is(err, ErrAlreadyApplied) {
		res.Outcome = WebhookDuplicate
		return res, nil
	}
	if err != nil {
		return nil, err
	}

	res.Outcome = WebhookCredited
	res.UserID = userID
	res.Credits = credits
	log.Info().Str("event_id", ev.ID).Str("user_id", userID).Int64("credits", credits).Msg("purchase credited")
	publish(ctx, s.Events, Event{Type: EventCreditsPurchased, UserID: userID, Amount: credits, Detail: ev.ID, SessionID: ev.SessionID})
	return res, nil
}

// resolveUser returns the first candidate identity the engine knows, either
// through a credit account or through an owned session. Metadata wins over
// the checkout email.
func (s *PaymentService) resolveUser(ctx context.Context, ev *payment.Event) (string, error) {
	for _, candidate := range []string{ev.UserID, ev.Email} {
		id := NormalizeEmail(candidate)
		if id == "" {
			continue
		}
		if _, err := repo.GetAccount(ctx, s.DB, id); err == nil {
			return id, nil
		} else if !errors.Is(err, repo.ErrNotFound) {
			return "", err
		}
		owns, err := repo.OwnerExists(ctx, s.DB, id)
		if err != nil {
			return "", err
		}
		if owns {
			return id, nil
		}
	}
	if ev.SessionID != "" {
		sess, err := repo.GetSession(ctx, s.DB, ev.SessionID)
		if err == nil && sess.OwnerEmail != nil {
			return *sess.OwnerEmail, nil
		}
		if err != nil && !errors.Is(err, repo.ErrNotFound) {
			return "", err
		}
	}
	return "", nil
}

func (s *PaymentService) unresolved(ctx context.Context, ev *payment.Event, reason string) (*WebhookResult, error) {
	if err := repo.RecordUnresolvedPayment(ctx, s.DB, &domain.UnresolvedPayment{
		EventID:     ev.ID,
		Email:       NormalizeEmail(ev.Email),
		UserID:      NormalizeEmail(ev.UserID),
		AmountCents: ev.AmountCents,
		Reason:      reason,
	}); err != nil {
		return nil, err
	}
	log.Error().
		Str("event_id", ev.ID).
		Str("reason", reason).
		Int64("amount_cents", ev.AmountCents).
		Msg("payment could not be credited; recorded for manual reconciliation")
	publish(ctx, s.Events, Event{Type: EventPaymentUnresolved, UserID: NormalizeEmail(ev.Email), Detail: reason, SessionID: ev.SessionID})
	return &WebhookResult{Outcome: WebhookUnresolved, EventID: ev.ID}, nil
}

func (s *PaymentService) verify(body []byte, signature string) error {
	if s.Secret == "" {
		if s.Production {
			log.Error().Msg("payment webhook rejected: no signing secret configured")
			return ErrWebhookMisconfigured
		}
		log.Warn().Msg("payment webhook accepted WITHOUT signature verification (no secret configured)")
		return nil
	}
	if err := payment.Verify(s.Secret, body, signature, s.Tolerance, s.now()); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return nil
}

func (s *PaymentService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Unresolved lists payments awaiting manual reconciliation.
func (s *PaymentService) Unresolved(ctx context.Context, limit int) ([]domain.UnresolvedPayment, error) {
	if limit <= 0 {
		limit = 50
	}
	return repo.ListUnresolvedPayments(ctx, s.DB, limit)
}
