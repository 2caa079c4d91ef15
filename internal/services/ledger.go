package services

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/color-report-engine/internal/domain"
	"github.com/tbourn/color-report-engine/internal/observability"
	"github.com/tbourn/color-report-engine/internal/repo"
)

// Ledger owns credit balances and their append-only log. Every balance
// change is written in the same transaction as its log entry, so the sum
// of a user's log always equals the balance.
type Ledger struct {
	DB *gorm.DB

	// FreeBonus is granted once, when an account is first touched.
	FreeBonus int64
}

// Balance returns the user's balance, creating the account (and logging the
// signup bonus) on first access.
func (l *Ledger) Balance(ctx context.Context, userID string) (int64, error) {
	tr := otel.Tracer("services/Ledger")
	ctx, span := tr.Start(ctx, "Balance", trace.WithAttributes(attribute.String("user.id", userID)))
	defer span.End()

	var balance int64
	err := l.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := l.ensure(ctx, tx, userID); err != nil {
			return err
		}
		acct, err := repo.GetAccount(ctx, tx, userID)
		if err != nil {
			return err
		}
		balance = acct.Balance
		return nil
	})
	return balance, err
}

// Debit removes amount from the balance in its own transaction.
func (l *Ledger) Debit(ctx context.Context, userID string, amount int64, reason string, sessionID *string) error {
	return l.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return l.DebitTx(ctx, tx, userID, amount, reason, sessionID)
	})
}

// DebitTx removes amount inside the caller's transaction. It returns
// ErrInsufficientCredit without writing anything when the balance does not
// cover amount; the caller's transaction should then roll back.
func (l *Ledger) DebitTx(ctx context.Context, tx *gorm.DB, userID string, amount int64, reason string, sessionID *string) error {
	if amount <= 0 {
		return fmt.Errorf("%w: debit amount must be positive", ErrValidation)
	}
	if err := l.ensure(ctx, tx, userID); err != nil {
		return err
	}
	ok, err := repo.DecrementBalance(ctx, tx, userID, amount)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInsufficientCredit
	}
	if err := repo.InsertCreditLog(ctx, tx, &domain.CreditLogEntry{
		UserID:      userID,
		Amount:      -amount,
		Type:        domain.CreditUsage,
		Description: reason,
		SessionID:   sessionID,
	}); err != nil {
		return err
	}
	observability.CreditsMoved.WithLabelValues(string(domain.CreditUsage)).Add(float64(amount))
	return nil
}

// Credit adds amount to the balance. When externalID is set the credit is
// applied at most once: a repeat returns ErrAlreadyApplied and changes
// nothing.
func (l *Ledger) Credit(ctx context.Context, userID string, amount int64, typ domain.CreditType, reason string, externalID *string) error {
	tr := otel.Tracer("services/Ledger")
	ctx, span := tr.Start(ctx, "Credit", trace.WithAttributes(
		attribute.String("user.id", userID),
		attribute.Int64("credit.amount", amount),
		attribute.String("credit.type", string(typ)),
	))
	defer span.End()

	if amount <= 0 {
		return fmt.Errorf("%w: credit amount must be positive", ErrValidation)
	}
	if externalID != nil {
		applied, err := repo.ExternalIDApplied(ctx, l.DB, *externalID)
		if err != nil {
			return err
		}
		if applied {
			return ErrAlreadyApplied
		}
	}

	err := l.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := l.ensure(ctx, tx, userID); err != nil {
			return err
		}
		// The log row goes first: its unique external id is what makes a
		// racing duplicate fail before the balance moves.
		if err := repo.InsertCreditLog(ctx, tx, &domain.CreditLogEntry{
			UserID:      userID,
			Amount:      amount,
			Type:        typ,
			Description: reason,
			ExternalID:  externalID,
		}); err != nil {
			return err
		}
		return repo.IncrementBalance(ctx, tx, userID, amount)
	})
	if errors.Is(err, repo.ErrDuplicate) {
		return ErrAlreadyApplied
	}
	if err != nil {
		return err
	}
	observability.CreditsMoved.WithLabelValues(string(typ)).Add(float64(amount))
	return nil
}

// History returns one page of the user's log, newest first, plus the total
// number of entries.
func (l *Ledger) History(ctx context.Context, userID string, page, pageSize int) ([]domain.CreditLogEntry, int64, error) {
	tr := otel.Tracer("services/Ledger")
	ctx, span := tr.Start(ctx, "History", trace.WithAttributes(
		attribute.String("user.id", userID),
		attribute.Int("page", page),
		attribute.Int("page_size", pageSize),
	))
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	total, err := repo.CountCreditLog(ctx, l.DB, userID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.CreditLogEntry{}, 0, nil
	}
	items, err := repo.ListCreditLogPage(ctx, l.DB, userID, (page-1)*pageSize, pageSize)
	return items, total, err
}

// Audit compares the stored balance with the sum of the log and returns
// ErrIntegrity when they differ. A user without an account audits clean.
func (l *Ledger) Audit(ctx context.Context, userID string) (balance, logged int64, err error) {
	acct, err := repo.GetAccount(ctx, l.DB, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, err
	}
	logged, err = repo.SumCreditLog(ctx, l.DB, userID)
	if err != nil {
		return 0, 0, err
	}
	if logged != acct.Balance {
		return acct.Balance, logged, fmt.Errorf("%w: balance %d, log sums to %d", ErrIntegrity, acct.Balance, logged)
	}
	return acct.Balance, logged, nil
}

// ensure lazily creates the account. The opening bonus and its log entry
// are written only by the call that created the row.
func (l *Ledger) ensure(ctx context.Context, tx *gorm.DB, userID string) error {
	created, err := repo.EnsureAccount(ctx, tx, userID, l.FreeBonus)
	if err != nil {
		return err
	}
	if !created || l.FreeBonus <= 0 {
		return nil
	}
	if err := repo.InsertCreditLog(ctx, tx, &domain.CreditLogEntry{
		UserID:      userID,
		Amount:      l.FreeBonus,
		Type:        domain.CreditBonus,
		Description: "signup bonus",
	}); err != nil {
		return err
	}
	observability.CreditsMoved.WithLabelValues(string(domain.CreditBonus)).Add(float64(l.FreeBonus))
	return nil
}
