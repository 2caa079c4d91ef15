// Package services holds the business logic of the report engine: sessions,
// the report lifecycle, the credit ledger, derived image enrichment, payment
// webhooks, the outfit validator and the recovery sweeper.
//
// This file centralizes the service-level error values so callers can match
// them with errors.Is. Translation into HTTP status codes happens in the
// handler layer.
package services

import (
	"errors"
	"fmt"

	"github.com/tbourn/color-report-engine/internal/inference"
)

// Input errors. Every specific value wraps ErrValidation.
var (
	ErrValidation = errors.New("invalid input")

	ErrInvalidEmail    = fmt.Errorf("%w: owner email is malformed", ErrValidation)
	ErrMissingImage    = fmt.Errorf("%w: image url is required", ErrValidation)
	ErrInvalidRating   = fmt.Errorf("%w: rating must be between 1 and 5", ErrValidation)
	ErrInvalidVariant  = fmt.Errorf("%w: variant must be best, worst or all", ErrValidation)
	ErrInvalidUpload   = fmt.Errorf("%w: upload must be an image", ErrValidation)
	ErrForeignImageURL = fmt.Errorf("%w: image url does not belong to the object store", ErrValidation)
)

// Lookup and authorization errors.
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrReportNotFound  = errors.New("report not found")
	ErrOutfitNotFound  = errors.New("outfit not found")

	// ErrNoOwner is returned when a credit-consuming operation is attempted
	// without an owner identity.
	ErrNoOwner = errors.New("owner email is required")

	// ErrForbidden is returned when the caller does not own the session.
	ErrForbidden = errors.New("session belongs to another owner")

	// ErrPaymentRequired is returned when paid content is requested for a
	// report that has not been unlocked.
	ErrPaymentRequired = errors.New("report is not unlocked")
)

// Lifecycle errors.
var (
	ErrInvalidTransition = errors.New("operation not allowed in the current report state")

	// ErrAlreadyProcessing is returned when an analysis is already running or
	// has already produced a result for the session.
	ErrAlreadyProcessing = errors.New("analysis already in progress")

	// ErrAlreadyAnalyzed wraps ErrAlreadyProcessing so callers racing a
	// finished analysis see the same class of error as those racing a
	// running one.
	ErrAlreadyAnalyzed = fmt.Errorf("%w: report already analyzed", ErrAlreadyProcessing)

	// ErrConflict is returned when a concurrent writer changed the row first.
	ErrConflict = errors.New("concurrent update, retry")
)

// Ledger errors.
var (
	ErrInsufficientCredit = errors.New("insufficient credit")

	// ErrValidatorExhausted wraps ErrInsufficientCredit for the separate
	// outfit validator pool.
	ErrValidatorExhausted = fmt.Errorf("%w: no outfit validations left", ErrInsufficientCredit)

	// ErrAlreadyApplied is returned when a credit carrying an external id has
	// been applied before.
	ErrAlreadyApplied = errors.New("credit already applied")

	// ErrIntegrity is returned when stored data violates an invariant, such
	// as a balance that disagrees with the sum of its log.
	ErrIntegrity = errors.New("integrity violation")
)

// Webhook errors.
var (
	ErrInvalidSignature     = errors.New("invalid webhook signature")
	ErrWebhookMisconfigured = errors.New("webhook secret is not configured")
)

// ErrProvider is matched by every ProviderError.
var ErrProvider = errors.New("inference provider failure")

// ProviderError reports a failed call to the inference provider or to the
// object store it depends on. Nothing was charged when it is returned.
type ProviderError struct {
	Op  string
	Err error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrProvider) true for any ProviderError.
func (e *ProviderError) Is(target error) bool { return target == ErrProvider }

// Overloaded reports whether the provider signalled high demand.
func (e *ProviderError) Overloaded() bool { return errors.Is(e.Err, inference.ErrOverloaded) }

func providerErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &ProviderError{Op: op, Err: err}
}
