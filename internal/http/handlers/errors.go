package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/color-report-engine/internal/http/middleware"
	"github.com/tbourn/color-report-engine/internal/services"
)

// Error codes. Generic codes mirror the HTTP status; the rest name the
// business condition so clients can react without parsing messages.
const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeForbidden        = "forbidden"
	ErrCodeNotFound         = "not_found"
	ErrCodeConflict         = "conflict"
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodeInternal         = "internal_error"

	ErrCodeInvalidSignature     = "invalid_signature"
	ErrCodeInsufficientCredit   = "insufficient_credit"
	ErrCodeValidatorExhausted   = "validator_exhausted"
	ErrCodePaymentRequired      = "payment_required"
	ErrCodeAlreadyProcessing    = "already_processing"
	ErrCodeAlreadyAnalyzed      = "already_analyzed"
	ErrCodeInvalidTransition    = "invalid_transition"
	ErrCodeProviderUnavailable  = "provider_unavailable"
	ErrCodeWebhookMisconfigured = "webhook_misconfigured"
	ErrCodeIdempotencyKeyReused = "idempotency_key_reused"
)

// providerMessage hides provider details from users.
const providerMessage = "we are experiencing high demand, please retry shortly"

// Retry-After hints, in seconds, for provider failures.
const (
	retryAfterOverloaded = 10
	retryAfterDefault    = 3
)

// errorSpec is the HTTP translation of a service error.
type errorSpec struct {
	status int
	code   string
}

// classify maps a service error to status and code. The order matters where
// one sentinel wraps another.
func classify(err error) errorSpec {
	switch {
	case errors.Is(err, services.ErrValidation):
		return errorSpec{http.StatusBadRequest, ErrCodeBadRequest}
	case errors.Is(err, services.ErrNoOwner):
		return errorSpec{http.StatusUnauthorized, ErrCodeUnauthorized}
	case errors.Is(err, services.ErrInvalidSignature):
		return errorSpec{http.StatusUnauthorized, ErrCodeInvalidSignature}
	case errors.Is(err, services.ErrValidatorExhausted):
		return errorSpec{http.StatusPaymentRequired, ErrCodeValidatorExhausted}
	case errors.Is(err, services.ErrInsufficientCredit):
		return errorSpec{http.StatusPaymentRequired, ErrCodeInsufficientCredit}
	case errors.Is(err, services.ErrPaymentRequired):
		return errorSpec{http.StatusForbidden, ErrCodePaymentRequired}
	case errors.Is(err, services.ErrForbidden):
		return errorSpec{http.StatusForbidden, ErrCodeForbidden}
	case errors.Is(err, services.ErrSessionNotFound),
		errors.Is(err, services.ErrReportNotFound),
		errors.Is(err, services.ErrOutfitNotFound):
		return errorSpec{http.StatusNotFound, ErrCodeNotFound}
	case errors.Is(err, services.ErrAlreadyAnalyzed):
		return errorSpec{http.StatusConflict, ErrCodeAlreadyAnalyzed}
	case errors.Is(err, services.ErrAlreadyProcessing):
		return errorSpec{http.StatusConflict, ErrCodeAlreadyProcessing}
	case errors.Is(err, services.ErrInvalidTransition):
		return errorSpec{http.StatusConflict, ErrCodeInvalidTransition}
	case errors.Is(err, services.ErrConflict), errors.Is(err, services.ErrAlreadyApplied):
		return errorSpec{http.StatusConflict, ErrCodeConflict}
	case errors.Is(err, services.ErrProvider):
		return errorSpec{http.StatusInternalServerError, ErrCodeProviderUnavailable}
	case errors.Is(err, services.ErrWebhookMisconfigured):
		return errorSpec{http.StatusInternalServerError, ErrCodeWebhookMisconfigured}
	default:
		return errorSpec{http.StatusInternalServerError, ErrCodeInternal}
	}
}

// failErr writes the envelope for a service error. 4xx messages are the
// sentinel text; 5xx messages are generic and the cause goes to the log.
func failErr(c *gin.Context, err error) {
	spec := classify(err)
	msg := err.Error()

	if spec.status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().Err(err).Str("code", spec.code).Msg("request failed")
		msg = "internal server error"
	}
	if spec.code == ErrCodeProviderUnavailable {
		msg = providerMessage
		retry := retryAfterDefault
		var pe *services.ProviderError
		if errors.As(err, &pe) && pe.Overloaded() {
			retry = retryAfterOverloaded
		}
		c.Header("Retry-After", strconv.Itoa(retry))
	}
	fail(c, spec.status, spec.code, msg)
}
