package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/tbourn/color-report-engine/internal/domain"
	"github.com/tbourn/color-report-engine/internal/http/middleware"
	"github.com/tbourn/color-report-engine/internal/repo"
	"github.com/tbourn/color-report-engine/internal/services"
	"github.com/tbourn/color-report-engine/internal/sysutil"
)

//
// Service contracts (context-aware)
//

// SessionService creates, claims and deletes analysis sessions.
type SessionService interface {
	Create(ctx context.Context, ownerEmail, clientIP string) (*domain.Session, error)
	Claim(ctx context.Context, sessionID, ownerEmail string) (bool, error)
	Delete(ctx context.Context, sessionID, ownerEmail string) error
}

// ReportService drives the report lifecycle.
//
// Implementations must be safe for concurrent use and honor ctx for
// cancellation; RequestAnalysis and Unlock may block on the inference
// provider.
type ReportService interface {
	RequestUploadTarget(ctx context.Context, sessionID, filename, contentType, hash string) (*services.UploadTarget, error)
	CreateDraft(ctx context.Context, sessionID, imageURL string, hash *string) (*domain.Report, error)
	RequestAnalysis(ctx context.Context, sessionID, ownerEmail string) (*domain.Report, error)
	Unlock(ctx context.Context, sessionID, ownerEmail string) (*domain.Report, error)
	Get(ctx context.Context, sessionID string) (*services.ReportView, error)
	RecordFeedback(ctx context.Context, sessionID string, rating int, comment string) error
}

// EnrichmentService produces draped images for completed reports.
type EnrichmentService interface {
	Generate(ctx context.Context, sessionID string, v services.Variant, prompt string) (*services.Enrichment, error)
	GenerateAll(ctx context.Context, sessionID, prompt string) (map[services.Variant]*services.Enrichment, map[services.Variant]error)
	Cached(ctx context.Context, sessionID string, variants ...services.Variant) (map[services.Variant]*services.Enrichment, error)
}

// CreditService exposes the ledger to owners.
type CreditService interface {
	Balance(ctx context.Context, userID string) (int64, error)
	History(ctx context.Context, userID string, page, pageSize int) ([]domain.CreditLogEntry, int64, error)
}

// PaymentService applies payment gateway webhooks.
type PaymentService interface {
	HandleWebhook(ctx context.Context, body []byte, signature string) (*services.WebhookResult, error)
}

// ValidatorService judges outfit photos against the owner's season.
type ValidatorService interface {
	Remaining(ctx context.Context, ownerEmail string) (int64, error)
	Validate(ctx context.Context, ownerEmail, imageURL string, sessionID *string) (*domain.Outfit, error)
	Get(ctx context.Context, ownerEmail string, id uint64) (*domain.Outfit, error)
}

//
// Handler wiring
//

// Deps lists what the handlers need. DB is optional; without it GET /report
// sends no ETag and idempotency keys are not recorded.
type Deps struct {
	Sessions   SessionService
	Reports    ReportService
	Enrichment EnrichmentService
	Credits    CreditService
	Payments   PaymentService
	Validator  ValidatorService

	DB             *gorm.DB
	IdempotencyTTL time.Duration
}

// Handlers groups every HTTP endpoint of the API.
type Handlers struct {
	sessions   SessionService
	reports    ReportService
	enrichment EnrichmentService
	credits    CreditService
	payments   PaymentService
	validator  ValidatorService

	db      *gorm.DB
	idemTTL time.Duration
}

// New constructs Handlers from d.
func New(d Deps) *Handlers {
	ttl := d.IdempotencyTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Handlers{
		sessions:   d.Sessions,
		reports:    d.Reports,
		enrichment: d.Enrichment,
		credits:    d.Credits,
		payments:   d.Payments,
		validator:  d.Validator,
		db:         d.DB,
		idemTTL:    ttl,
	}
}

// owner picks the explicit body value first and the identity header second.
func owner(c *gin.Context, fromBody string) string {
	return strings.ToLower(strings.TrimSpace(sysutil.FirstNonEmpty(fromBody, middleware.OwnerFrom(c))))
}

// Operations recorded with an Idempotency-Key. Enrichment keys carry the
// requested variant so a replay returns the same drapings.
const (
	opAnalysis   = "analysis"
	opUnlock     = "unlock"
	opEnrichment = "enrichment:"
)

// replay answers a repeated idempotent request with the report as it is now.
// A key first used for another operation is refused with 422. It reports
// whether the response was written.
func (h *Handlers) replay(c *gin.Context, operation string) bool {
	if h.keyReused(c, operation) {
		return true
	}
	if !middleware.IsReplay(c) {
		return false
	}
	view, err := h.reports.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		failErr(c, err)
		return true
	}
	c.Header(middleware.HeaderIdempotencyReplayed, "true")
	ok(c, http.StatusOK, view)
	return true
}

// keyReused writes the 422 for a replayed key recorded under a different
// operation and reports whether it did.
func (h *Handlers) keyReused(c *gin.Context, operation string) bool {
	if !middleware.IsReplay(c) {
		return false
	}
	if recorded := middleware.ReplayedOperation(c); recorded == operation {
		return false
	}
	fail(c, http.StatusUnprocessableEntity, ErrCodeIdempotencyKeyReused,
		"Idempotency-Key was already used for a different operation")
	return true
}

// remember stores the Idempotency-Key of a completed request so retries are
// served by replay.
func (h *Handlers) remember(c *gin.Context, operation string, status int) {
	key, has := middleware.GetIdempotencyKey(c)
	if !has || h.db == nil {
		return
	}
	ownerID, sessionID := middleware.IdempotencyScope(c)
	_, err := repo.CreateIdempotency(c.Request.Context(), h.db, ownerID, sessionID, key, operation, status, h.idemTTL)
	if err != nil && !errors.Is(err, repo.ErrDuplicate) {
		middleware.LoggerFrom(c).Warn().Err(err).Str("operation", operation).Msg("idempotency record not stored")
	}
}
