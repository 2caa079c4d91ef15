// Report HTTP handlers.
//
// This file exposes the report lifecycle:
//   - POST /sessions/{id}/report    (record the uploaded photo as a draft)
//   - POST /sessions/{id}/analysis  (charge one credit, analyze, protect)
//   - POST /sessions/{id}/unlock    (pay for and reveal the full report)
//   - GET  /sessions/{id}/report    (read model, weak ETag support)
//   - POST /sessions/{id}/feedback  (1..5 rating)
//
// Idempotency:
// Analysis and unlock accept an Idempotency-Key. A retry with a key that
// already succeeded is answered with the current report and
// `Idempotency-Replayed: true`; nothing is charged again.
package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/color-report-engine/internal/http/middleware"
	"github.com/tbourn/color-report-engine/internal/repo"
)

// CreateDraftRequest records where the client uploaded the photo.
type CreateDraftRequest struct {
	ImageURL  string  `json:"image_url"  binding:"required" example:"https://cdn.example.com/uploads/abc/selfie.jpg"`
	ImageHash *string `json:"image_hash" example:"9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08"`
}

// OwnerRequest carries an owner for billable operations when the identity
// header is not used.
type OwnerRequest struct {
	OwnerEmail string `json:"owner_email" example:"jane@example.com"`
}

// FeedbackRequest is the JSON payload for rating a report.
type FeedbackRequest struct {
	Rating  int    `json:"rating"  binding:"required,min=1,max=5" example:"5"`
	Comment string `json:"comment" example:"Spot on!"`
}

// bindOptional binds a JSON body when one was sent.
func bindOptional(c *gin.Context, dst any) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(dst); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// respondView writes the current read model of the session's report.
func (h *Handlers) respondView(c *gin.Context, status int) {
	view, err := h.reports.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, status, view)
}

// CreateDraft godoc
// @ID          createDraft
// @Summary     Record the uploaded photo
// @Description Creates the draft report for a session, or replaces its photo while still a draft.
// @Tags        Reports
// @Accept      json
// @Produce     json
// @Param       id    path  string  true  "Session ID"  format(uuid)
// @Param       body  body  handlers.CreateDraftRequest  true  "Photo location"
// @Success     201  {object}  services.ReportView
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Session not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Report past draft"
// @Router      /sessions/{id}/report [post]
func (h *Handlers) CreateDraft(c *gin.Context) {
	var req CreateDraftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "image_url required")
		return
	}
	if _, err := h.reports.CreateDraft(c.Request.Context(), c.Param("id"), req.ImageURL, req.ImageHash); err != nil {
		failErr(c, err)
		return
	}
	h.respondView(c, http.StatusCreated)
}

// RequestAnalysis godoc
// @ID          requestAnalysis
// @Summary     Analyze the photo
// @Description Charges one credit and runs the season analysis. The result stays protected until unlocked.
// @Description A session that was already paid for goes straight to completed without a second charge.
// @Tags        Reports
// @Accept      json
// @Produce     json
// @Param       X-User-Email     header  string  false  "Owner email"
// @Param       Idempotency-Key  header  string  false  "Idempotency key for safe retries"
// @Param       id               path    string  true   "Session ID"  format(uuid)
// @Param       body             body    handlers.OwnerRequest  false  "Owner, if not sent as header"
// @Success     200  {object}  services.ReportView
// @Header      200  {string}  Idempotency-Replayed  "true when served from a previous request"
// @Failure     401  {object}  handlers.ErrorResponse  "Owner missing"
// @Failure     402  {object}  handlers.ErrorResponse  "Insufficient credit"
// @Failure     403  {object}  handlers.ErrorResponse  "Not the owner"
// @Failure     404  {object}  handlers.ErrorResponse  "Report not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Already processing or analyzed"
// @Failure     422  {object}  handlers.ErrorResponse  "Idempotency-Key used for another operation"
// @Failure     500  {object}  handlers.ErrorResponse  "Provider unavailable"
// @Router      /sessions/{id}/analysis [post]
func (h *Handlers) RequestAnalysis(c *gin.Context) {
	if h.replay(c, opAnalysis) {
		return
	}
	var req OwnerRequest
	if !bindOptional(c, &req) {
		return
	}
	if _, err := h.reports.RequestAnalysis(c.Request.Context(), c.Param("id"), owner(c, req.OwnerEmail)); err != nil {
		failErr(c, err)
		return
	}
	h.remember(c, opAnalysis, http.StatusOK)
	h.respondView(c, http.StatusOK)
}

// Unlock godoc
// @ID          unlockReport
// @Summary     Unlock the full report
// @Description Charges one credit and reveals the full analysis of a protected report.
// @Description An unreadable stored analysis is run again after unlocking at no extra charge.
// @Tags        Reports
// @Accept      json
// @Produce     json
// @Param       X-User-Email     header  string  false  "Owner email"
// @Param       Idempotency-Key  header  string  false  "Idempotency key for safe retries"
// @Param       id               path    string  true   "Session ID"  format(uuid)
// @Param       body             body    handlers.OwnerRequest  false  "Owner, if not sent as header"
// @Success     200  {object}  services.ReportView
// @Header      200  {string}  Idempotency-Replayed  "true when served from a previous request"
// @Failure     401  {object}  handlers.ErrorResponse  "Owner missing"
// @Failure     402  {object}  handlers.ErrorResponse  "Insufficient credit"
// @Failure     403  {object}  handlers.ErrorResponse  "Not the owner"
// @Failure     404  {object}  handlers.ErrorResponse  "Report not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Not unlockable in the current state"
// @Failure     422  {object}  handlers.ErrorResponse  "Idempotency-Key used for another operation"
// @Failure     500  {object}  handlers.ErrorResponse  "Provider unavailable"
// @Router      /sessions/{id}/unlock [post]
func (h *Handlers) Unlock(c *gin.Context) {
	if h.replay(c, opUnlock) {
		return
	}
	var req OwnerRequest
	if !bindOptional(c, &req) {
		return
	}
	if _, err := h.reports.Unlock(c.Request.Context(), c.Param("id"), owner(c, req.OwnerEmail)); err != nil {
		failErr(c, err)
		return
	}
	h.remember(c, opUnlock, http.StatusOK)
	h.respondView(c, http.StatusOK)
}

// GetReport godoc
// @ID          getReport
// @Summary     Read the report
// @Description The analysis is included only once the report is completed. Supports weak ETag via If-None-Match.
// @Tags        Reports
// @Produce     json
// @Param       If-None-Match  header  string  false  "Return 304 if ETag matches"
// @Param       id             path    string  true   "Session ID"  format(uuid)
// @Success     200  {object}  services.ReportView
// @Header      200  {string}  ETag  "Weak ETag for current state"
// @Success     304  {string}  string  "Not Modified"
// @Failure     404  {object}  handlers.ErrorResponse  "Report not found"
// @Router      /sessions/{id}/report [get]
func (h *Handlers) GetReport(c *gin.Context) {
	sessionID := c.Param("id")

	// ETag pre-check (best effort).
	if h.db != nil {
		updated, images, lastImage, err := repo.ReportStats(c.Request.Context(), h.db, sessionID)
		if err == nil {
			var ts int64
			if lastImage != nil {
				ts = lastImage.UnixNano()
			}
			etag := fmt.Sprintf(`W/"report:%s:%d:%d:%d"`, sessionID, updated.UnixNano(), images, ts)
			c.Header("ETag", etag)
			if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
				c.Status(http.StatusNotModified)
				return
			}
		} else if !errors.Is(err, repo.ErrNotFound) {
			middleware.LoggerFrom(c).Warn().Err(err).Msg("report etag unavailable")
		}
	}
	h.respondView(c, http.StatusOK)
}

// SubmitFeedback godoc
// @ID          submitFeedback
// @Summary     Rate the report
// @Tags        Reports
// @Accept      json
// @Param       id    path  string  true  "Session ID"  format(uuid)
// @Param       body  body  handlers.FeedbackRequest  true  "Rating 1..5"
// @Success     204  {string}  string  "No Content"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Report not found"
// @Router      /sessions/{id}/feedback [post]
func (h *Handlers) SubmitFeedback(c *gin.Context) {
	var req FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "rating must be between 1 and 5")
		return
	}
	if err := h.reports.RecordFeedback(c.Request.Context(), c.Param("id"), req.Rating, req.Comment); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}
