// Session HTTP handlers.
//
//   - POST   /sessions                     (create, owner optional)
//   - POST   /sessions/{id}/claim          (attach an owner, first claim wins)
//   - DELETE /sessions/{id}                (owner only)
//   - POST   /sessions/{id}/upload-target  (presigned photo upload)
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// CreateSessionRequest is the JSON payload for creating a session.
type CreateSessionRequest struct {
	// OwnerEmail attaches the session to an owner right away. Optional.
	OwnerEmail string `json:"owner_email" example:"jane@example.com"`
}

// ClaimSessionRequest is the JSON payload for claiming a session.
type ClaimSessionRequest struct {
	OwnerEmail string `json:"owner_email" example:"jane@example.com"`
}

// ClaimSessionResponse tells the caller whether they own the session now.
type ClaimSessionResponse struct {
	SessionID string `json:"session_id"`
	Claimed   bool   `json:"claimed"`
}

// UploadTargetRequest describes the photo the client is about to upload.
type UploadTargetRequest struct {
	Filename    string `json:"filename"     example:"selfie.jpg"`
	ContentType string `json:"content_type" binding:"required" example:"image/jpeg"`
	// ImageHash is the hex SHA-256 of the photo; a known hash reuses the stored photo.
	ImageHash string `json:"image_hash" example:"9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08"`
}

// CreateSession godoc
// @ID          createSession
// @Summary     Start an analysis session
// @Tags        Sessions
// @Accept      json
// @Produce     json
// @Param       X-User-Email  header  string  false  "Owner email"
// @Param       body          body    handlers.CreateSessionRequest  false  "Optional owner"
// @Success     201  {object}  domain.Session
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /sessions [post]
func (h *Handlers) CreateSession(c *gin.Context) {
	var req CreateSessionRequest
	if !bindOptional(c, &req) {
		return
	}
	sess, err := h.sessions.Create(c.Request.Context(), owner(c, req.OwnerEmail), c.ClientIP())
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, sess)
}

// ClaimSession godoc
// @ID          claimSession
// @Summary     Claim an anonymous session
// @Description Attaches the session to the caller. The first claim wins; claimed is true only when the caller owns the session afterwards.
// @Tags        Sessions
// @Accept      json
// @Produce     json
// @Param       X-User-Email  header  string  false  "Owner email"
// @Param       id            path    string  true   "Session ID"  format(uuid)
// @Param       body          body    handlers.ClaimSessionRequest  false  "Owner, if not sent as header"
// @Success     200  {object}  handlers.ClaimSessionResponse
// @Failure     401  {object}  handlers.ErrorResponse  "Owner missing"
// @Failure     404  {object}  handlers.ErrorResponse  "Session not found"
// @Router      /sessions/{id}/claim [post]
func (h *Handlers) ClaimSession(c *gin.Context) {
	var req ClaimSessionRequest
	if !bindOptional(c, &req) {
		return
	}
	id := c.Param("id")
	claimed, err := h.sessions.Claim(c.Request.Context(), id, owner(c, req.OwnerEmail))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, ClaimSessionResponse{SessionID: id, Claimed: claimed})
}

// DeleteSession godoc
// @ID          deleteSession
// @Summary     Delete a session and its report
// @Tags        Sessions
// @Param       X-User-Email  header  string  true  "Owner email"
// @Param       id            path    string  true  "Session ID"  format(uuid)
// @Success     204  {string}  string  "No Content"
// @Failure     401  {object}  handlers.ErrorResponse  "Owner missing"
// @Failure     403  {object}  handlers.ErrorResponse  "Not the owner"
// @Failure     404  {object}  handlers.ErrorResponse  "Session not found"
// @Router      /sessions/{id} [delete]
func (h *Handlers) DeleteSession(c *gin.Context) {
	if err := h.sessions.Delete(c.Request.Context(), c.Param("id"), owner(c, "")); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}

// RequestUploadTarget godoc
// @ID          requestUploadTarget
// @Summary     Get a presigned upload URL for the session photo
// @Description When image_hash matches an earlier completed report, the stored photo is offered and reused is true.
// @Tags        Sessions
// @Accept      json
// @Produce     json
// @Param       id    path  string  true  "Session ID"  format(uuid)
// @Param       body  body  handlers.UploadTargetRequest  true  "Photo metadata"
// @Success     200  {object}  services.UploadTarget
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Session not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /sessions/{id}/upload-target [post]
func (h *Handlers) RequestUploadTarget(c *gin.Context) {
	var req UploadTargetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "content_type required")
		return
	}
	target, err := h.reports.RequestUploadTarget(c.Request.Context(), c.Param("id"),
		strings.TrimSpace(req.Filename), req.ContentType, strings.TrimSpace(req.ImageHash))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, target)
}
