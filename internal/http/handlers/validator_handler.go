package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

// ValidateOutfitRequest submits an outfit photo for judging.
type ValidateOutfitRequest struct {
	ImageURL string `json:"image_url" binding:"required" example:"https://cdn.example.com/outfits/abc.jpg"`
	// SessionID ties the verdict to a report so its season is used.
	SessionID  *string `json:"session_id" example:"141add05-4415-4938-b5a1-17e0d3171aff"`
	OwnerEmail string  `json:"owner_email" example:"jane@example.com"`
}

// QuotaResponse reports the remaining outfit validations.
type QuotaResponse struct {
	UserID    string `json:"user_id"`
	Remaining int64  `json:"remaining"`
}

// ValidateOutfit godoc
// @ID          validateOutfit
// @Summary     Judge an outfit photo
// @Description Consumes one validator use when the verdict is produced. The validator pool is separate from report credits.
// @Tags        Validator
// @Accept      json
// @Produce     json
// @Param       X-User-Email  header  string  false  "Owner email"
// @Param       body          body    handlers.ValidateOutfitRequest  true  "Outfit photo"
// @Success     201  {object}  domain.Outfit
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     401  {object}  handlers.ErrorResponse  "Owner missing"
// @Failure     402  {object}  handlers.ErrorResponse  "No validations left"
// @Failure     500  {object}  handlers.ErrorResponse  "Provider unavailable"
// @Router      /validator/outfits [post]
func (h *Handlers) ValidateOutfit(c *gin.Context) {
	var req ValidateOutfitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "image_url required")
		return
	}
	if req.SessionID != nil && strings.TrimSpace(*req.SessionID) == "" {
		req.SessionID = nil
	}
	outfit, err := h.validator.Validate(c.Request.Context(), owner(c, req.OwnerEmail), req.ImageURL, req.SessionID)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, outfit)
}

// GetOutfit godoc
// @ID          getOutfit
// @Summary     Read an outfit verdict
// @Tags        Validator
// @Produce     json
// @Param       X-User-Email  header  string  true  "Owner email"
// @Param       id            path    int     true  "Outfit ID"
// @Success     200  {object}  domain.Outfit
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Outfit not found"
// @Router      /validator/outfits/{id} [get]
func (h *Handlers) GetOutfit(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "outfit id must be a positive integer")
		return
	}
	outfit, err := h.validator.Get(c.Request.Context(), owner(c, ""), id)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, outfit)
}

// GetValidatorQuota godoc
// @ID          getValidatorQuota
// @Summary     Remaining outfit validations
// @Tags        Validator
// @Produce     json
// @Param       X-User-Email  header  string  true  "Owner email"
// @Success     200  {object}  handlers.QuotaResponse
// @Failure     401  {object}  handlers.ErrorResponse  "Owner missing"
// @Router      /validator/quota [get]
func (h *Handlers) GetValidatorQuota(c *gin.Context) {
	uid := owner(c, "")
	n, err := h.validator.Remaining(c.Request.Context(), uid)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, QuotaResponse{UserID: uid, Remaining: n})
}
