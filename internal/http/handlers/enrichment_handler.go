package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/color-report-engine/internal/http/middleware"
	"github.com/tbourn/color-report-engine/internal/services"
)

// variantAll asks for both drapings in one call.
const variantAll = "all"

// EnrichmentRequest selects which draping to generate.
type EnrichmentRequest struct {
	// Variant is best, worst or all.
	Variant string `json:"variant" binding:"required" example:"all"`
	// Prompt overrides the color description taken from the report palette.
	Prompt string `json:"prompt" example:"a solid emerald green"`
}

// EnrichmentsResponse lists generated drapings. Errors holds the variants
// that failed when others succeeded.
type EnrichmentsResponse struct {
	Drapings map[services.Variant]*services.Enrichment `json:"drapings"`
	Errors   map[services.Variant]ErrorResponse         `json:"errors,omitempty"`
}

// GenerateEnrichment godoc
// @ID          generateEnrichment
// @Summary     Generate draping images
// @Description Recolors the clothing in the session photo with the best or worst palette. Requires a completed report.
// @Description Results are cached; repeated calls return the first generated image.
// @Tags        Reports
// @Accept      json
// @Produce     json
// @Param       Idempotency-Key  header  string  false  "Idempotency key for safe retries"
// @Param       id               path    string  true   "Session ID"  format(uuid)
// @Param       body             body    handlers.EnrichmentRequest  true  "Variant selection"
// @Success     200  {object}  handlers.EnrichmentsResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     403  {object}  handlers.ErrorResponse  "Report not unlocked"
// @Failure     404  {object}  handlers.ErrorResponse  "Report not found"
// @Failure     422  {object}  handlers.ErrorResponse  "Idempotency-Key used for another operation"
// @Failure     500  {object}  handlers.ErrorResponse  "Provider unavailable"
// @Router      /sessions/{id}/enrichments [post]
func (h *Handlers) GenerateEnrichment(c *gin.Context) {
	var req EnrichmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "variant required (best, worst or all)")
		return
	}
	ctx := c.Request.Context()
	sessionID := c.Param("id")

	variants := services.Variants
	all := strings.EqualFold(strings.TrimSpace(req.Variant), variantAll)
	if !all {
		v, err := services.ParseVariant(req.Variant)
		if err != nil {
			failErr(c, err)
			return
		}
		variants = []services.Variant{v}
	}
	operation := opEnrichment + variantAll
	if !all {
		operation = opEnrichment + string(variants[0])
	}
	if h.replayEnrichment(c, operation, variants) {
		return
	}

	if all {
		results, failures := h.enrichment.GenerateAll(ctx, sessionID, req.Prompt)
		if len(results) == 0 {
			for _, v := range services.Variants {
				if err, found := failures[v]; found {
					failErr(c, err)
					return
				}
			}
		}
		resp := EnrichmentsResponse{Drapings: results}
		for v, err := range failures {
			if resp.Errors == nil {
				resp.Errors = make(map[services.Variant]ErrorResponse, len(failures))
			}
			spec := classify(err)
			msg := err.Error()
			if spec.status >= http.StatusInternalServerError {
				middleware.LoggerFrom(c).Error().Err(err).Str("variant", string(v)).Msg("draping failed")
				msg = providerMessage
			}
			resp.Errors[v] = ErrorResponse{Code: spec.code, Message: msg}
		}
		h.remember(c, operation, http.StatusOK)
		ok(c, http.StatusOK, resp)
		return
	}

	res, err := h.enrichment.Generate(ctx, sessionID, variants[0], req.Prompt)
	if err != nil {
		failErr(c, err)
		return
	}
	h.remember(c, operation, http.StatusOK)
	ok(c, http.StatusOK, EnrichmentsResponse{Drapings: map[services.Variant]*services.Enrichment{variants[0]: res}})
}

// replayEnrichment answers a repeated enrichment request with the drapings
// already stored for the session. It reports whether the response was
// written.
func (h *Handlers) replayEnrichment(c *gin.Context, operation string, variants []services.Variant) bool {
	if h.keyReused(c, operation) {
		return true
	}
	if !middleware.IsReplay(c) {
		return false
	}
	drapings, err := h.enrichment.Cached(c.Request.Context(), c.Param("id"), variants...)
	if err != nil {
		failErr(c, err)
		return true
	}
	c.Header(middleware.HeaderIdempotencyReplayed, "true")
	ok(c, http.StatusOK, EnrichmentsResponse{Drapings: drapings})
	return true
}
