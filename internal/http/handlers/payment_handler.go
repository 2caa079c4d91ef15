package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/color-report-engine/internal/http/middleware"
)

// PaymentWebhook godoc
// @ID          paymentWebhook
// @Summary     Payment gateway webhook
// @Description Verifies the signature over the raw body and credits the purchased pack once per event id.
// @Description Unmatched payments are recorded for manual review and still acknowledged.
// @Tags        Payments
// @Accept      json
// @Produce     json
// @Param       Payment-Signature  header  string  true  "t=<unix>,v1=<hex hmac>"
// @Success     200  {object}  services.WebhookResult
// @Failure     400  {object}  handlers.ErrorResponse  "Malformed event"
// @Failure     401  {object}  handlers.ErrorResponse  "Invalid signature"
// @Failure     500  {object}  handlers.ErrorResponse  "Webhook misconfigured"
// @Router      /webhooks/payment [post]
func (h *Handlers) PaymentWebhook(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unreadable body")
		return
	}
	res, err := h.payments.HandleWebhook(c.Request.Context(), body, c.GetHeader(middleware.HeaderPaymentSignature))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, res)
}
