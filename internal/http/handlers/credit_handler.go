package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/color-report-engine/internal/domain"
	"github.com/tbourn/color-report-engine/internal/services"
	"github.com/tbourn/color-report-engine/internal/utils"
)

// BalanceResponse is the owner's spendable credit.
type BalanceResponse struct {
	UserID  string `json:"user_id" example:"jane@example.com"`
	Balance int64  `json:"balance" example:"3"`
}

// HistoryResponse wraps a page of ledger entries, newest first.
type HistoryResponse struct {
	Entries    []domain.CreditLogEntry `json:"entries"`
	Pagination Pagination              `json:"pagination"`
}

// GetBalance godoc
// @ID          getBalance
// @Summary     Credit balance
// @Description First access creates the account with the sign-up bonus.
// @Tags        Credits
// @Produce     json
// @Param       X-User-Email  header  string  true  "Owner email"
// @Success     200  {object}  handlers.BalanceResponse
// @Failure     401  {object}  handlers.ErrorResponse  "Owner missing"
// @Router      /credits/balance [get]
func (h *Handlers) GetBalance(c *gin.Context) {
	uid := owner(c, "")
	if uid == "" {
		failErr(c, services.ErrNoOwner)
		return
	}
	bal, err := h.credits.Balance(c.Request.Context(), uid)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, BalanceResponse{UserID: uid, Balance: bal})
}

// GetCreditHistory godoc
// @ID          getCreditHistory
// @Summary     Credit history (paginated)
// @Tags        Credits
// @Produce     json
// @Param       X-User-Email  header  string  true   "Owner email"
// @Param       page          query   int     false  "Page number"     minimum(1) default(1)
// @Param       page_size     query   int     false  "Items per page"  minimum(1) maximum(100) default(20)
// @Success     200  {object}  handlers.HistoryResponse
// @Failure     401  {object}  handlers.ErrorResponse  "Owner missing"
// @Router      /credits/history [get]
func (h *Handlers) GetCreditHistory(c *gin.Context) {
	uid := owner(c, "")
	if uid == "" {
		failErr(c, services.ErrNoOwner)
		return
	}
	page, pageSize := utils.ClampPage(c.Query("page"), c.Query("page_size"))

	items, total, err := h.credits.History(c.Request.Context(), uid, page, pageSize)
	if err != nil {
		failErr(c, err)
		return
	}
	if items == nil {
		items = []domain.CreditLogEntry{}
	}
	totalPages := utils.TotalPages(total, pageSize)
	ok(c, http.StatusOK, HistoryResponse{
		Entries: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}
