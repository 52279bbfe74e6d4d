package handlers

import (
	"context"
	"net/http"

	"github.com/casamarket/checkout/internal/app/repo"
	"github.com/casamarket/checkout/pkg/response"

	"github.com/gin-gonic/gin"
)

// TransactionLister is the admin listing contract, backed by the gorm
// transaction repository.
type TransactionLister interface {
	Scan(ctx context.Context, req *repo.ScanTransactionsRequest) (*repo.ScanTransactionsResponse, error)
}

// @Summary      List Payment Transactions (Admin)
// @Description  Retrieves a paginated and filterable list of payment transactions.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        request body repo.ScanTransactionsRequest true "List request with filters, pagination, and sorting"
// @Success      200  {object}  handlers.RespListTransactions
// @Router       /api/v1/admin/payments/list [post]
func ApiListTransactions(lister TransactionLister) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req repo.ScanTransactionsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		res, err := lister.Scan(c.Request.Context(), &req)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

func RegisterAdminRoutes(r gin.IRouter, lister TransactionLister) {
	r.POST("/payments/list", ApiListTransactions(lister))
}
