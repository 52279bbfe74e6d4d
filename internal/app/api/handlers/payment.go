package handlers

import (
	"errors"
	"net/http"

	"github.com/casamarket/checkout/internal/app/api/middleware"
	"github.com/casamarket/checkout/internal/app/service/gateway"
	"github.com/casamarket/checkout/internal/app/service/methods"
	"github.com/casamarket/checkout/internal/app/service/refund"
	"github.com/casamarket/checkout/internal/app/service/router"
	"github.com/casamarket/checkout/pkg/response"

	"github.com/gin-gonic/gin"
)

// @Summary      Create Payment
// @Description  Routes a checkout payment to the gateway backing the requested method.
// @Tags         Payment
// @Accept       json
// @Produce      json
// @Param        request body router.ProcessRequest true "Payment request"
// @Success      200  {object}  handlers.RespProcessPayment
// @Router       /api/v1/payments/create [post]
func ApiCreatePayment(rt *router.Router) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req router.ProcessRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		processPayment(c, rt, &req)
	}
}

// @Summary      Create PSE Payment
// @Description  Bank-redirect payment; requires the selected bank code.
// @Tags         Payment
// @Accept       json
// @Produce      json
// @Param        request body router.ProcessRequest true "PSE payment request"
// @Success      200  {object}  handlers.RespProcessPayment
// @Router       /api/v1/payments/pse/create [post]
func ApiCreatePSEPayment(rt *router.Router) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req router.ProcessRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		if req.PSEBankCode == "" {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, "pse_bank_code is required"))
			return
		}
		processPayment(c, rt, &req)
	}
}

// @Summary      Create Financing Payment
// @Description  Installment payment; requires the selected financing plan.
// @Tags         Payment
// @Accept       json
// @Produce      json
// @Param        request body router.ProcessRequest true "Financing payment request"
// @Success      200  {object}  handlers.RespProcessPayment
// @Router       /api/v1/payments/financing/create [post]
func ApiCreateFinancingPayment(rt *router.Router) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req router.ProcessRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		if req.FinancingPlanID == "" {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, "financing_plan_id is required"))
			return
		}
		processPayment(c, rt, &req)
	}
}

func processPayment(c *gin.Context, rt *router.Router, req *router.ProcessRequest) {
	res, err := rt.ProcessPayment(c.Request.Context(), req)
	if err != nil {
		var invalid *gateway.ValidationError
		switch {
		case errors.Is(err, methods.ErrMethodUnavailable),
			errors.Is(err, router.ErrDuplicateAttempt),
			errors.As(err, &invalid):
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
		default:
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
		}
		return
	}
	c.JSON(http.StatusOK, response.OKT(res))
}

// @Summary      Verify Payment
// @Description  Returns the current canonical status of a transaction, re-queried from its gateway.
// @Tags         Payment
// @Produce      json
// @Param        transactionId path string true "Transaction id"
// @Success      200  {object}  handlers.RespVerifyPayment
// @Router       /api/v1/payments/{transactionId}/verify [get]
func ApiVerifyPayment(rt *router.Router) gin.HandlerFunc {
	return func(c *gin.Context) {
		status, err := rt.VerifyPayment(c.Request.Context(), c.Param("transactionId"))
		if err != nil {
			if errors.Is(err, router.ErrTransactionNotFound) {
				c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
				return
			}
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(gin.H{"status": status}))
	}
}

type refundRequest struct {
	Amount int64  `json:"amount"`
	Reason string `json:"reason"`
}

// @Summary      Refund Payment (Admin)
// @Description  Refunds an approved transaction, partially or fully.
// @Tags         Payment
// @Accept       json
// @Produce      json
// @Param        transactionId path string true "Transaction id"
// @Param        request body refundRequest true "Refund request"
// @Success      200  {object}  handlers.RespRefund
// @Router       /api/v1/payments/{transactionId}/refund [post]
func ApiRefundPayment(svc *refund.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req refundRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		res, err := svc.Refund(c.Request.Context(), &refund.Request{
			TransactionID: c.Param("transactionId"),
			Amount:        req.Amount,
			Reason:        req.Reason,
			Actor:         c.GetString(middleware.CallerIDKey),
		})
		if err != nil {
			switch {
			case errors.Is(err, refund.ErrExceedsBalance),
				errors.Is(err, refund.ErrNotRefundable),
				errors.Is(err, router.ErrTransactionNotFound):
				c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			default:
				c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			}
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

// @Summary      List Payment Methods
// @Description  Enabled payment methods; pass with_health=true to annotate gateway health.
// @Tags         Payment
// @Produce      json
// @Success      200  {object}  handlers.RespMethods
// @Router       /api/v1/payments/methods [get]
func ApiListPaymentMethods(rt *router.Router) gin.HandlerFunc {
	return func(c *gin.Context) {
		withHealth := c.Query("with_health") == "true"
		c.JSON(http.StatusOK, response.OKT(rt.AvailableMethods(c.Request.Context(), withHealth)))
	}
}

// @Summary      Gateway Health (Admin)
// @Description  Probes every configured gateway in parallel.
// @Tags         Payment
// @Produce      json
// @Success      200  {object}  handlers.RespGatewayHealth
// @Router       /api/v1/payments/health [get]
func ApiGatewayHealth(rt *router.Router) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, response.OKT(rt.GatewayHealth(c.Request.Context())))
	}
}

func RegisterPaymentRoutes(r gin.IRouter, rt *router.Router, refundSvc *refund.Service, authMW, adminMW gin.HandlerFunc) {
	r.POST("/create", ApiCreatePayment(rt))
	r.POST("/pse/create", ApiCreatePSEPayment(rt))
	r.POST("/financing/create", ApiCreateFinancingPayment(rt))
	r.GET("/:transactionId/verify", ApiVerifyPayment(rt))
	r.GET("/methods", ApiListPaymentMethods(rt))
	r.POST("/:transactionId/refund", authMW, adminMW, ApiRefundPayment(refundSvc))
	r.GET("/health", authMW, adminMW, ApiGatewayHealth(rt))
}
