package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/casamarket/checkout/internal/app/service/gateway"
	"github.com/casamarket/checkout/internal/app/service/reconciler"
	"github.com/casamarket/checkout/pkg/logctx"
	"github.com/casamarket/checkout/pkg/response"
	"github.com/casamarket/checkout/pkg/types"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// signatureHeaders maps each gateway to the header its provider signs.
var signatureHeaders = map[types.PaymentGateway]string{
	types.PaymentGatewayWompi: "X-Event-Checksum",
	types.PaymentGatewayPayU:  "X-Payu-Signature",
	types.PaymentGatewayAddi:  "X-Addi-Signature",
}

// @Summary      Gateway Webhook
// @Description  Receives asynchronous payment notifications. Responds 200 on any processed or duplicated event, 401 on signature failure.
// @Tags         Webhook
// @Accept       json
// @Produce      json
// @Param        gateway path string true "Gateway id (wompi|payu|addi)"
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/payments/webhook/{gateway} [post]
func ApiGatewayWebhook(rec *reconciler.Reconciler, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		gatewayID := types.PaymentGateway(c.Param("gateway"))
		sigHeader, ok := signatureHeaders[gatewayID]
		if !ok {
			c.JSON(http.StatusNotFound, response.ErrorT[any](response.APIResponseCodeBadRequest, "unknown gateway"))
			return
		}

		body, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, "unreadable body"))
			return
		}

		logctx.FromGin(c, log).Infow("webhook_received", "gateway", gatewayID)

		err = rec.HandleWebhook(c.Request.Context(), gatewayID, body, c.GetHeader(sigHeader))
		if errors.Is(err, gateway.ErrBadSignature) {
			c.JSON(http.StatusUnauthorized, response.ErrorT[any](response.APIResponseCodeBadRequest, "invalid signature"))
			return
		}
		// Internal faults are logged inside the reconciler and acknowledged
		// so the provider does not hammer us with redeliveries.
		c.JSON(http.StatusOK, response.OKT[any](nil))
	}
}

func RegisterWebhookRoutes(r gin.IRouter, rec *reconciler.Reconciler, log *zap.SugaredLogger) {
	r.POST("/webhook/:gateway", ApiGatewayWebhook(rec, log))
}
