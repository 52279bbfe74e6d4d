package handlers

import (
	"github.com/casamarket/checkout/internal/app/repo"
	"github.com/casamarket/checkout/internal/app/service/refund"
	"github.com/casamarket/checkout/internal/app/service/router"
	"github.com/casamarket/checkout/pkg/response"
)

// Concrete envelope instantiations referenced by swagger annotations.

type RespOK = response.APIResponse[any]

type RespProcessPayment = response.APIResponse[*router.ProcessResponse]

type RespVerifyPayment = response.APIResponse[map[string]string]

type RespRefund = response.APIResponse[*refund.Result]

type RespMethods = response.APIResponse[[]*router.MethodInfo]

type RespGatewayHealth = response.APIResponse[[]*router.HealthSnapshot]

type RespListTransactions = response.APIResponse[*repo.ScanTransactionsResponse]
