package app

import (
	"time"

	"github.com/casamarket/checkout/internal/app/api/server"
	"github.com/casamarket/checkout/internal/app/repo"
	"github.com/casamarket/checkout/internal/app/service/gateway"
	"github.com/casamarket/checkout/internal/app/service/inventory"
	"github.com/casamarket/checkout/internal/app/service/methods"
	"github.com/casamarket/checkout/internal/app/service/reconciler"
	"github.com/casamarket/checkout/internal/app/service/refund"
	"github.com/casamarket/checkout/internal/app/service/router"
	"github.com/casamarket/checkout/internal/app/service/webhooklog"
	"github.com/casamarket/checkout/internal/platform/db"
	"github.com/casamarket/checkout/pkg/config"
	"github.com/casamarket/checkout/pkg/logger"

	"go.uber.org/fx"
)

const (
	DefaultStartTimeout = 15 * time.Second
	DefaultStopTimeout  = 10 * time.Second
)

var Module = fx.Options(
	logger.Module,
	config.Module,
	db.Module,
	server.Module,
	repo.Module,
	gateway.Module,
	methods.Module,
	router.Module,
	webhooklog.Module,
	inventory.Module,
	reconciler.Module,
	refund.Module,
)
