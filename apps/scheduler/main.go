package main

import (
	"github.com/smallbiznis/rigmarket/internal/clock"
	"github.com/smallbiznis/rigmarket/internal/config"
	"github.com/smallbiznis/rigmarket/internal/gateway"
	"github.com/smallbiznis/rigmarket/internal/idgen"
	"github.com/smallbiznis/rigmarket/internal/ledger"
	"github.com/smallbiznis/rigmarket/internal/metricpush"
	"github.com/smallbiznis/rigmarket/internal/observability"
	"github.com/smallbiznis/rigmarket/internal/payee"
	"github.com/smallbiznis/rigmarket/internal/scheduler"
	"github.com/smallbiznis/rigmarket/pkg/db"
	"go.uber.org/fx"

	checkoutrepo "github.com/smallbiznis/rigmarket/internal/checkout/repository"
	rentalrepo "github.com/smallbiznis/rigmarket/internal/rental/repository"
	webhookrepo "github.com/smallbiznis/rigmarket/internal/webhook/repository"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(fx.Annotate(func() int64 { return 2 }, fx.ResultTags(`name:"snowflake_node_id"`))),
		idgen.Module,
		db.Module,
		clock.Module,

		// Domain services required by scheduler
		gateway.Module,
		ledger.Module,
		payee.Module,
		fx.Provide(
			checkoutrepo.Provide,
			rentalrepo.Provide,
			webhookrepo.Provide,
		),

		// No server module; migrations are owned by the api binary. Job
		// counters leave the process through the metrics push worker.
		scheduler.Module,
		metricpush.Module,
	)
	app.Run()
}
