package main

import (
	"github.com/smallbiznis/rigmarket/internal/clock"
	"github.com/smallbiznis/rigmarket/internal/config"
	"github.com/smallbiznis/rigmarket/internal/idgen"
	"github.com/smallbiznis/rigmarket/internal/migration"
	"github.com/smallbiznis/rigmarket/internal/observability"
	"github.com/smallbiznis/rigmarket/internal/server"
	"github.com/smallbiznis/rigmarket/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(fx.Annotate(func() int64 { return 1 }, fx.ResultTags(`name:"snowflake_node_id"`))),
		idgen.Module,
		db.Module,
		clock.Module,
		migration.Module,

		// Checkout, rentals, payees, ledger reads and webhook ingestion.
		server.Module,
	)
	app.Run()
}
