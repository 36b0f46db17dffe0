package main

import (
	"github.com/smallbiznis/rigmarket/internal/clock"
	"github.com/smallbiznis/rigmarket/internal/config"
	"github.com/smallbiznis/rigmarket/internal/idgen"
	"github.com/smallbiznis/rigmarket/internal/metricpush"
	"github.com/smallbiznis/rigmarket/internal/migration"
	"github.com/smallbiznis/rigmarket/internal/observability"
	"github.com/smallbiznis/rigmarket/internal/scheduler"
	"github.com/smallbiznis/rigmarket/internal/server"
	"github.com/smallbiznis/rigmarket/pkg/db"
	"go.uber.org/fx"
)

// Single-process deployment: HTTP API, webhooks and background jobs.
func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		idgen.Module,
		db.Module,
		clock.Module,
		migration.Module,

		// HTTP surface and the domain modules behind it
		server.Module,

		// Background jobs
		scheduler.Module,
		metricpush.Module,
	)
	app.Run()
}
