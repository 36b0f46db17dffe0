// Package settlement applies verified gateway events to orders, rentals,
// payee accounts and the ledger. Every handler checks the target's current
// state through conditional updates, so a redelivered event changes nothing.
package settlement

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	checkoutdomain "github.com/smallbiznis/rigmarket/internal/checkout/domain"
	"github.com/smallbiznis/rigmarket/internal/clock"
	gatewaydomain "github.com/smallbiznis/rigmarket/internal/gateway/domain"
	ledgerdomain "github.com/smallbiznis/rigmarket/internal/ledger/domain"
	obsmetrics "github.com/smallbiznis/rigmarket/internal/observability/metrics"
	payeedomain "github.com/smallbiznis/rigmarket/internal/payee/domain"
	rentaldomain "github.com/smallbiznis/rigmarket/internal/rental/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// backfillBatch bounds the payouts written by one account.updated event.
const backfillBatch = 500

type Params struct {
	fx.In

	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Orders     checkoutdomain.Repository
	Rentals    rentaldomain.Repository
	Ledger     ledgerdomain.Service
	Payees     payeedomain.Service
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type deps struct {
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	orders     checkoutdomain.Repository
	rentals    rentaldomain.Repository
	ledger     ledgerdomain.Service
	payees     payeedomain.Service
	obsMetrics *obsmetrics.Metrics
}

func newDeps(p Params, name string) deps {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return deps{
		log:        p.Log.Named(name),
		genID:      p.GenID,
		clock:      clk,
		orders:     p.Orders,
		rentals:    p.Rentals,
		ledger:     p.Ledger,
		payees:     p.Payees,
		obsMetrics: p.ObsMetrics,
	}
}

// reconcile flags an event that was acknowledged without being applied.
func (d deps) reconcile(ctx context.Context, reason string, fields ...zap.Field) {
	d.obsMetrics.RecordReconciliationCandidate(ctx, reason)
	d.log.Warn("settlement skipped event", append([]zap.Field{zap.String("reason", reason)}, fields...)...)
}

func (d deps) occurredAt(evt *gatewaydomain.Event) time.Time {
	if evt.OccurredAt.IsZero() {
		return d.clock.Now()
	}
	return evt.OccurredAt
}
