package settlement

import (
	webhookdomain "github.com/smallbiznis/rigmarket/internal/webhook/domain"
	"go.uber.org/fx"
)

func asHandler(ctor any) any {
	return fx.Annotate(
		ctor,
		fx.As(new(webhookdomain.Handler)),
		fx.ResultTags(`group:"webhook_handlers"`),
	)
}

var Module = fx.Module("settlement",
	fx.Provide(
		asHandler(NewCheckoutHandler),
		asHandler(NewPaymentHandler),
		asHandler(NewAccountHandler),
		asHandler(NewTransferHandler),
	),
)
