package gateway

import (
	"github.com/smallbiznis/rigmarket/internal/gateway/domain"
	"github.com/smallbiznis/rigmarket/internal/gateway/stripe"
	"go.uber.org/fx"
)

type registryParams struct {
	fx.In

	Gateways []domain.Gateway `group:"payment_gateways"`
}

var Module = fx.Module("gateway",
	fx.Provide(
		fx.Annotate(
			stripe.Provide,
			fx.As(new(domain.Gateway)),
			fx.ResultTags(`group:"payment_gateways"`),
		),
	),
	fx.Provide(func(p registryParams) *Registry {
		return NewRegistry(p.Gateways...)
	}),
	fx.Provide(func(r *Registry) (domain.Gateway, error) {
		return r.Default()
	}),
)
