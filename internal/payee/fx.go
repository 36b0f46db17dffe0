package payee

import (
	"github.com/smallbiznis/rigmarket/internal/payee/repository"
	"github.com/smallbiznis/rigmarket/internal/payee/service"
	"go.uber.org/fx"
)

var Module = fx.Module("payee.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
