package invoice

import (
	"context"

	invoicedomain "github.com/smallbiznis/backoffice/internal/invoice/domain"
	"github.com/smallbiznis/backoffice/internal/invoice/service"
	"go.uber.org/fx"
)

var Module = fx.Module("invoice.service",
	fx.Provide(service.New),
	fx.Provide(func(s *service.Service) invoicedomain.Service { return s }),
	fx.Invoke(loadOnStart),
)

func loadOnStart(lc fx.Lifecycle, svc *service.Service) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return svc.LoadCollection(ctx)
		},
	})
}
