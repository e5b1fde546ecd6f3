package ledgerstore

import "go.uber.org/fx"

var Module = fx.Module("ledgerstore",
	fx.Provide(func(s *GormStore) Store { return s }),
	fx.Provide(New),
)
