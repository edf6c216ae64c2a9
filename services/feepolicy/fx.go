package feepolicy

import "go.uber.org/fx"

var Module = fx.Module("feepolicy",
	fx.Provide(NewService),
)
