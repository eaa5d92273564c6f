package tenantdb

import "go.uber.org/fx"

var Module = fx.Module("tenantdb",
	fx.Provide(
		provideRegistry,
		NewUsageCounter,
	),
)
