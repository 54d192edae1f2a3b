package ratelimit

import "go.uber.org/fx"

var Module = fx.Module("admin.ratelimit",
	fx.Provide(NewAdminLimiter),
)
