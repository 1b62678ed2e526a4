package claims

import (
	"go.uber.org/fx"
)

var Module = fx.Module("claims.manager",
	fx.Provide(NewEnforcer),
	fx.Provide(NewManager),
)
