package reconciler

import (
	"github.com/kevobebop/kindmind/internal/billing/reconciler/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("billing.reconciler",
	fx.Provide(repository.Provide),
	fx.Provide(newRedisClient),
	fx.Provide(NewNotifyGuard),
	fx.Provide(NewService),
)
