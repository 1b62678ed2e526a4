package identity

import (
	"github.com/kevobebop/kindmind/internal/identity/repository"
	"github.com/kevobebop/kindmind/internal/identity/service"
	"go.uber.org/fx"
)

var Module = fx.Module("identity.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
