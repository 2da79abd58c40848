package directory

import (
	"github.com/tribewave/tribewave/internal/directory/repository"
	"github.com/tribewave/tribewave/internal/directory/service"
	"go.uber.org/fx"
)

var Module = fx.Module("directory.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
