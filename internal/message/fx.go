package message

import (
	"github.com/tribewave/tribewave/internal/message/dispatcher"
	"github.com/tribewave/tribewave/internal/message/repository"
	"github.com/tribewave/tribewave/internal/message/service"
	"go.uber.org/fx"
)

var Module = fx.Module("message.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
	dispatcher.Module,
)
