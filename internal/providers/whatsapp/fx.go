package whatsapp

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/tribewave/tribewave/internal/ambassador"
	"github.com/tribewave/tribewave/internal/config"
)

var Module = fx.Module("providers.whatsapp",
	fx.Provide(NewFromConfig),
	fx.Provide(provideNotifier),
)

func NewFromConfig(cfg config.Config, log *zap.Logger) Sender {
	switch cfg.WhatsAppProvider {
	case "noop":
		return NoOpSender{}
	default:
		return NewLoggingSender(log)
	}
}

func provideNotifier(sender Sender, holder *config.DispatchConfigHolder) ambassador.Notifier {
	return NewPromotionNotifier(sender, holder.Current().DefaultLanguage)
}
