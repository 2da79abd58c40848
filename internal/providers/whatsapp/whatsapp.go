package whatsapp

import (
	"context"

	"go.uber.org/zap"

	"github.com/tribewave/tribewave/internal/deliverylog"
)

// Params carries the structured template parameters for one send.
type Params map[string]any

// Sender delivers one templated message to one contact. The returned
// status is the provider's initial verdict; later state changes
// (delivered, read) arrive through provider callbacks outside this
// interface.
type Sender interface {
	SendTemplate(ctx context.Context, jid, template, language string, params Params) (deliverylog.Status, error)
}

// NoOpSender accepts everything without side effects. Used in tests and
// in environments without provider credentials.
type NoOpSender struct{}

func (NoOpSender) SendTemplate(ctx context.Context, jid, template, language string, params Params) (deliverylog.Status, error) {
	return deliverylog.StatusAccepted, nil
}

// LoggingSender records every send at info level and reports it as
// accepted. Default for local development.
type LoggingSender struct {
	log *zap.Logger
}

func NewLoggingSender(log *zap.Logger) *LoggingSender {
	return &LoggingSender{log: log.Named("whatsapp.sender")}
}

func (s *LoggingSender) SendTemplate(ctx context.Context, jid, template, language string, params Params) (deliverylog.Status, error) {
	s.log.Info("send template",
		zap.String("jid", jid),
		zap.String("template", template),
		zap.String("language", language),
		zap.Int("params", len(params)),
	)
	return deliverylog.StatusAccepted, nil
}
