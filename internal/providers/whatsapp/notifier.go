package whatsapp

import (
	"context"

	"github.com/tribewave/tribewave/internal/ambassador"
	"github.com/tribewave/tribewave/internal/directory/domain"
)

const promotionTemplate = "ambassador_promotion"

// PromotionNotifier delivers the credential reset of a freshly promoted
// ambassador over the chat channel.
type PromotionNotifier struct {
	sender   Sender
	language string
}

func NewPromotionNotifier(sender Sender, language string) *PromotionNotifier {
	if language == "" {
		language = "pt_BR"
	}
	return &PromotionNotifier{sender: sender, language: language}
}

var _ ambassador.Notifier = (*PromotionNotifier)(nil)

func (n *PromotionNotifier) NotifyPromotion(ctx context.Context, user *domain.User, newPassword string) error {
	_, err := n.sender.SendTemplate(ctx, user.JID, promotionTemplate, n.language, Params{
		"name":     user.Name,
		"password": newPassword,
	})
	return err
}
