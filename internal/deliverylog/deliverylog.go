package deliverylog

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

// Status is the per-recipient delivery state reported by the messaging
// provider. The set is owned by the provider; it is persisted here for
// reporting only.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusAccepted  Status = "accepted"
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusRead      Status = "read"
	StatusFailed    Status = "failed"
)

type DeliveryLog struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	MessageID   snowflake.ID `gorm:"not null;index:idx_delivery_logs_message_id" json:"message_id"`
	ContactName string       `gorm:"not null;default:''" json:"contact_name"`
	ContactJID  string       `gorm:"column:contact_jid;not null" json:"contact_jid"`
	Status      Status       `gorm:"not null;default:'queued'" json:"status"`
	Detail      string       `gorm:"not null;default:''" json:"detail"`
	SentAt      *time.Time   `json:"sent_at,omitempty"`
	CreatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

type Repository interface {
	Append(ctx context.Context, db *gorm.DB, entry *DeliveryLog) error
	ListByMessage(ctx context.Context, db *gorm.DB, messageID snowflake.ID) ([]*DeliveryLog, error)
}

type repo struct{}

func Provide() Repository {
	return &repo{}
}

func (r *repo) Append(ctx context.Context, db *gorm.DB, entry *DeliveryLog) error {
	return db.WithContext(ctx).Create(entry).Error
}

func (r *repo) ListByMessage(ctx context.Context, db *gorm.DB, messageID snowflake.ID) ([]*DeliveryLog, error) {
	var entries []*DeliveryLog
	err := db.WithContext(ctx).
		Where("message_id = ?", messageID).
		Order("created_at asc, id asc").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

var Module = fx.Module("deliverylog",
	fx.Provide(Provide),
)
