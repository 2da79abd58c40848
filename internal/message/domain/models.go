package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Status is the lifecycle of a scheduled message as a whole. Delivery
// state per recipient lives in the delivery log.
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusSending   Status = "sending"
	StatusSent      Status = "sent"
	StatusFailed    Status = "failed"
)

type Message struct {
	ID           snowflake.ID   `gorm:"primaryKey" json:"id"`
	Title        string         `gorm:"not null;default:''" json:"title"`
	TemplateName string         `gorm:"not null" json:"template_name"`
	Language     string         `gorm:"not null;default:'pt_BR'" json:"language"`
	Params       datatypes.JSON `gorm:"type:jsonb;not null;default:'{}'" json:"params,omitempty"`
	Audience     datatypes.JSON `gorm:"type:jsonb;not null;default:'{}'" json:"audience,omitempty"`

	// ContactsResult is the recipient snapshot materialized at creation.
	// It is never re-resolved, even if the directory changes before the
	// scheduled send.
	ContactsResult datatypes.JSON `gorm:"type:jsonb;not null;default:'[]'" json:"contacts_result,omitempty"`
	ContactsCount  int64          `gorm:"not null;default:0" json:"contacts_count"`

	ScheduledAt time.Time  `gorm:"not null;index:idx_messages_status_scheduled_at,priority:2" json:"scheduled_at"`
	Status      Status     `gorm:"not null;default:'scheduled';index:idx_messages_status_scheduled_at,priority:1" json:"status"`
	LockToken   *string    `json:"-"`
	LockedAt    *time.Time `json:"-"`
	SentAt      *time.Time `json:"sent_at,omitempty"`
	LastError   string     `gorm:"not null;default:''" json:"last_error,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}
