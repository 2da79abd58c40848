package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, message *Message) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Message, error)
	ListDue(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]*Message, error)

	// Claim stamps the lock token onto a message only while it is still
	// scheduled and unclaimed. It reports whether this caller won.
	Claim(ctx context.Context, db *gorm.DB, id snowflake.ID, token string, at time.Time) (bool, error)

	MarkSent(ctx context.Context, db *gorm.DB, id snowflake.ID, token string, at time.Time) error
	MarkFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, token string, reason string, at time.Time) error
}
