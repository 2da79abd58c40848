package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	"github.com/tribewave/tribewave/internal/message/domain"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, message *domain.Message) error {
	return db.WithContext(ctx).Create(message).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Message, error) {
	var message domain.Message
	err := db.WithContext(ctx).
		Where("id = ?", id).
		Take(&message).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &message, nil
}

func (r *repo) ListDue(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]*domain.Message, error) {
	var messages []*domain.Message
	stmt := db.WithContext(ctx).
		Where("status = ? AND scheduled_at <= ? AND lock_token IS NULL", domain.StatusScheduled, now).
		Order("scheduled_at asc, id asc")
	if limit > 0 {
		stmt = stmt.Limit(limit)
	}
	if err := stmt.Find(&messages).Error; err != nil {
		return nil, err
	}
	return messages, nil
}

func (r *repo) Claim(ctx context.Context, db *gorm.DB, id snowflake.ID, token string, at time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE messages
		 SET status = ?, lock_token = ?, locked_at = ?, updated_at = ?
		 WHERE id = ? AND status = ? AND lock_token IS NULL`,
		domain.StatusSending,
		token,
		at,
		at,
		id,
		domain.StatusScheduled,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) MarkSent(ctx context.Context, db *gorm.DB, id snowflake.ID, token string, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE messages
		 SET status = ?, sent_at = ?, last_error = '', updated_at = ?
		 WHERE id = ? AND lock_token = ?`,
		domain.StatusSent,
		at,
		at,
		id,
		token,
	).Error
}

func (r *repo) MarkFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, token string, reason string, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE messages
		 SET status = ?, last_error = ?, updated_at = ?
		 WHERE id = ? AND lock_token = ?`,
		domain.StatusFailed,
		reason,
		at,
		id,
		token,
	).Error
}
