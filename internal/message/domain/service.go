package domain

import (
	"context"
	"errors"
	"time"

	"github.com/tribewave/tribewave/internal/segment"
)

type CreateMessageRequest struct {
	Title        string
	TemplateName string
	Language     string
	Params       map[string]any
	Audience     segment.Audience
	ScheduledAt  time.Time
}

type GetMessageRequest struct {
	ID string
}

type Service interface {
	Create(context.Context, CreateMessageRequest) (Message, error)
	GetByID(context.Context, GetMessageRequest) (Message, error)
}

var (
	ErrInvalidTemplate = errors.New("invalid_template")
	ErrInvalidSchedule = errors.New("invalid_schedule")
	ErrInvalidID       = errors.New("invalid_id")
	ErrTooManyContacts = errors.New("too_many_contacts")
	ErrNotFound        = errors.New("not_found")
)
