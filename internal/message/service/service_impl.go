package service

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/tribewave/tribewave/internal/clock"
	"github.com/tribewave/tribewave/internal/config"
	"github.com/tribewave/tribewave/internal/message/domain"
	"github.com/tribewave/tribewave/internal/segment"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Clock    clock.Clock
	GenID    *snowflake.Node
	Repo     domain.Repository
	Resolver *segment.Resolver
	Dispatch *config.DispatchConfigHolder
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	clock    clock.Clock
	genID    *snowflake.Node
	repo     domain.Repository
	resolver *segment.Resolver
	dispatch *config.DispatchConfigHolder
}

func New(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("message.service"),
		clock:    p.Clock,
		genID:    p.GenID,
		repo:     p.Repo,
		resolver: p.Resolver,
		dispatch: p.Dispatch,
	}
}

// Create resolves the audience once and freezes the result onto the
// message. Zero recipients is a valid, sendable-as-no-op message.
func (s *Service) Create(ctx context.Context, req domain.CreateMessageRequest) (domain.Message, error) {
	template := strings.TrimSpace(req.TemplateName)
	if template == "" {
		return domain.Message{}, domain.ErrInvalidTemplate
	}
	if req.ScheduledAt.IsZero() {
		return domain.Message{}, domain.ErrInvalidSchedule
	}

	recipients, err := s.resolver.Resolve(ctx, req.Audience)
	if err != nil {
		return domain.Message{}, err
	}

	cfg := s.dispatch.Current()
	if cfg.MaxRecipients > 0 && len(recipients) > cfg.MaxRecipients {
		return domain.Message{}, domain.ErrTooManyContacts
	}

	language := strings.TrimSpace(req.Language)
	if language == "" {
		language = cfg.DefaultLanguage
	}

	params := req.Params
	if params == nil {
		params = map[string]any{}
	}
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return domain.Message{}, err
	}
	audienceJSON, err := json.Marshal(req.Audience)
	if err != nil {
		return domain.Message{}, err
	}
	snapshot, err := json.Marshal(recipients)
	if err != nil {
		return domain.Message{}, err
	}

	now := s.clock.Now()
	message := domain.Message{
		ID:             s.genID.Generate(),
		Title:          strings.TrimSpace(req.Title),
		TemplateName:   template,
		Language:       language,
		Params:         datatypes.JSON(paramsJSON),
		Audience:       datatypes.JSON(audienceJSON),
		ContactsResult: datatypes.JSON(snapshot),
		ContactsCount:  int64(len(recipients)),
		ScheduledAt:    req.ScheduledAt.UTC(),
		Status:         domain.StatusScheduled,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.repo.Insert(ctx, s.db, &message); err != nil {
		return domain.Message{}, err
	}

	s.log.Info("message scheduled",
		zap.String("message_id", message.ID.String()),
		zap.String("template", message.TemplateName),
		zap.Int64("contacts", message.ContactsCount),
		zap.Time("scheduled_at", message.ScheduledAt),
	)
	return message, nil
}

func (s *Service) GetByID(ctx context.Context, req domain.GetMessageRequest) (domain.Message, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(req.ID))
	if err != nil || id == 0 {
		return domain.Message{}, domain.ErrInvalidID
	}

	message, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.Message{}, err
	}
	if message == nil {
		return domain.Message{}, domain.ErrNotFound
	}
	return *message, nil
}
