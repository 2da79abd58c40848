package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/tribewave/tribewave/internal/clock"
	"github.com/tribewave/tribewave/internal/directory/domain"
	"github.com/tribewave/tribewave/pkg/db"
	"github.com/tribewave/tribewave/pkg/db/pagination"
)

// Referral codes are short enough to dictate over voice and exclude the
// characters people misread (0/O, 1/I/l).
const (
	codeAlphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZ"
	codeLength   = 8
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Clock clock.Clock
	GenID *snowflake.Node
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock
	genID *snowflake.Node
	repo  domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("directory.service"),
		clock: p.Clock,
		genID: p.GenID,
		repo:  p.Repo,
	}
}

func (s *Service) Register(ctx context.Context, req domain.RegisterUserRequest) (domain.User, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.User{}, domain.ErrInvalidName
	}

	jid := domain.JIDFromPhone(req.Phone)
	if jid == "" {
		return domain.User{}, domain.ErrInvalidPhone
	}
	phone := strings.TrimSuffix(jid, "@s.whatsapp.net")

	var invitation *string
	if code := strings.ToUpper(strings.TrimSpace(req.InvitationCode)); code != "" {
		inviter, err := s.repo.FindByCode(ctx, s.db, code)
		if err != nil {
			return domain.User{}, err
		}
		if inviter == nil {
			return domain.User{}, domain.ErrUnknownInvitation
		}
		invitation = &inviter.Code
	}

	code, err := s.newCode(ctx)
	if err != nil {
		return domain.User{}, err
	}

	now := s.clock.Now()
	user := domain.User{
		ID:             s.genID.Generate(),
		Name:           name,
		Phone:          phone,
		JID:            jid,
		Code:           code,
		InvitationCode: invitation,
		Role:           domain.RoleMember,
		City:           strings.TrimSpace(req.City),
		Neighborhood:   strings.TrimSpace(req.Neighborhood),
		Gender:         strings.TrimSpace(req.Gender),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.repo.Insert(ctx, s.db, &user); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.User{}, domain.ErrPhoneTaken
		}
		return domain.User{}, err
	}

	s.log.Info("user registered",
		zap.String("user_id", user.ID.String()),
		zap.String("code", user.Code),
		zap.Bool("invited", invitation != nil),
	)

	return user, nil
}

func (s *Service) CompleteQuestionnaire(ctx context.Context, req domain.CompleteQuestionnaireRequest) (domain.User, error) {
	code := strings.ToUpper(strings.TrimSpace(req.Code))
	if code == "" {
		return domain.User{}, domain.ErrInvalidCode
	}

	user, err := s.repo.FindByCode(ctx, s.db, code)
	if err != nil {
		return domain.User{}, err
	}
	if user == nil {
		return domain.User{}, domain.ErrNotFound
	}

	if birthdate := strings.TrimSpace(req.Birthdate); birthdate != "" {
		if _, perr := time.Parse(domain.BirthdateLayout, birthdate); perr != nil {
			return domain.User{}, domain.ErrInvalidBirthdate
		}
		user.Birthdate = birthdate
		user.FilledDOB = true
	}
	if email := strings.TrimSpace(req.Email); email != "" {
		user.Email = email
		user.FilledEmail = true
	}
	if v := strings.TrimSpace(req.PrimaryConcern); v != "" {
		user.PrimaryConcern = v
	}
	if v := strings.TrimSpace(req.SecondaryConcern); v != "" {
		user.SecondaryConcern = v
	}
	user.UpdatedAt = s.clock.Now()

	if err := s.repo.Update(ctx, s.db, user); err != nil {
		return domain.User{}, err
	}

	return *user, nil
}

func (s *Service) GetByID(ctx context.Context, req domain.GetUserRequest) (domain.User, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(req.ID))
	if err != nil || id == 0 {
		return domain.User{}, domain.ErrInvalidID
	}

	user, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.User{}, err
	}
	if user == nil {
		return domain.User{}, domain.ErrNotFound
	}
	return *user, nil
}

func (s *Service) GetByCode(ctx context.Context, req domain.GetUserByCodeRequest) (domain.User, error) {
	code := strings.ToUpper(strings.TrimSpace(req.Code))
	if code == "" {
		return domain.User{}, domain.ErrInvalidCode
	}

	user, err := s.repo.FindByCode(ctx, s.db, code)
	if err != nil {
		return domain.User{}, err
	}
	if user == nil {
		return domain.User{}, domain.ErrNotFound
	}
	return *user, nil
}

func (s *Service) List(ctx context.Context, req domain.ListUserRequest) (domain.ListUserResponse, error) {
	filter := domain.ListUserFilter{
		City:        strings.TrimSpace(req.City),
		Completed:   req.Completed,
		CreatedFrom: req.CreatedFrom,
		CreatedTo:   req.CreatedTo,
	}
	if role := strings.TrimSpace(req.Role); role != "" {
		if !domain.Role(role).Valid() {
			return domain.ListUserResponse{}, domain.ErrInvalidRole
		}
		filter.Role = domain.Role(role)
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	items, err := s.repo.List(ctx, s.db, filter, pagination.Pagination{
		PageToken: req.PageToken,
		PageSize:  int(pageSize),
	})
	if err != nil {
		return domain.ListUserResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, pageSize, func(user *domain.User) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        user.ID.String(),
			CreatedAt: user.CreatedAt.Format(time.RFC3339),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo != nil && pageInfo.HasMore && len(items) > int(pageSize) {
		items = items[:pageSize]
	}

	users := make([]domain.User, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		users = append(users, *item)
	}

	resp := domain.ListUserResponse{Users: users}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	return resp, nil
}

// newCode draws referral codes until one clears the unique index. Collisions
// at this alphabet and length are rare, so the retry loop settles fast.
func (s *Service) newCode(ctx context.Context) (string, error) {
	for attempt := 0; attempt < 5; attempt++ {
		code, err := gonanoid.Generate(codeAlphabet, codeLength)
		if err != nil {
			return "", err
		}
		existing, err := s.repo.FindByCode(ctx, s.db, code)
		if err != nil {
			return "", err
		}
		if existing == nil {
			return code, nil
		}
	}
	return "", domain.ErrInvalidCode
}
