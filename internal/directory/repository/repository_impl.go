package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/tribewave/tribewave/internal/directory/domain"
	"github.com/tribewave/tribewave/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, user *domain.User) error {
	return db.WithContext(ctx).Create(user).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.User, error) {
	var user domain.User
	err := db.WithContext(ctx).
		Where("id = ?", id).
		Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *repo) FindByCode(ctx context.Context, db *gorm.DB, code string) (*domain.User, error) {
	var user domain.User
	err := db.WithContext(ctx).
		Where("code = ?", code).
		Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *repo) FindByPhone(ctx context.Context, db *gorm.DB, phone string) (*domain.User, error) {
	var user domain.User
	err := db.WithContext(ctx).
		Where("phone = ?", phone).
		Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *repo) FindByIDs(ctx context.Context, db *gorm.DB, ids []snowflake.ID) ([]*domain.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var users []*domain.User
	err := db.WithContext(ctx).
		Where("id IN ?", ids).
		Find(&users).Error
	if err != nil {
		return nil, err
	}
	return users, nil
}

func (r *repo) FindByInvitationCodes(ctx context.Context, db *gorm.DB, codes []string) ([]*domain.User, error) {
	if len(codes) == 0 {
		return nil, nil
	}
	var users []*domain.User
	err := db.WithContext(ctx).
		Where("invitation_code IN ?", codes).
		Order("created_at asc, id asc").
		Find(&users).Error
	if err != nil {
		return nil, err
	}
	return users, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListUserFilter, page pagination.Pagination) ([]*domain.User, error) {
	var users []*domain.User
	stmt := db.WithContext(ctx).Model(&domain.User{})
	if filter.Role != "" {
		stmt = stmt.Where("role = ?", filter.Role)
	}
	if filter.City != "" {
		stmt = stmt.Where("city = ?", filter.City)
	}
	if filter.Completed != nil {
		stmt = stmt.Where("filled_dob = ?", *filter.Completed)
	}
	if filter.CreatedFrom != nil {
		stmt = stmt.Where("created_at >= ?", *filter.CreatedFrom)
	}
	if filter.CreatedTo != nil {
		stmt = stmt.Where("created_at <= ?", *filter.CreatedTo)
	}
	if page.PageToken != "" {
		cursor, err := pagination.DecodeCursor(page.PageToken)
		if err != nil {
			return nil, err
		}
		if id, perr := snowflake.ParseString(cursor.ID); perr == nil {
			stmt = stmt.Where("(created_at, id) < (?, ?)", cursor.CreatedAt, id)
		}
	}
	if page.PageSize > 0 {
		stmt = stmt.Limit(page.PageSize + 1)
	}
	err := stmt.
		Order("created_at desc, id desc").
		Find(&users).Error
	if err != nil {
		return nil, err
	}
	return users, nil
}

func (r *repo) ListByRole(ctx context.Context, db *gorm.DB, role domain.Role) ([]*domain.User, error) {
	var users []*domain.User
	err := db.WithContext(ctx).
		Where("role = ?", role).
		Order("created_at asc, id asc").
		Find(&users).Error
	if err != nil {
		return nil, err
	}
	return users, nil
}

func (r *repo) ListAll(ctx context.Context, db *gorm.DB) ([]*domain.User, error) {
	var users []*domain.User
	err := db.WithContext(ctx).
		Order("created_at asc, id asc").
		Find(&users).Error
	if err != nil {
		return nil, err
	}
	return users, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, user *domain.User) error {
	return db.WithContext(ctx).Save(user).Error
}

func (r *repo) UpdateNetworkCount(ctx context.Context, db *gorm.DB, id snowflake.ID, count int64, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE users SET total_network_count = ?, updated_at = ? WHERE id = ?`,
		count,
		at,
		id,
	).Error
}

// UpdateRole moves a user from one role to another only when the row
// still carries the expected source role, which makes retries and
// concurrent sweeps harmless. It reports whether the transition fired.
func (r *repo) UpdateRole(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to domain.Role, passwordHash string, at time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE users SET role = ?, password_hash = ?, updated_at = ? WHERE id = ? AND role = ?`,
		to,
		passwordHash,
		at,
		id,
		from,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
