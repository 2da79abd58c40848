package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/tribewave/tribewave/pkg/db/pagination"
	"gorm.io/gorm"
)

type ListUserFilter struct {
	Role        Role
	City        string
	Completed   *bool
	CreatedFrom *time.Time
	CreatedTo   *time.Time
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, user *User) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*User, error)
	FindByCode(ctx context.Context, db *gorm.DB, code string) (*User, error)
	FindByPhone(ctx context.Context, db *gorm.DB, phone string) (*User, error)
	FindByIDs(ctx context.Context, db *gorm.DB, ids []snowflake.ID) ([]*User, error)

	// FindByInvitationCodes returns every user whose invitation_code is in
	// codes. It is the frontier-expansion query of the network traversal.
	FindByInvitationCodes(ctx context.Context, db *gorm.DB, codes []string) ([]*User, error)

	List(ctx context.Context, db *gorm.DB, filter ListUserFilter, page pagination.Pagination) ([]*User, error)
	ListByRole(ctx context.Context, db *gorm.DB, role Role) ([]*User, error)
	ListAll(ctx context.Context, db *gorm.DB) ([]*User, error)

	Update(ctx context.Context, db *gorm.DB, user *User) error
	UpdateNetworkCount(ctx context.Context, db *gorm.DB, id snowflake.ID, count int64, at time.Time) error
	UpdateRole(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to Role, passwordHash string, at time.Time) (bool, error)
}
