package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	"github.com/tribewave/tribewave/internal/config"
	"github.com/tribewave/tribewave/internal/directory/domain"
	"github.com/tribewave/tribewave/internal/password"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	superadminName = "Superadmin"
	superadminCode = "ROOT0001"
)

// EnsureSuperadmin creates the root operator account on first startup.
// The phone comes from configuration; without it, seeding is skipped so
// test and worker deployments boot clean.
func EnsureSuperadmin(db *gorm.DB, cfg config.Config, log *zap.Logger, node *snowflake.Node) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}
	if cfg.SeedSuperadminPhone == "" {
		return nil
	}

	jid := domain.JIDFromPhone(cfg.SeedSuperadminPhone)
	if jid == "" {
		return errors.New("seed superadmin phone has no digits")
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing domain.User
		err := tx.WithContext(ctx).
			Where("role = ?", domain.RoleSuperadmin).
			First(&existing).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		plain, err := password.Generate(16)
		if err != nil {
			return err
		}
		hashed, err := password.Hash(plain)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		user := domain.User{
			ID:           node.Generate(),
			Name:         superadminName,
			Phone:        jid[:len(jid)-len("@s.whatsapp.net")],
			JID:          jid,
			Code:         superadminCode,
			Role:         domain.RoleSuperadmin,
			PasswordHash: hashed,
			FilledDOB:    true,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := tx.WithContext(ctx).Create(&user).Error; err != nil {
			return err
		}
		log.Info("superadmin seeded",
			zap.String("user_id", user.ID.String()),
			zap.String("code", user.Code),
		)
		return nil
	})
}

var Module = fx.Module("seed",
	fx.Invoke(EnsureSuperadmin),
)
