package ambassador

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/tribewave/tribewave/internal/clock"
	"github.com/tribewave/tribewave/internal/directory/domain"
	"github.com/tribewave/tribewave/internal/network"
	"github.com/tribewave/tribewave/internal/password"
)

// Notifier delivers the freshly generated credential to a promoted user.
type Notifier interface {
	NotifyPromotion(ctx context.Context, user *domain.User, newPassword string) error
}

// Promoter runs the member-to-ambassador sweep. The transition fires
// once a member has at least one direct guest who completed the date of
// birth step, and it never runs backwards: losing that guest later does
// not demote anyone because the sweep only ever looks at members.
type Promoter struct {
	db        *gorm.DB
	log       *zap.Logger
	clock     clock.Clock
	repo      domain.Repository
	traverser *network.Traverser
	notifier  Notifier
}

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Clock     clock.Clock
	Repo      domain.Repository
	Traverser *network.Traverser
	Notifier  Notifier `optional:"true"`
}

func New(p Params) *Promoter {
	return &Promoter{
		db:        p.DB,
		log:       p.Log.Named("ambassador.promoter"),
		clock:     p.Clock,
		repo:      p.Repo,
		traverser: p.Traverser,
		notifier:  p.Notifier,
	}
}

// PromoteEligible scans every member and promotes the eligible ones.
// One member's failure never blocks the rest of the sweep.
func (p *Promoter) PromoteEligible(ctx context.Context) (int, error) {
	members, err := p.repo.ListByRole(ctx, p.db, domain.RoleMember)
	if err != nil {
		return 0, err
	}

	var (
		promoted int
		errs     []error
	)
	for _, member := range members {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		ok, err := p.promoteOne(ctx, member)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ok {
			promoted++
		}
	}

	if promoted > 0 {
		p.log.Info("promotion sweep finished",
			zap.Int("candidates", len(members)),
			zap.Int("promoted", promoted),
		)
	}
	return promoted, errors.Join(errs...)
}

func (p *Promoter) promoteOne(ctx context.Context, member *domain.User) (bool, error) {
	guests, err := p.traverser.DirectGuests(ctx, member)
	if err != nil {
		return false, fmt.Errorf("guests of %s: %w", member.ID, err)
	}

	eligible := false
	for _, guest := range guests {
		if guest.FilledDOB {
			eligible = true
			break
		}
	}
	if !eligible {
		return false, nil
	}

	newPassword, err := password.Generate(12)
	if err != nil {
		return false, fmt.Errorf("generate credential for %s: %w", member.ID, err)
	}
	hash, err := password.Hash(newPassword)
	if err != nil {
		return false, fmt.Errorf("hash credential for %s: %w", member.ID, err)
	}

	// Conditional on the row still being a member, so a concurrent sweep
	// promotes at most once and the notification fires at most once.
	applied, err := p.repo.UpdateRole(ctx, p.db, member.ID, domain.RoleMember, domain.RoleAmbassador, hash, p.clock.Now())
	if err != nil {
		return false, fmt.Errorf("promote %s: %w", member.ID, err)
	}
	if !applied {
		return false, nil
	}

	p.log.Info("member promoted to ambassador", zap.String("user_id", member.ID.String()))

	if p.notifier != nil {
		if err := p.notifier.NotifyPromotion(ctx, member, newPassword); err != nil {
			// The role change stands; only the credential delivery failed.
			p.log.Warn("promotion notification failed",
				zap.String("user_id", member.ID.String()),
				zap.Error(err),
			)
		}
	}
	return true, nil
}

var Module = fx.Module("ambassador.promoter",
	fx.Provide(New),
)
