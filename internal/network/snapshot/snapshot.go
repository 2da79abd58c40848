package snapshot

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/tribewave/tribewave/internal/clock"
	"github.com/tribewave/tribewave/internal/config"
	"github.com/tribewave/tribewave/internal/directory/domain"
	"github.com/tribewave/tribewave/internal/network"
)

// Recomputer refreshes the cached transitive network size on every user
// row. The recompute is idempotent: writing the same count twice leaves
// the row unchanged, so overlapping sweeps are safe.
type Recomputer struct {
	db        *gorm.DB
	log       *zap.Logger
	clock     clock.Clock
	repo      domain.Repository
	traverser *network.Traverser
	dispatch  *config.DispatchConfigHolder
}

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Clock     clock.Clock
	Repo      domain.Repository
	Traverser *network.Traverser
	Dispatch  *config.DispatchConfigHolder
}

func New(p Params) *Recomputer {
	return &Recomputer{
		db:        p.DB,
		log:       p.Log.Named("network.snapshot"),
		clock:     p.Clock,
		repo:      p.Repo,
		traverser: p.Traverser,
		dispatch:  p.Dispatch,
	}
}

// RecomputeUser refreshes one user's cached count and returns the fresh
// value. The write is skipped when the cache already matches.
func (r *Recomputer) RecomputeUser(ctx context.Context, user *domain.User) (int64, error) {
	count, err := r.traverser.CompletedTransitiveCount(ctx, user)
	if err != nil {
		return 0, fmt.Errorf("count network of %s: %w", user.ID, err)
	}
	if count == user.TotalNetworkCount {
		return count, nil
	}
	if err := r.repo.UpdateNetworkCount(ctx, r.db, user.ID, count, r.clock.Now()); err != nil {
		return 0, fmt.Errorf("store network count of %s: %w", user.ID, err)
	}
	return count, nil
}

// RecomputeAll walks every user. One user's failure never blocks the
// rest; failures are joined and reported after the full pass.
func (r *Recomputer) RecomputeAll(ctx context.Context) (int, error) {
	users, err := r.repo.ListAll(ctx, r.db)
	if err != nil {
		return 0, err
	}

	workers := 1
	if r.dispatch != nil {
		if n := r.dispatch.Current().RecomputeWorkers; n > 0 {
			workers = n
		}
	}

	jobs := make(chan *domain.User)
	results := make(chan error)

	for i := 0; i < workers; i++ {
		go func() {
			for user := range jobs {
				if ctx.Err() != nil {
					results <- ctx.Err()
					continue
				}
				_, err := r.RecomputeUser(ctx, user)
				results <- err
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, user := range users {
			jobs <- user
		}
	}()

	var (
		processed int
		errs      []error
	)
	for range users {
		if err := <-results; err != nil {
			errs = append(errs, err)
			continue
		}
		processed++
	}

	if len(errs) > 0 {
		r.log.Warn("network recompute finished with failures",
			zap.Int("processed", processed),
			zap.Int("failed", len(errs)),
		)
	}
	return processed, errors.Join(errs...)
}

var Module = fx.Module("network.snapshot",
	fx.Provide(New),
)
