package network

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/tribewave/tribewave/internal/directory/domain"
)

// Traverser walks the referral graph. Membership edges live on the
// invited side (users.invitation_code points at the inviter's code), so
// every hop is one IN query over the current frontier's codes.
type Traverser struct {
	db   *gorm.DB
	log  *zap.Logger
	repo domain.Repository
}

type Params struct {
	fx.In

	DB   *gorm.DB
	Log  *zap.Logger
	Repo domain.Repository
}

func New(p Params) *Traverser {
	return &Traverser{
		db:   p.DB,
		log:  p.Log.Named("network.traverser"),
		repo: p.Repo,
	}
}

// DirectGuests returns the users who registered with root's code.
func (t *Traverser) DirectGuests(ctx context.Context, root *domain.User) ([]*domain.User, error) {
	if root == nil || root.Code == "" {
		return nil, nil
	}
	return t.repo.FindByInvitationCodes(ctx, t.db, []string{root.Code})
}

// AllDescendants returns every user reachable from root through referral
// edges, breadth-first. Visited bookkeeping makes the walk terminate even
// if bad data forms a cycle; revisits are dropped and logged once.
func (t *Traverser) AllDescendants(ctx context.Context, root *domain.User) ([]*domain.User, error) {
	if root == nil || root.Code == "" {
		return nil, nil
	}

	visited := map[snowflake.ID]struct{}{root.ID: {}}
	frontier := []string{root.Code}
	var descendants []*domain.User

	for len(frontier) > 0 {
		batch, err := t.repo.FindByInvitationCodes(ctx, t.db, frontier)
		if err != nil {
			return nil, err
		}

		frontier = frontier[:0]
		for _, guest := range batch {
			if _, seen := visited[guest.ID]; seen {
				t.log.Warn("referral cycle detected",
					zap.String("root_id", root.ID.String()),
					zap.String("user_id", guest.ID.String()),
				)
				continue
			}
			visited[guest.ID] = struct{}{}
			descendants = append(descendants, guest)
			if guest.Code != "" {
				frontier = append(frontier, guest.Code)
			}
		}
	}

	return descendants, nil
}

// AllDescendantIDs is AllDescendants reduced to the ID set.
func (t *Traverser) AllDescendantIDs(ctx context.Context, root *domain.User) ([]snowflake.ID, error) {
	descendants, err := t.AllDescendants(ctx, root)
	if err != nil {
		return nil, err
	}
	ids := make([]snowflake.ID, 0, len(descendants))
	for _, d := range descendants {
		ids = append(ids, d.ID)
	}
	return ids, nil
}

// TwoLevelCount counts direct guests plus their direct guests. This is
// the shallow figure shown next to the full transitive network size;
// the two differ on any chain deeper than two hops.
func (t *Traverser) TwoLevelCount(ctx context.Context, root *domain.User) (int64, error) {
	direct, err := t.DirectGuests(ctx, root)
	if err != nil {
		return 0, err
	}
	count := int64(len(direct))
	if count == 0 {
		return 0, nil
	}

	codes := make([]string, 0, len(direct))
	for _, guest := range direct {
		if guest.Code != "" {
			codes = append(codes, guest.Code)
		}
	}
	second, err := t.repo.FindByInvitationCodes(ctx, t.db, codes)
	if err != nil {
		return 0, err
	}
	return count + int64(len(second)), nil
}

// TransitiveCount counts every reachable descendant at any depth.
func (t *Traverser) TransitiveCount(ctx context.Context, root *domain.User) (int64, error) {
	descendants, err := t.AllDescendants(ctx, root)
	if err != nil {
		return 0, err
	}
	return int64(len(descendants)), nil
}

// CompletedTransitiveCount counts reachable descendants that finished
// the questionnaire. The walk still passes through incomplete users, so
// a completed guest behind an incomplete one is counted.
func (t *Traverser) CompletedTransitiveCount(ctx context.Context, root *domain.User) (int64, error) {
	descendants, err := t.AllDescendants(ctx, root)
	if err != nil {
		return 0, err
	}
	var count int64
	for _, d := range descendants {
		if d.Completed() {
			count++
		}
	}
	return count, nil
}

var Module = fx.Module("network.traverser",
	fx.Provide(New),
)
