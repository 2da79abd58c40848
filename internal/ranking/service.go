package ranking

import (
	"context"
	"errors"
	"math"
	"sort"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/tribewave/tribewave/internal/clock"
	"github.com/tribewave/tribewave/internal/config"
	"github.com/tribewave/tribewave/internal/directory/domain"
)

var (
	ErrForbidden       = errors.New("forbidden")
	ErrInvalidTimezone = errors.New("invalid_timezone")
)

// Entry is one leaderboard row. GrowthInfinite marks the previous-zero,
// current-positive case where no finite percentage exists.
type Entry struct {
	Position        int          `json:"position"`
	UserID          snowflake.ID `json:"user_id"`
	Name            string       `json:"name"`
	Code            string       `json:"code"`
	Role            domain.Role  `json:"role"`
	MembersCurrent  int64        `json:"members_current"`
	MembersPrevious int64        `json:"members_previous"`
	NetworkCurrent  int64        `json:"network_current"`
	NetworkPrevious int64        `json:"network_previous"`
	GrowthPct       int          `json:"growth_pct"`
	GrowthInfinite  bool         `json:"growth_infinite"`
}

type LeaderboardRequest struct {
	Actor domain.User
	Limit int
}

type LeaderboardResponse struct {
	Week    Week    `json:"week"`
	Entries []Entry `json:"entries"`
}

// Growth returns the rounded percentage change from prev to cur, or
// infinite=true when prev is zero and cur is positive. Zero to zero is
// flat, not infinite.
func Growth(prev, cur int64) (pct int, infinite bool) {
	if prev == 0 {
		if cur > 0 {
			return 0, true
		}
		return 0, false
	}
	return int(math.Round(float64(cur-prev) / float64(prev) * 100)), false
}

type Service struct {
	db   *gorm.DB
	log  *zap.Logger
	cfg  config.Config
	clk  clock.Clock
	repo domain.Repository
}

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Cfg   config.Config
	Clock clock.Clock
	Repo  domain.Repository
}

func New(p Params) *Service {
	return &Service{
		db:   p.DB,
		log:  p.Log.Named("ranking.service"),
		cfg:  p.Cfg,
		clk:  p.Clock,
		repo: p.Repo,
	}
}

// Leaderboard ranks users by network size over the last completed week.
// The actor is explicit; its role decides whether the board covers the
// whole directory or only the actor's own network.
func (s *Service) Leaderboard(ctx context.Context, req LeaderboardRequest) (LeaderboardResponse, error) {
	scope := domain.ScopeFor(req.Actor.Role)
	if scope == domain.ScopeNone {
		return LeaderboardResponse{}, ErrForbidden
	}

	loc, err := time.LoadLocation(s.cfg.RankingTimezone)
	if err != nil {
		return LeaderboardResponse{}, ErrInvalidTimezone
	}

	week := CompletedWeek(s.clk.Now(), loc)
	prev := week.Previous()

	users, err := s.repo.ListAll(ctx, s.db)
	if err != nil {
		return LeaderboardResponse{}, err
	}

	idx := newGraphIndex(users)

	var allowed map[snowflake.ID]struct{}
	if scope == domain.ScopeNetwork {
		allowed = idx.networkOf(req.Actor.Code)
		allowed[req.Actor.ID] = struct{}{}
	}

	entries := make([]Entry, 0, len(users))
	for _, user := range users {
		if allowed != nil {
			if _, ok := allowed[user.ID]; !ok {
				continue
			}
		}

		guests := idx.children[user.Code]
		membersCurrent := countCreatedBy(guests, week.End)
		if membersCurrent == 0 {
			// Zero-guest users are excluded, not ranked at the bottom.
			continue
		}
		membersPrevious := countCreatedBy(guests, prev.End)

		networkCurrent := user.TotalNetworkCount
		networkPrevious := idx.completedNetworkBy(user, prev.End)

		pct, infinite := Growth(networkPrevious, networkCurrent)

		entries = append(entries, Entry{
			UserID:          user.ID,
			Name:            user.Name,
			Code:            user.Code,
			Role:            user.Role,
			MembersCurrent:  membersCurrent,
			MembersPrevious: membersPrevious,
			NetworkCurrent:  networkCurrent,
			NetworkPrevious: networkPrevious,
			GrowthPct:       pct,
			GrowthInfinite:  infinite,
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].NetworkCurrent != entries[j].NetworkCurrent {
			return entries[i].NetworkCurrent > entries[j].NetworkCurrent
		}
		return entries[i].MembersCurrent > entries[j].MembersCurrent
	})

	if req.Limit > 0 && len(entries) > req.Limit {
		entries = entries[:req.Limit]
	}
	for i := range entries {
		entries[i].Position = i + 1
	}

	return LeaderboardResponse{Week: week, Entries: entries}, nil
}

func countCreatedBy(users []*domain.User, cutoff time.Time) int64 {
	var n int64
	for _, u := range users {
		if !u.CreatedAt.After(cutoff) {
			n++
		}
	}
	return n
}

// graphIndex is an in-memory referral index so the leaderboard resolves
// with a single directory read instead of one traversal per row.
type graphIndex struct {
	children map[string][]*domain.User
}

func newGraphIndex(users []*domain.User) *graphIndex {
	idx := &graphIndex{children: make(map[string][]*domain.User, len(users))}
	for _, u := range users {
		if u.InvitationCode == nil || *u.InvitationCode == "" {
			continue
		}
		idx.children[*u.InvitationCode] = append(idx.children[*u.InvitationCode], u)
	}
	return idx
}

// networkOf returns the descendant ID set of the user holding code.
func (g *graphIndex) networkOf(code string) map[snowflake.ID]struct{} {
	visited := make(map[snowflake.ID]struct{})
	frontier := []string{code}
	for len(frontier) > 0 {
		var next []string
		for _, c := range frontier {
			for _, guest := range g.children[c] {
				if _, seen := visited[guest.ID]; seen {
					continue
				}
				visited[guest.ID] = struct{}{}
				if guest.Code != "" {
					next = append(next, guest.Code)
				}
			}
		}
		frontier = next
	}
	return visited
}

// completedNetworkBy approximates the network size at cutoff: completed
// descendants created on or before it. True point-in-time sizes are not
// tracked, only the running cache is.
func (g *graphIndex) completedNetworkBy(root *domain.User, cutoff time.Time) int64 {
	visited := map[snowflake.ID]struct{}{root.ID: {}}
	frontier := []string{root.Code}
	var count int64
	for len(frontier) > 0 {
		var next []string
		for _, c := range frontier {
			for _, guest := range g.children[c] {
				if _, seen := visited[guest.ID]; seen {
					continue
				}
				visited[guest.ID] = struct{}{}
				if guest.Completed() && !guest.CreatedAt.After(cutoff) {
					count++
				}
				if guest.Code != "" {
					next = append(next, guest.Code)
				}
			}
		}
		frontier = next
	}
	return count
}

var Module = fx.Module("ranking.service",
	fx.Provide(New),
)
