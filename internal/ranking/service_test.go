package ranking

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/tribewave/tribewave/internal/clock"
	"github.com/tribewave/tribewave/internal/config"
	"github.com/tribewave/tribewave/internal/directory/domain"
	"github.com/tribewave/tribewave/internal/directory/repository"
	"github.com/tribewave/tribewave/pkg/db"
)

// Wednesday; the completed week ends Sunday 2026-03-01.
var testNow = time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *gorm.DB, *snowflake.Node) {
	t.Helper()

	gdb, err := db.NewTest()
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := gdb.AutoMigrate(&domain.User{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}

	svc := New(Params{
		DB:    gdb,
		Log:   zap.NewNop(),
		Cfg:   config.Config{RankingTimezone: "UTC"},
		Clock: clock.NewFakeClock(testNow),
		Repo:  repository.Provide(),
	})
	return svc, gdb, node
}

type seed struct {
	code      string
	invitedBy string
	role      domain.Role
	createdAt time.Time
	network   int64
}

func seedRankedUser(t *testing.T, gdb *gorm.DB, node *snowflake.Node, s seed) *domain.User {
	t.Helper()

	role := s.role
	if role == "" {
		role = domain.RoleMember
	}
	createdAt := s.createdAt
	if createdAt.IsZero() {
		createdAt = testNow.AddDate(0, 0, -30)
	}
	user := &domain.User{
		ID:                node.Generate(),
		Name:              s.code,
		Phone:             "55" + s.code,
		Code:              s.code,
		Role:              role,
		FilledDOB:         true,
		TotalNetworkCount: s.network,
		CreatedAt:         createdAt,
		UpdatedAt:         createdAt,
	}
	if s.invitedBy != "" {
		inviter := s.invitedBy
		user.InvitationCode = &inviter
	}
	if err := gdb.Create(user).Error; err != nil {
		t.Fatalf("seed %s: %v", s.code, err)
	}
	return user
}

func TestLeaderboardTieBreakByMembers(t *testing.T) {
	svc, gdb, node := newTestService(t)
	ctx := context.Background()

	admin := seedRankedUser(t, gdb, node, seed{code: "ADMIN", role: domain.RoleAdmin})

	// Both ambassadors sit at network 10; FIVE has five direct guests,
	// THREE has three, so FIVE must rank first.
	seedRankedUser(t, gdb, node, seed{code: "FIVE", role: domain.RoleAmbassador, network: 10})
	seedRankedUser(t, gdb, node, seed{code: "THREE", role: domain.RoleAmbassador, network: 10})
	for i := 0; i < 5; i++ {
		seedRankedUser(t, gdb, node, seed{code: "F" + string(rune('A'+i)), invitedBy: "FIVE"})
	}
	for i := 0; i < 3; i++ {
		seedRankedUser(t, gdb, node, seed{code: "T" + string(rune('A'+i)), invitedBy: "THREE"})
	}

	resp, err := svc.Leaderboard(ctx, LeaderboardRequest{Actor: *admin})
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(resp.Entries) != 2 {
		t.Fatalf("expected 2 ranked users, got %d", len(resp.Entries))
	}
	if resp.Entries[0].Code != "FIVE" || resp.Entries[1].Code != "THREE" {
		t.Fatalf("tie-break wrong: %s before %s", resp.Entries[0].Code, resp.Entries[1].Code)
	}
	if resp.Entries[0].MembersCurrent != 5 || resp.Entries[1].MembersCurrent != 3 {
		t.Fatalf("member counts wrong: %d, %d",
			resp.Entries[0].MembersCurrent, resp.Entries[1].MembersCurrent)
	}
	if resp.Entries[0].Position != 1 || resp.Entries[1].Position != 2 {
		t.Fatalf("positions wrong: %d, %d", resp.Entries[0].Position, resp.Entries[1].Position)
	}
}

func TestLeaderboardExcludesZeroGuestUsers(t *testing.T) {
	svc, gdb, node := newTestService(t)
	ctx := context.Background()

	admin := seedRankedUser(t, gdb, node, seed{code: "ADMIN", role: domain.RoleAdmin})
	seedRankedUser(t, gdb, node, seed{code: "LONER", network: 99})
	seedRankedUser(t, gdb, node, seed{code: "HOST", network: 1})
	seedRankedUser(t, gdb, node, seed{code: "GUEST", invitedBy: "HOST"})

	resp, err := svc.Leaderboard(ctx, LeaderboardRequest{Actor: *admin})
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	for _, e := range resp.Entries {
		if e.Code == "LONER" {
			t.Fatal("zero-guest user must not be ranked")
		}
	}
	if len(resp.Entries) != 1 || resp.Entries[0].Code != "HOST" {
		t.Fatalf("unexpected entries: %+v", resp.Entries)
	}
}

func TestLeaderboardGrowthInfinite(t *testing.T) {
	svc, gdb, node := newTestService(t)
	ctx := context.Background()

	admin := seedRankedUser(t, gdb, node, seed{code: "ADMIN", role: domain.RoleAdmin})

	// Host and guests appeared inside the current window, after the
	// previous window closed, so the previous network is zero.
	recent := time.Date(2026, 2, 24, 10, 0, 0, 0, time.UTC)
	seedRankedUser(t, gdb, node, seed{code: "HOST", network: 7, createdAt: recent})
	for i := 0; i < 2; i++ {
		seedRankedUser(t, gdb, node, seed{
			code:      "G" + string(rune('A'+i)),
			invitedBy: "HOST",
			createdAt: recent.Add(time.Hour),
		})
	}

	resp, err := svc.Leaderboard(ctx, LeaderboardRequest{Actor: *admin})
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(resp.Entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(resp.Entries))
	}
	entry := resp.Entries[0]
	if entry.NetworkPrevious != 0 {
		t.Fatalf("expected zero previous network, got %d", entry.NetworkPrevious)
	}
	if !entry.GrowthInfinite {
		t.Fatal("expected infinite growth sentinel")
	}
}

func TestLeaderboardMemberCutoffs(t *testing.T) {
	svc, gdb, node := newTestService(t)
	ctx := context.Background()

	admin := seedRankedUser(t, gdb, node, seed{code: "ADMIN", role: domain.RoleAdmin})
	seedRankedUser(t, gdb, node, seed{code: "HOST", network: 3})

	// One guest in the previous window, one in the current window, one
	// after the current window closed (running week, must not count).
	seedRankedUser(t, gdb, node, seed{code: "OLD", invitedBy: "HOST",
		createdAt: time.Date(2026, 2, 18, 9, 0, 0, 0, time.UTC)})
	seedRankedUser(t, gdb, node, seed{code: "CUR", invitedBy: "HOST",
		createdAt: time.Date(2026, 2, 26, 9, 0, 0, 0, time.UTC)})
	seedRankedUser(t, gdb, node, seed{code: "NEW", invitedBy: "HOST",
		createdAt: time.Date(2026, 3, 3, 9, 0, 0, 0, time.UTC)})

	resp, err := svc.Leaderboard(ctx, LeaderboardRequest{Actor: *admin})
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(resp.Entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(resp.Entries))
	}
	entry := resp.Entries[0]
	if entry.MembersCurrent != 2 {
		t.Fatalf("members_current = %d, want 2", entry.MembersCurrent)
	}
	if entry.MembersPrevious != 1 {
		t.Fatalf("members_previous = %d, want 1", entry.MembersPrevious)
	}
}

func TestLeaderboardScope(t *testing.T) {
	svc, gdb, node := newTestService(t)
	ctx := context.Background()

	member := seedRankedUser(t, gdb, node, seed{code: "MEMB"})
	if _, err := svc.Leaderboard(ctx, LeaderboardRequest{Actor: *member}); err != ErrForbidden {
		t.Fatalf("member access: got %v, want ErrForbidden", err)
	}

	amb := seedRankedUser(t, gdb, node, seed{code: "AMB", role: domain.RoleAmbassador, network: 2})
	seedRankedUser(t, gdb, node, seed{code: "AG", invitedBy: "AMB"})
	seedRankedUser(t, gdb, node, seed{code: "OTHER", network: 50})
	seedRankedUser(t, gdb, node, seed{code: "OG", invitedBy: "OTHER"})

	resp, err := svc.Leaderboard(ctx, LeaderboardRequest{Actor: *amb})
	if err != nil {
		t.Fatalf("ambassador leaderboard: %v", err)
	}
	for _, e := range resp.Entries {
		if e.Code == "OTHER" {
			t.Fatal("ambassador scope leaked another network")
		}
	}
}
