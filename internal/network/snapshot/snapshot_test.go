package snapshot

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/tribewave/tribewave/internal/clock"
	"github.com/tribewave/tribewave/internal/directory/domain"
	"github.com/tribewave/tribewave/internal/directory/repository"
	"github.com/tribewave/tribewave/internal/network"
	"github.com/tribewave/tribewave/pkg/db"
)

func newTestRecomputer(t *testing.T) (*Recomputer, *gorm.DB, *snowflake.Node) {
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

	repo := repository.Provide()
	traverser := network.New(network.Params{DB: gdb, Log: zap.NewNop(), Repo: repo})
	rec := New(Params{
		DB:        gdb,
		Log:       zap.NewNop(),
		Clock:     clock.NewFakeClock(time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)),
		Repo:      repo,
		Traverser: traverser,
	})
	return rec, gdb, node
}

func seedUser(t *testing.T, gdb *gorm.DB, node *snowflake.Node, code, invitedBy string) *domain.User {
	t.Helper()

	user := &domain.User{
		ID:        node.Generate(),
		Name:      code,
		Phone:     "55" + code,
		Code:      code,
		Role:      domain.RoleMember,
		FilledDOB: true,
	}
	if invitedBy != "" {
		inviter := invitedBy
		user.InvitationCode = &inviter
	}
	if err := gdb.Create(user).Error; err != nil {
		t.Fatalf("seed %s: %v", code, err)
	}
	return user
}

func TestRecomputeAllIsIdempotent(t *testing.T) {
	rec, gdb, node := newTestRecomputer(t)
	ctx := context.Background()

	root := seedUser(t, gdb, node, "ROOT", "")
	seedUser(t, gdb, node, "G1", "ROOT")
	seedUser(t, gdb, node, "G1A", "G1")

	for run := 0; run < 2; run++ {
		processed, err := rec.RecomputeAll(ctx)
		if err != nil {
			t.Fatalf("run %d: %v", run, err)
		}
		if processed != 3 {
			t.Fatalf("run %d: expected 3 processed, got %d", run, processed)
		}

		var stored domain.User
		if err := gdb.Where("id = ?", root.ID).Take(&stored).Error; err != nil {
			t.Fatalf("reload root: %v", err)
		}
		if stored.TotalNetworkCount != 2 {
			t.Fatalf("run %d: expected cached count 2, got %d", run, stored.TotalNetworkCount)
		}
	}
}

func TestRecomputeSkipsIncompleteDescendants(t *testing.T) {
	rec, gdb, node := newTestRecomputer(t)
	ctx := context.Background()

	root := seedUser(t, gdb, node, "ROOT", "")
	seedUser(t, gdb, node, "DONE", "ROOT")

	inviter := "ROOT"
	pending := &domain.User{
		ID:             node.Generate(),
		Name:           "PEND",
		Phone:          "55PEND",
		Code:           "PEND",
		InvitationCode: &inviter,
		Role:           domain.RoleMember,
	}
	if err := gdb.Create(pending).Error; err != nil {
		t.Fatalf("seed pending: %v", err)
	}

	count, err := rec.RecomputeUser(ctx, root)
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected only completed guest counted, got %d", count)
	}
}

func TestRecomputeUserUpdatesCache(t *testing.T) {
	rec, gdb, node := newTestRecomputer(t)
	ctx := context.Background()

	root := seedUser(t, gdb, node, "ROOT", "")

	count, err := rec.RecomputeUser(ctx, root)
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected empty network, got %d", count)
	}

	seedUser(t, gdb, node, "G1", "ROOT")
	seedUser(t, gdb, node, "G2", "ROOT")

	count, err = rec.RecomputeUser(ctx, root)
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected count 2, got %d", count)
	}

	var stored domain.User
	if err := gdb.Where("id = ?", root.ID).Take(&stored).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if stored.TotalNetworkCount != 2 {
		t.Fatalf("cache not written, got %d", stored.TotalNetworkCount)
	}
}
