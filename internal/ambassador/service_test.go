package ambassador

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

type capturedNotification struct {
	userID   snowflake.ID
	password string
}

type fakeNotifier struct {
	sent []capturedNotification
}

func (f *fakeNotifier) NotifyPromotion(_ context.Context, user *domain.User, newPassword string) error {
	f.sent = append(f.sent, capturedNotification{userID: user.ID, password: newPassword})
	return nil
}

func newTestPromoter(t *testing.T) (*Promoter, *fakeNotifier, *gorm.DB, *snowflake.Node) {
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
	notifier := &fakeNotifier{}
	promoter := New(Params{
		DB:        gdb,
		Log:       zap.NewNop(),
		Clock:     clock.NewFakeClock(time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)),
		Repo:      repo,
		Traverser: network.New(network.Params{DB: gdb, Log: zap.NewNop(), Repo: repo}),
		Notifier:  notifier,
	})
	return promoter, notifier, gdb, node
}

func seedUser(t *testing.T, gdb *gorm.DB, node *snowflake.Node, code, invitedBy string, filledDOB bool) *domain.User {
	t.Helper()

	user := &domain.User{
		ID:        node.Generate(),
		Name:      code,
		Phone:     "55" + code,
		Code:      code,
		Role:      domain.RoleMember,
		FilledDOB: filledDOB,
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

func TestPromoteEligible(t *testing.T) {
	promoter, notifier, gdb, node := newTestPromoter(t)
	ctx := context.Background()

	host := seedUser(t, gdb, node, "HOST", "", false)
	seedUser(t, gdb, node, "DONE", "HOST", true)

	// A member whose only guest never filled the date of birth stays put.
	seedUser(t, gdb, node, "WAIT", "", false)
	seedUser(t, gdb, node, "PEND", "WAIT", false)

	promoted, err := promoter.PromoteEligible(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if promoted != 1 {
		t.Fatalf("expected 1 promotion, got %d", promoted)
	}

	var reloaded domain.User
	if err := gdb.Where("id = ?", host.ID).Take(&reloaded).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.Role != domain.RoleAmbassador {
		t.Fatalf("role = %s, want ambassador", reloaded.Role)
	}
	if reloaded.PasswordHash == "" {
		t.Fatal("credential reset did not store a hash")
	}

	if len(notifier.sent) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(notifier.sent))
	}
	if notifier.sent[0].userID != host.ID {
		t.Fatal("notification went to the wrong user")
	}
	if notifier.sent[0].password == "" {
		t.Fatal("notification carried no credential")
	}
}

func TestPromotionIsOneWay(t *testing.T) {
	promoter, notifier, gdb, node := newTestPromoter(t)
	ctx := context.Background()

	host := seedUser(t, gdb, node, "HOST", "", false)
	guest := seedUser(t, gdb, node, "DONE", "HOST", true)

	if _, err := promoter.PromoteEligible(ctx); err != nil {
		t.Fatalf("first sweep: %v", err)
	}

	// Hypothetically losing the qualifying guest must not demote.
	if err := gdb.Delete(&domain.User{}, "id = ?", guest.ID).Error; err != nil {
		t.Fatalf("delete guest: %v", err)
	}

	promoted, err := promoter.PromoteEligible(ctx)
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if promoted != 0 {
		t.Fatalf("second sweep promoted %d users", promoted)
	}

	var reloaded domain.User
	if err := gdb.Where("id = ?", host.ID).Take(&reloaded).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.Role != domain.RoleAmbassador {
		t.Fatalf("role reverted to %s", reloaded.Role)
	}
	if len(notifier.sent) != 1 {
		t.Fatalf("credential reset fired %d times", len(notifier.sent))
	}
}

func TestPromotionSweepIsIdempotent(t *testing.T) {
	promoter, notifier, gdb, node := newTestPromoter(t)
	ctx := context.Background()

	seedUser(t, gdb, node, "HOST", "", false)
	seedUser(t, gdb, node, "DONE", "HOST", true)

	for run := 0; run < 3; run++ {
		if _, err := promoter.PromoteEligible(ctx); err != nil {
			t.Fatalf("sweep %d: %v", run, err)
		}
	}
	if len(notifier.sent) != 1 {
		t.Fatalf("expected exactly one notification, got %d", len(notifier.sent))
	}
}
