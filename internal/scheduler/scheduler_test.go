package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/tribewave/tribewave/internal/ambassador"
	"github.com/tribewave/tribewave/internal/clock"
	"github.com/tribewave/tribewave/internal/config"
	"github.com/tribewave/tribewave/internal/deliverylog"
	directorydomain "github.com/tribewave/tribewave/internal/directory/domain"
	directoryrepo "github.com/tribewave/tribewave/internal/directory/repository"
	"github.com/tribewave/tribewave/internal/message/dispatcher"
	messagedomain "github.com/tribewave/tribewave/internal/message/domain"
	messagerepo "github.com/tribewave/tribewave/internal/message/repository"
	"github.com/tribewave/tribewave/internal/network"
	"github.com/tribewave/tribewave/internal/network/snapshot"
	"github.com/tribewave/tribewave/internal/providers/whatsapp"
	"github.com/tribewave/tribewave/pkg/db"
)

var testNow = time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)

type fixture struct {
	sched *Scheduler
	gdb   *gorm.DB
	node  *snowflake.Node
	clk   *clock.FakeClock
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()

	gdb, err := db.NewTest()
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := gdb.AutoMigrate(
		&directorydomain.User{},
		&messagedomain.Message{},
		&deliverylog.DeliveryLog{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}

	clk := clock.NewFakeClock(testNow)
	userRepo := directoryrepo.Provide()
	traverser := network.New(network.Params{DB: gdb, Log: zap.NewNop(), Repo: userRepo})
	holder := config.NewStaticDispatchConfigHolder(config.DefaultDispatchConfig())

	promoter := ambassador.New(ambassador.Params{
		DB:        gdb,
		Log:       zap.NewNop(),
		Clock:     clk,
		Repo:      userRepo,
		Traverser: traverser,
	})
	recomputer := snapshot.New(snapshot.Params{
		DB:        gdb,
		Log:       zap.NewNop(),
		Clock:     clk,
		Repo:      userRepo,
		Traverser: traverser,
		Dispatch:  holder,
	})
	disp := dispatcher.New(dispatcher.Params{
		Cfg:      config.Config{},
		DB:       gdb,
		Log:      zap.NewNop(),
		Clock:    clk,
		GenID:    node,
		Repo:     messagerepo.Provide(),
		Logs:     deliverylog.Provide(),
		Sender:   whatsapp.NoOpSender{},
		Dispatch: holder,
	})

	sched, err := New(Params{
		Log:        zap.NewNop(),
		Clock:      clk,
		GenID:      node,
		Promoter:   promoter,
		Recomputer: recomputer,
		Dispatcher: disp,
		Config:     cfg,
	})
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	return &fixture{sched: sched, gdb: gdb, node: node, clk: clk}
}

func (f *fixture) seedUser(t *testing.T, code, invitedBy string, filledDOB bool) *directorydomain.User {
	t.Helper()

	user := &directorydomain.User{
		ID:        f.node.Generate(),
		Name:      code,
		Phone:     "55" + code,
		JID:       "55" + code + "@s.whatsapp.net",
		Code:      code,
		Role:      directorydomain.RoleMember,
		FilledDOB: filledDOB,
	}
	if invitedBy != "" {
		inviter := invitedBy
		user.InvitationCode = &inviter
	}
	if err := f.gdb.Create(user).Error; err != nil {
		t.Fatalf("seed %s: %v", code, err)
	}
	return user
}

func TestRunOnceDrivesAllSweeps(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	host := f.seedUser(t, "HOST", "", true)
	f.seedUser(t, "DONE", "HOST", true)

	message := &messagedomain.Message{
		ID:             f.node.Generate(),
		TemplateName:   "weekly_update",
		Language:       "pt_BR",
		Params:         datatypes.JSON(`{}`),
		Audience:       datatypes.JSON(`{"mode":"contacts"}`),
		ContactsResult: datatypes.JSON(`[{"id":1,"name":"Ana","jid":"5511000000001@s.whatsapp.net"}]`),
		ContactsCount:  1,
		ScheduledAt:    testNow.Add(-time.Minute),
		Status:         messagedomain.StatusScheduled,
	}
	if err := f.gdb.Create(message).Error; err != nil {
		t.Fatalf("seed message: %v", err)
	}

	if err := f.sched.RunOnce(ctx); err != nil {
		t.Fatalf("run once: %v", err)
	}

	var user directorydomain.User
	if err := f.gdb.Where("id = ?", host.ID).Take(&user).Error; err != nil {
		t.Fatalf("reload host: %v", err)
	}
	if user.Role != directorydomain.RoleAmbassador {
		t.Fatalf("promotion sweep missed: role = %s", user.Role)
	}
	if user.TotalNetworkCount != 1 {
		t.Fatalf("recount sweep missed: count = %d", user.TotalNetworkCount)
	}

	var reloaded messagedomain.Message
	if err := f.gdb.Where("id = ?", message.ID).Take(&reloaded).Error; err != nil {
		t.Fatalf("reload message: %v", err)
	}
	if reloaded.Status != messagedomain.StatusSent {
		t.Fatalf("dispatch sweep missed: status = %s", reloaded.Status)
	}
}

func TestRunOnceIsRepeatable(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	f.seedUser(t, "HOST", "", true)
	f.seedUser(t, "DONE", "HOST", true)

	if err := f.sched.RunOnce(ctx); err != nil {
		t.Fatalf("first run: %v", err)
	}
	f.clk.Advance(time.Minute)
	if err := f.sched.RunOnce(ctx); err != nil {
		t.Fatalf("second run: %v", err)
	}
}

func TestEnabledJobsFilter(t *testing.T) {
	f := newFixture(t, Config{EnabledJobs: []string{jobRecount}})
	ctx := context.Background()

	host := f.seedUser(t, "HOST", "", true)
	f.seedUser(t, "DONE", "HOST", true)

	if err := f.sched.RunOnce(ctx); err != nil {
		t.Fatalf("run once: %v", err)
	}

	var user directorydomain.User
	if err := f.gdb.Where("id = ?", host.ID).Take(&user).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if user.TotalNetworkCount != 1 {
		t.Fatal("enabled recount job did not run")
	}
	if user.Role != directorydomain.RoleMember {
		t.Fatal("disabled promotion job ran anyway")
	}
}
