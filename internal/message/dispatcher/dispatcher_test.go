package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/tribewave/tribewave/internal/clock"
	"github.com/tribewave/tribewave/internal/config"
	"github.com/tribewave/tribewave/internal/deliverylog"
	"github.com/tribewave/tribewave/internal/message/domain"
	"github.com/tribewave/tribewave/internal/message/repository"
	"github.com/tribewave/tribewave/internal/providers/whatsapp"
	"github.com/tribewave/tribewave/internal/segment"
	"github.com/tribewave/tribewave/pkg/db"
)

var testNow = time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)

type sentCall struct {
	jid      string
	template string
}

type fakeSender struct {
	calls   []sentCall
	failJID string
}

func (f *fakeSender) SendTemplate(_ context.Context, jid, template, language string, params whatsapp.Params) (deliverylog.Status, error) {
	f.calls = append(f.calls, sentCall{jid: jid, template: template})
	if f.failJID != "" && jid == f.failJID {
		return deliverylog.StatusFailed, errors.New("provider rejected send")
	}
	return deliverylog.StatusAccepted, nil
}

func newTestDispatcher(t *testing.T, sender whatsapp.Sender) (*Dispatcher, *gorm.DB, *snowflake.Node) {
	t.Helper()

	gdb, err := db.NewTest()
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := gdb.AutoMigrate(&domain.Message{}, &deliverylog.DeliveryLog{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}

	d := New(Params{
		Cfg:      config.Config{},
		DB:       gdb,
		Log:      zap.NewNop(),
		Clock:    clock.NewFakeClock(testNow),
		GenID:    node,
		Repo:     repository.Provide(),
		Logs:     deliverylog.Provide(),
		Sender:   sender,
		Dispatch: config.NewStaticDispatchConfigHolder(config.DefaultDispatchConfig()),
	})
	return d, gdb, node
}

func seedMessage(t *testing.T, gdb *gorm.DB, node *snowflake.Node, recipients []segment.Recipient, scheduledAt time.Time) *domain.Message {
	t.Helper()

	snapshot, err := json.Marshal(recipients)
	if err != nil {
		t.Fatalf("marshal snapshot: %v", err)
	}
	message := &domain.Message{
		ID:             node.Generate(),
		TemplateName:   "weekly_update",
		Language:       "pt_BR",
		Params:         datatypes.JSON(`{}`),
		Audience:       datatypes.JSON(`{"mode":"contacts"}`),
		ContactsResult: datatypes.JSON(snapshot),
		ContactsCount:  int64(len(recipients)),
		ScheduledAt:    scheduledAt,
		Status:         domain.StatusScheduled,
		CreatedAt:      scheduledAt,
		UpdatedAt:      scheduledAt,
	}
	if err := gdb.Create(message).Error; err != nil {
		t.Fatalf("seed message: %v", err)
	}
	return message
}

func TestDispatchSendsToSnapshot(t *testing.T) {
	sender := &fakeSender{}
	d, gdb, node := newTestDispatcher(t, sender)
	ctx := context.Background()

	recipients := []segment.Recipient{
		{ID: node.Generate(), Name: "Ana", JID: "5511000000001@s.whatsapp.net"},
		{ID: node.Generate(), Name: "Bia", JID: "5511000000002@s.whatsapp.net"},
	}
	message := seedMessage(t, gdb, node, recipients, testNow.Add(-time.Minute))

	sent, err := d.DispatchDue(ctx)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if sent != 1 {
		t.Fatalf("sent = %d, want 1", sent)
	}
	if len(sender.calls) != 2 {
		t.Fatalf("provider calls = %d, want 2", len(sender.calls))
	}

	var reloaded domain.Message
	if err := gdb.Where("id = ?", message.ID).Take(&reloaded).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.Status != domain.StatusSent {
		t.Fatalf("status = %s, want sent", reloaded.Status)
	}
	if reloaded.SentAt == nil {
		t.Fatal("sent_at not stamped")
	}

	var logs []deliverylog.DeliveryLog
	if err := gdb.Where("message_id = ?", message.ID).Find(&logs).Error; err != nil {
		t.Fatalf("logs: %v", err)
	}
	if len(logs) != 2 {
		t.Fatalf("delivery logs = %d, want 2", len(logs))
	}
}

func TestDispatchSkipsFutureMessages(t *testing.T) {
	sender := &fakeSender{}
	d, gdb, node := newTestDispatcher(t, sender)
	ctx := context.Background()

	seedMessage(t, gdb, node, nil, testNow.Add(time.Hour))

	sent, err := d.DispatchDue(ctx)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if sent != 0 || len(sender.calls) != 0 {
		t.Fatalf("future message dispatched: sent=%d calls=%d", sent, len(sender.calls))
	}
}

func TestDispatchEmptySnapshotIsNoOp(t *testing.T) {
	sender := &fakeSender{}
	d, gdb, node := newTestDispatcher(t, sender)
	ctx := context.Background()

	message := seedMessage(t, gdb, node, nil, testNow.Add(-time.Minute))

	sent, err := d.DispatchDue(ctx)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if sent != 1 {
		t.Fatalf("sent = %d, want 1", sent)
	}
	if len(sender.calls) != 0 {
		t.Fatalf("provider called %d times for empty snapshot", len(sender.calls))
	}

	var reloaded domain.Message
	if err := gdb.Where("id = ?", message.ID).Take(&reloaded).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.Status != domain.StatusSent {
		t.Fatalf("status = %s, want sent", reloaded.Status)
	}
}

func TestDispatchProviderErrorFailsWholeMessage(t *testing.T) {
	sender := &fakeSender{failJID: "5511000000002@s.whatsapp.net"}
	d, gdb, node := newTestDispatcher(t, sender)
	ctx := context.Background()

	recipients := []segment.Recipient{
		{ID: node.Generate(), Name: "Ana", JID: "5511000000001@s.whatsapp.net"},
		{ID: node.Generate(), Name: "Bia", JID: "5511000000002@s.whatsapp.net"},
		{ID: node.Generate(), Name: "Caio", JID: "5511000000003@s.whatsapp.net"},
	}
	message := seedMessage(t, gdb, node, recipients, testNow.Add(-time.Minute))

	_, err := d.DispatchDue(ctx)
	if err == nil {
		t.Fatal("expected dispatch error")
	}

	var reloaded domain.Message
	if err := gdb.Where("id = ?", message.ID).Take(&reloaded).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.Status != domain.StatusFailed {
		t.Fatalf("status = %s, want failed", reloaded.Status)
	}
	if reloaded.LastError == "" {
		t.Fatal("last_error not recorded")
	}

	// The third recipient is never attempted once the provider fails.
	if len(sender.calls) != 2 {
		t.Fatalf("provider calls = %d, want 2", len(sender.calls))
	}

	var logs []deliverylog.DeliveryLog
	if err := gdb.Where("message_id = ?", message.ID).Order("id asc").Find(&logs).Error; err != nil {
		t.Fatalf("logs: %v", err)
	}
	if len(logs) != 2 {
		t.Fatalf("delivery logs = %d, want 2", len(logs))
	}
	if logs[1].Status != deliverylog.StatusFailed || logs[1].Detail == "" {
		t.Fatalf("failed recipient not logged: %+v", logs[1])
	}
}

func TestClaimIsExclusive(t *testing.T) {
	sender := &fakeSender{}
	d, gdb, node := newTestDispatcher(t, sender)
	ctx := context.Background()

	message := seedMessage(t, gdb, node, nil, testNow.Add(-time.Minute))

	repo := repository.Provide()
	won, err := repo.Claim(ctx, gdb, message.ID, "token-one", testNow)
	if err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if !won {
		t.Fatal("first claim lost")
	}

	won, err = repo.Claim(ctx, gdb, message.ID, "token-two", testNow)
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if won {
		t.Fatal("second claim also won")
	}

	// The dispatcher must skip the already claimed message entirely.
	sent, err := d.DispatchDue(ctx)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if sent != 0 {
		t.Fatalf("claimed message dispatched again, sent=%d", sent)
	}
}
