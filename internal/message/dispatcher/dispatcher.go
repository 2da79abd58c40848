package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/tribewave/tribewave/internal/clock"
	"github.com/tribewave/tribewave/internal/config"
	"github.com/tribewave/tribewave/internal/deliverylog"
	"github.com/tribewave/tribewave/internal/message/domain"
	"github.com/tribewave/tribewave/internal/providers/email"
	"github.com/tribewave/tribewave/internal/providers/whatsapp"
	"github.com/tribewave/tribewave/internal/segment"
)

// Dispatcher sends due messages. Claiming is a single conditional
// update keyed by a fresh lock token, so concurrent dispatcher
// instances never send the same message twice.
type Dispatcher struct {
	db       *gorm.DB
	log      *zap.Logger
	clock    clock.Clock
	genID    *snowflake.Node
	repo     domain.Repository
	logs     deliverylog.Repository
	sender   whatsapp.Sender
	mailer   email.Provider
	dispatch *config.DispatchConfigHolder
	alertTo  string
}

type Params struct {
	fx.In

	Cfg      config.Config
	DB       *gorm.DB
	Log      *zap.Logger
	Clock    clock.Clock
	GenID    *snowflake.Node
	Repo     domain.Repository
	Logs     deliverylog.Repository
	Sender   whatsapp.Sender
	Mailer   email.Provider `optional:"true"`
	Dispatch *config.DispatchConfigHolder
}

func New(p Params) *Dispatcher {
	return &Dispatcher{
		db:       p.DB,
		log:      p.Log.Named("message.dispatcher"),
		clock:    p.Clock,
		genID:    p.GenID,
		repo:     p.Repo,
		logs:     p.Logs,
		sender:   p.Sender,
		mailer:   p.Mailer,
		dispatch: p.Dispatch,
		alertTo:  p.Cfg.SMTPFrom,
	}
}

// DispatchDue claims and sends every message whose schedule has passed.
// Failures are isolated per message.
func (d *Dispatcher) DispatchDue(ctx context.Context) (int, error) {
	batchSize := 0
	if d.dispatch != nil {
		batchSize = d.dispatch.Current().BatchSize
	}

	due, err := d.repo.ListDue(ctx, d.db, d.clock.Now(), batchSize)
	if err != nil {
		return 0, err
	}

	var (
		sent int
		errs []error
	)
	for _, message := range due {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		ok, err := d.dispatchOne(ctx, message)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ok {
			sent++
		}
	}
	return sent, errors.Join(errs...)
}

func (d *Dispatcher) dispatchOne(ctx context.Context, message *domain.Message) (bool, error) {
	token := uuid.NewString()
	claimed, err := d.repo.Claim(ctx, d.db, message.ID, token, d.clock.Now())
	if err != nil {
		return false, fmt.Errorf("claim message %s: %w", message.ID, err)
	}
	if !claimed {
		// Another instance got there first.
		return false, nil
	}

	var recipients []segment.Recipient
	if len(message.ContactsResult) > 0 {
		if err := json.Unmarshal(message.ContactsResult, &recipients); err != nil {
			reason := fmt.Sprintf("corrupt recipient snapshot: %v", err)
			if merr := d.repo.MarkFailed(ctx, d.db, message.ID, token, reason, d.clock.Now()); merr != nil {
				return false, merr
			}
			return false, fmt.Errorf("message %s: %s", message.ID, reason)
		}
	}

	// An empty snapshot is a valid no-op send, not a failure.
	if len(recipients) == 0 {
		if err := d.repo.MarkSent(ctx, d.db, message.ID, token, d.clock.Now()); err != nil {
			return false, err
		}
		d.log.Info("message had no recipients",
			zap.String("message_id", message.ID.String()),
		)
		return true, nil
	}

	var params whatsapp.Params
	if len(message.Params) > 0 {
		if err := json.Unmarshal(message.Params, &params); err != nil {
			d.log.Warn("unreadable template params, sending without",
				zap.String("message_id", message.ID.String()),
				zap.Error(err),
			)
		}
	}

	for _, recipient := range recipients {
		status, sendErr := d.sender.SendTemplate(ctx, recipient.JID, message.TemplateName, message.Language, params)
		now := d.clock.Now()

		entry := &deliverylog.DeliveryLog{
			ID:          d.genID.Generate(),
			MessageID:   message.ID,
			ContactName: recipient.Name,
			ContactJID:  recipient.JID,
			Status:      status,
			CreatedAt:   now,
		}
		if sendErr != nil {
			entry.Status = deliverylog.StatusFailed
			entry.Detail = sendErr.Error()
		} else {
			sentAt := now
			entry.SentAt = &sentAt
		}
		if err := d.logs.Append(ctx, d.db, entry); err != nil {
			d.log.Warn("delivery log write failed",
				zap.String("message_id", message.ID.String()),
				zap.String("jid", recipient.JID),
				zap.Error(err),
			)
		}

		// A provider error fails the whole message; the delivery log is
		// the basis for manual reconciliation of earlier recipients.
		if sendErr != nil {
			if err := d.repo.MarkFailed(ctx, d.db, message.ID, token, sendErr.Error(), d.clock.Now()); err != nil {
				return false, err
			}
			d.alertFailure(ctx, message, sendErr)
			return false, fmt.Errorf("message %s: %w", message.ID, sendErr)
		}
	}

	if err := d.repo.MarkSent(ctx, d.db, message.ID, token, d.clock.Now()); err != nil {
		return false, err
	}
	d.log.Info("message dispatched",
		zap.String("message_id", message.ID.String()),
		zap.Int("recipients", len(recipients)),
	)
	return true, nil
}

func (d *Dispatcher) alertFailure(ctx context.Context, message *domain.Message, cause error) {
	if d.mailer == nil || d.alertTo == "" {
		return
	}
	subject := fmt.Sprintf("Message dispatch failed: %s", message.ID)
	body := fmt.Sprintf("<p>Message %s (%s) failed to dispatch.</p><p>%s</p>",
		message.ID, message.TemplateName, cause)
	if err := d.mailer.Send(ctx, []string{d.alertTo}, subject, body); err != nil {
		d.log.Warn("failure alert mail not sent", zap.Error(err))
	}
}

var Module = fx.Module("message.dispatcher",
	fx.Provide(New),
)
