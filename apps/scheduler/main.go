package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/tribewave/tribewave/internal/ambassador"
	"github.com/tribewave/tribewave/internal/clock"
	"github.com/tribewave/tribewave/internal/config"
	"github.com/tribewave/tribewave/internal/deliverylog"
	"github.com/tribewave/tribewave/internal/directory"
	"github.com/tribewave/tribewave/internal/locking"
	"github.com/tribewave/tribewave/internal/message"
	"github.com/tribewave/tribewave/internal/network"
	"github.com/tribewave/tribewave/internal/network/snapshot"
	"github.com/tribewave/tribewave/internal/observability"
	"github.com/tribewave/tribewave/internal/providers/email"
	"github.com/tribewave/tribewave/internal/providers/whatsapp"
	"github.com/tribewave/tribewave/internal/scheduler"
	"github.com/tribewave/tribewave/internal/segment"
	"github.com/tribewave/tribewave/pkg/db"
	"go.uber.org/fx"
)

// Scheduler-only deployable: runs the promotion, recount and dispatch
// sweeps. Migrations are owned by the API process.
func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		locking.Module,

		// Domain services required by the sweeps
		directory.Module,
		network.Module,
		snapshot.Module,
		ambassador.Module,
		segment.Module,
		deliverylog.Module,
		whatsapp.Module,
		email.Module,
		message.Module,

		// No server module!
		scheduler.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
