package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/tribewave/tribewave/internal/ambassador"
	"github.com/tribewave/tribewave/internal/clock"
	"github.com/tribewave/tribewave/internal/config"
	"github.com/tribewave/tribewave/internal/deliverylog"
	"github.com/tribewave/tribewave/internal/directory"
	directorydomain "github.com/tribewave/tribewave/internal/directory/domain"
	"github.com/tribewave/tribewave/internal/message"
	messagedomain "github.com/tribewave/tribewave/internal/message/domain"
	"github.com/tribewave/tribewave/internal/migration"
	"github.com/tribewave/tribewave/internal/network"
	"github.com/tribewave/tribewave/internal/network/snapshot"
	"github.com/tribewave/tribewave/internal/observability"
	"github.com/tribewave/tribewave/internal/providers/email"
	"github.com/tribewave/tribewave/internal/providers/whatsapp"
	"github.com/tribewave/tribewave/internal/ranking"
	"github.com/tribewave/tribewave/internal/seed"
	"github.com/tribewave/tribewave/internal/segment"
	"github.com/tribewave/tribewave/internal/server"
	"github.com/tribewave/tribewave/pkg/db"
	"go.uber.org/fx"
)

// API-only deployable. The sweeps run in apps/scheduler; this process
// just serves HTTP.
func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		fx.Supply(migration.AutoMigrateModels{Models: []any{
			&directorydomain.User{},
			&messagedomain.Message{},
			&deliverylog.DeliveryLog{},
		}}),
		migration.Module,
		seed.Module,

		directory.Module,
		network.Module,
		snapshot.Module,
		ranking.Module,
		ambassador.Module,
		segment.Module,
		deliverylog.Module,
		whatsapp.Module,
		email.Module,
		message.Module,

		// No scheduler module!
		server.Module,
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
