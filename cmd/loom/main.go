package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/loomhq/loom/internal/auth"
	"github.com/loomhq/loom/internal/authorization"
	"github.com/loomhq/loom/internal/clock"
	"github.com/loomhq/loom/internal/config"
	"github.com/loomhq/loom/internal/eventbus"
	"github.com/loomhq/loom/internal/logger"
	"github.com/loomhq/loom/internal/migration"
	"github.com/loomhq/loom/internal/organization"
	"github.com/loomhq/loom/internal/seed"
	"github.com/loomhq/loom/internal/server"
	"github.com/loomhq/loom/internal/uow"
	"github.com/loomhq/loom/internal/user"
	"github.com/loomhq/loom/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		fx.Provide(RegisterSnowflake),
		clock.Module,
		db.Module,
		eventbus.Module,
		uow.Module,

		seed.Module,
		migration.Module,

		authorization.Module,
		auth.Module,
		user.Module,
		organization.Module,
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
