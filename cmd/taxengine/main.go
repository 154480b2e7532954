package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/dixis/taxengine/internal/clock"
	"github.com/dixis/taxengine/internal/config"
	"github.com/dixis/taxengine/internal/migration"
	"github.com/dixis/taxengine/internal/observability"
	"github.com/dixis/taxengine/internal/scheduler"
	"github.com/dixis/taxengine/internal/server"
	"github.com/dixis/taxengine/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		// Functional Domains
		server.Module,
		scheduler.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}
