package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/kevobebop/kindmind/internal/account"
	"github.com/kevobebop/kindmind/internal/billing/gateway"
	"github.com/kevobebop/kindmind/internal/billing/reconciler"
	"github.com/kevobebop/kindmind/internal/billing/webhook"
	"github.com/kevobebop/kindmind/internal/checkout"
	"github.com/kevobebop/kindmind/internal/claims"
	"github.com/kevobebop/kindmind/internal/config"
	"github.com/kevobebop/kindmind/internal/identity"
	"github.com/kevobebop/kindmind/internal/logger"
	"github.com/kevobebop/kindmind/internal/migration"
	"github.com/kevobebop/kindmind/internal/observability/metrics"
	"github.com/kevobebop/kindmind/internal/providers/slack"
	"github.com/kevobebop/kindmind/internal/server"
	"github.com/kevobebop/kindmind/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,

		metrics.Module,
		slack.Module,
		identity.Module,
		claims.Module,
		gateway.Module,
		webhook.Module,
		reconciler.Module,
		checkout.Module,
		account.Module,

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
