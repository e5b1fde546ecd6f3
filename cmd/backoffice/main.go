package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/backoffice/internal/audit"
	"github.com/smallbiznis/backoffice/internal/clock"
	"github.com/smallbiznis/backoffice/internal/config"
	"github.com/smallbiznis/backoffice/internal/invoice"
	"github.com/smallbiznis/backoffice/internal/ledgerstore"
	"github.com/smallbiznis/backoffice/internal/overdue"
	"github.com/smallbiznis/backoffice/internal/server"
	"github.com/smallbiznis/backoffice/pkg/db"
	"github.com/smallbiznis/backoffice/pkg/log"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// core infrastructure
		config.Module,
		log.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		// ledger domains
		ledgerstore.Module,
		audit.Module,
		invoice.Module,
		overdue.Module,

		// http surface
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
