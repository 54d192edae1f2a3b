package main

import (
	"context"
	"time"

	"github.com/smallbiznis/fedbill/internal/config"
	"github.com/smallbiznis/fedbill/internal/finance"
	"github.com/smallbiznis/fedbill/internal/metricspush"
	"github.com/smallbiznis/fedbill/internal/migration"
	"github.com/smallbiznis/fedbill/internal/observability"
	"github.com/smallbiznis/fedbill/internal/runlock"
	"github.com/smallbiznis/fedbill/internal/server"
	"github.com/smallbiznis/fedbill/pkg/db"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the plan runners",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		app := fx.New(
			infrastructure(),
			migration.Module,
		)
		ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
		defer cancel()
		if err := app.Start(ctx); err != nil {
			return err
		}
		return app.Stop(ctx)
	},
}

func infrastructure() fx.Option {
	return fx.Options(
		config.Module,
		observability.Module,
		db.Module,
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),
	)
}

func runServe() error {
	app := fx.New(
		infrastructure(),
		migration.Module,
		runlock.Module,
		metricspush.Module,
		finance.Module,
		server.Module,
	)
	if err := app.Err(); err != nil {
		return err
	}
	app.Run()
	return nil
}
