package cmd

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jmehdipour/scrum-callbot/internal/db"
	"github.com/jmehdipour/scrum-callbot/internal/logger"
	"github.com/jmehdipour/scrum-callbot/migrations"
)

var skipClickHouse bool

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the roster table (MySQL) and the call_events table (ClickHouse)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		mysqlDB, err := db.NewMySQLConnection(cfg.MySQL)
		if err != nil {
			return fmt.Errorf("open mysql: %w", err)
		}
		defer mysqlDB.Close()
		if err := apply(ctx, mysqlDB, "mysql"); err != nil {
			return err
		}

		if !skipClickHouse {
			chDB, err := db.NewClickHouseConnection(cfg.ClickHouse)
			if err != nil {
				return fmt.Errorf("open clickhouse: %w", err)
			}
			defer chDB.Close()
			if err := apply(ctx, chDB, "clickhouse"); err != nil {
				return err
			}
		}

		logger.Log.Info("migration complete")
		return nil
	},
}

func init() {
	migrateCmd.Flags().BoolVar(&skipClickHouse, "skip-clickhouse", false, "only migrate the roster database")
}

func apply(ctx context.Context, conn *sqlx.DB, dir string) error {
	stmts, err := migrations.Statements(dir)
	if err != nil {
		return fmt.Errorf("read %s migrations: %w", dir, err)
	}
	for i, s := range stmts {
		if _, err := conn.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("%s migration statement %d: %w", dir, i+1, err)
		}
	}
	logger.Log.Info("migrations applied", zap.String("db", dir), zap.Int("statements", len(stmts)))
	return nil
}
