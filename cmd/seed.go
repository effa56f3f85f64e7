package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jmehdipour/scrum-callbot/internal/db"
	"github.com/jmehdipour/scrum-callbot/internal/logger"
	"github.com/jmehdipour/scrum-callbot/internal/model"
	"github.com/jmehdipour/scrum-callbot/internal/repository"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the roster with demo employees",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		sqlDB, err := db.NewMySQLConnection(cfg.MySQL)
		if err != nil {
			return fmt.Errorf("mysql connect: %w", err)
		}
		defer sqlDB.Close()

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		return seedEmployees(ctx, repository.NewEmployeesRepository(sqlDB))
	},
}

// seedEmployees registers a fixed demo roster. Existing rows are left untouched.
func seedEmployees(ctx context.Context, roster repository.EmployeesRepository) error {
	employees := []model.Employee{
		{ID: "00000000-0000-0000-0000-000000000001", DisplayName: "Adele Vance", Attends: true},
		{ID: "00000000-0000-0000-0000-000000000002", DisplayName: "Alex Wilber", Attends: true},
		{ID: "00000000-0000-0000-0000-000000000003", DisplayName: "Megan Bowen", Attends: false},
		{ID: "00000000-0000-0000-0000-000000000004", DisplayName: "Lee Gu", Attends: true},
	}

	created := 0
	for _, e := range employees {
		err := roster.Register(ctx, e.ID, e.DisplayName)
		switch {
		case errors.Is(err, repository.ErrAlreadyExists):
			continue
		case err != nil:
			return fmt.Errorf("register %q: %w", e.DisplayName, err)
		}
		created++
		if !e.Attends {
			if err := roster.SetAttendance(ctx, e.ID, false); err != nil {
				return fmt.Errorf("set attendance %q: %w", e.DisplayName, err)
			}
		}
	}

	logger.Log.Info("seed completed", zap.Int("created", created), zap.Int("total", len(employees)))
	return nil
}
