package worker

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jmehdipour/scrum-callbot/internal/config"
	"github.com/jmehdipour/scrum-callbot/internal/db"
	"github.com/jmehdipour/scrum-callbot/internal/kafka"
	"github.com/jmehdipour/scrum-callbot/internal/logger"
	"github.com/jmehdipour/scrum-callbot/internal/metrics"
	"github.com/jmehdipour/scrum-callbot/internal/repository"
	"github.com/jmehdipour/scrum-callbot/internal/worker"
)

var callEventsCmd = &cobra.Command{
	Use:   "call-events",
	Short: "Copy call lifecycle events from Kafka to ClickHouse",
	RunE:  runCallEvents,
}

func runCallEvents(cmd *cobra.Command, args []string) error {
	cfgPath, _ := cmd.Root().PersistentFlags().GetString("config")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger.Init(cfg.Log.Level)
	log := logger.Named("call-events")

	metrics.MustRegister(prometheus.DefaultRegisterer)

	if len(cfg.Kafka.Brokers) == 0 || cfg.Kafka.Topic == "" {
		return fmt.Errorf("kafka brokers and topic are required")
	}

	chDB, err := db.NewClickHouseConnection(cfg.ClickHouse)
	if err != nil {
		return fmt.Errorf("clickhouse connect: %w", err)
	}
	defer chDB.Close()

	consumer := kafka.NewConsumer(cfg.Kafka)
	defer consumer.Close()

	w := worker.NewCallEventsWriter(consumer, repository.NewCHCallEventsRepository(chDB), log)
	if cfg.Worker.BatchSize > 0 {
		w.BatchSize = cfg.Worker.BatchSize
	}
	if cfg.Worker.BatchWait > 0 {
		w.BatchWait = cfg.Worker.BatchWait
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("call events worker started",
		zap.String("topic", cfg.Kafka.Topic),
		zap.String("group", cfg.Kafka.GroupID),
		zap.Int("batch_size", w.BatchSize),
		zap.Duration("batch_wait", w.BatchWait),
	)
	return w.Run(ctx)
}
