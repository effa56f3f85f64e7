package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jmehdipour/scrum-callbot/internal/auth"
	"github.com/jmehdipour/scrum-callbot/internal/call"
	"github.com/jmehdipour/scrum-callbot/internal/command"
	"github.com/jmehdipour/scrum-callbot/internal/db"
	httpSrv "github.com/jmehdipour/scrum-callbot/internal/http"
	"github.com/jmehdipour/scrum-callbot/internal/kafka"
	"github.com/jmehdipour/scrum-callbot/internal/logger"
	"github.com/jmehdipour/scrum-callbot/internal/model"
	"github.com/jmehdipour/scrum-callbot/internal/notification"
	"github.com/jmehdipour/scrum-callbot/internal/platform"
	"github.com/jmehdipour/scrum-callbot/internal/repository"
	"github.com/jmehdipour/scrum-callbot/internal/service/groupcall"
	"github.com/jmehdipour/scrum-callbot/internal/util"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the webhook and API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
		log := logger.Log

		mysqlDB, err := db.NewMySQLConnection(cfg.MySQL)
		if err != nil {
			return fmt.Errorf("mysql connect: %w", err)
		}
		defer mysqlDB.Close()

		chDB, err := db.NewClickHouseConnection(cfg.ClickHouse)
		if err != nil {
			return fmt.Errorf("clickhouse connect: %w", err)
		}
		defer func() { _ = chDB.Close() }()

		redisClient, err := db.NewRedisClient(cfg.Redis)
		if err != nil {
			return fmt.Errorf("redis connect: %w", err)
		}
		defer func() { _ = redisClient.Close() }()

		// outbound platform client with app-only token
		baseCtx, cancelBase := context.WithCancel(context.Background())
		defer cancelBase()
		ts := auth.NewTokenSource(baseCtx, auth.TokenConfig{
			AppID:     cfg.Bot.AppID,
			AppSecret: cfg.Bot.AppSecret,
			TenantID:  cfg.Bot.TenantID,
			TokenURL:  cfg.Platform.TokenURL,
			Scopes:    cfg.Platform.Scopes,
		})
		platformClient := platform.NewHTTPClient(
			cfg.Platform.BaseURL,
			auth.NewHTTPClient(baseCtx, ts, time.Duration(cfg.Platform.TimeoutMs)*time.Millisecond),
			cfg.Platform.Breaker.FailThreshold,
			cfg.Platform.Breaker.OpenForMs,
		)

		// inbound webhook auth
		var keys auth.KeyProvider
		if cfg.Auth.JWKSURL != "" {
			keys = auth.NewKeySet(cfg.Auth.JWKSURL, cfg.Auth.KeysRefresh)
		}
		validator := auth.NewAuthenticator(auth.Config{
			AppID:             cfg.Bot.AppID,
			AppSecret:         cfg.Bot.AppSecret,
			Issuers:           cfg.Auth.Issuers,
			ClockSkew:         cfg.Auth.ClockSkew,
			AllowSharedSecret: cfg.Auth.AllowSharedSecret,
		}, keys)

		// lifecycle events
		var sink call.EventSink
		var producer *kafka.Producer
		if len(cfg.Kafka.Brokers) > 0 && cfg.Kafka.Topic != "" {
			producer = kafka.NewProducer(cfg.Kafka, log.Named("kafka"))
			sink = producer
		}

		hostname, _ := os.Hostname()
		controller := call.NewController(
			platformClient,
			call.NewRedisClaimer(redisClient, hostname+"/"+util.New(), cfg.Calls.ClaimTTL),
			sink,
			log.Named("calls"),
			call.Options{
				CallbackURI:    cfg.Bot.CallbackURL(),
				PromptURI:      cfg.Bot.MediaURL(cfg.Media.PromptPath),
				PromptDelay:    cfg.Calls.PromptDelay,
				CommandTimeout: cfg.Calls.CommandTimeout,
				Retention:      cfg.Calls.Retention,
			},
		)
		janitorCtx, stopJanitor := context.WithCancel(context.Background())
		defer stopJanitor()
		go controller.Run(janitorCtx)

		dispatcher := notification.NewDispatcher(log.Named("notifications"))
		dispatcher.HandlerTimeout = 2 * cfg.Calls.CommandTimeout
		for _, change := range []model.ChangeType{model.ChangeCreated, model.ChangeUpdated, model.ChangeDeleted} {
			dispatcher.Handle(model.ResourceCall, change, controller.OnCallNotification)
		}

		roster := repository.NewEmployeesRepository(mysqlDB)
		groupCalls := groupcall.NewService(
			groupcall.NewAssembler(roster, groupcall.Options{
				CallbackURI: cfg.Bot.CallbackURL(),
				TenantID:    cfg.Bot.TenantID,
				Subject:     cfg.Calls.GroupSubject,
				AppID:       cfg.Bot.AppID,
				DisplayName: cfg.Bot.DisplayName,
			}),
			platformClient,
			log.Named("groupcall"),
		)

		server := httpSrv.NewServer(cfg, httpSrv.Deps{
			Validator:  validator,
			Dispatcher: dispatcher,
			Roster:     roster,
			Commands:   command.NewHandler(roster, groupCalls, platformClient, log.Named("commands")),
			GroupCalls: groupCalls,
			Calls:      controller,
			CallEvents: repository.NewCHCallEventsRepository(chDB),
			Redis:      redisClient,
			Log:        log.Named("http"),
		})

		errCh := make(chan error, 1)
		go func() {
			errCh <- server.Start(cfg.HTTP.Addr)
		}()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-sigCh:
			log.Info("signal received, shutting down", zap.String("signal", sig.String()))
		case err := <-errCh:
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("http server exited", zap.Error(err))
			}
		}

		timeout := cfg.HTTP.ShutdownTimeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			log.Warn("http shutdown", zap.Error(err))
		}
		dispatcher.Close()
		if err := dispatcher.Wait(ctx); err != nil {
			log.Warn("notification handlers still running", zap.Error(err))
		}
		controller.Close()
		if err := controller.Wait(ctx); err != nil {
			log.Warn("call commands still in flight", zap.Error(err))
		}
		if producer != nil {
			if err := producer.Close(); err != nil {
				log.Warn("kafka producer close", zap.Error(err))
			}
		}
		return nil
	},
}
