package http

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echoMid "github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/jmehdipour/scrum-callbot/internal/command"
	"github.com/jmehdipour/scrum-callbot/internal/config"
	"github.com/jmehdipour/scrum-callbot/internal/http/middleware"
	"github.com/jmehdipour/scrum-callbot/internal/metrics"
	"github.com/jmehdipour/scrum-callbot/internal/notification"
	"github.com/jmehdipour/scrum-callbot/internal/repository"
)

// Deps are the components the HTTP surface routes to. CallEvents and Redis may be nil.
type Deps struct {
	Validator  RequestValidator
	Dispatcher *notification.Dispatcher
	Roster     command.Roster
	Commands   *command.Handler
	GroupCalls command.GroupCaller
	Calls      CallStates
	CallEvents repository.CHCallEventsRepository
	Redis      *redis.Client
	Log        *zap.Logger
}

type Server struct {
	e   *echo.Echo
	log *zap.Logger
}

func NewServer(cfg config.Config, d Deps) *Server {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Logger.SetLevel(echoLevel(cfg.Log.Level))
	e.Use(echoMid.Recover(), echoMid.Logger())

	metrics.MustRegister(prometheus.DefaultRegisterer)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	// platform webhook
	cb := callbackHandler(d.Validator, d.Dispatcher, d.Log.Named("callback"))
	e.POST("/callback", cb)
	e.PATCH("/callback", cb)

	// prompt media fetched by the platform
	if cfg.Media.Dir != "" {
		e.Static("/audio", cfg.Media.Dir)
	}

	v1 := e.Group("/v1",
		middleware.APIKeyMiddleware(cfg.APIKeys),
		middleware.RateLimitMiddleware(middleware.RateLimitConfig{
			Redis:          d.Redis,
			DefaultRPS:     cfg.RateLimit.RPS,
			KeyPrefix:      "rl:client:",
			Window:         time.Second,
			RetryAfterHint: true,
		}),
	)
	v1.POST("/messages", messageHandler(d.Commands))
	v1.GET("/roster", listRosterHandler(d.Roster))
	v1.POST("/roster/register", registerHandler(d.Roster))
	v1.POST("/roster/attendance", attendanceHandler(d.Roster))
	v1.POST("/calls/group", groupCallHandler(d.GroupCalls))
	if d.Calls != nil {
		v1.GET("/calls/:id", callStateHandler(d.Calls))
	}
	if d.CallEvents != nil {
		v1.GET("/reports/calls", listCallEventsHandler(d.CallEvents))
	}

	return &Server{e: e, log: d.Log}
}

func (s *Server) Handler() http.Handler { return s.e }

func (s *Server) Start(addr string) error {
	s.log.Info("http: listening", zap.String("addr", addr))
	return s.e.Start(addr)
}

func (s *Server) Shutdown(ctx context.Context) error { return s.e.Shutdown(ctx) }

func echoLevel(level string) log.Lvl {
	switch level {
	case "debug":
		return log.DEBUG
	case "warn":
		return log.WARN
	case "error":
		return log.ERROR
	default:
		return log.INFO
	}
}
