package http

import (
	"fmt"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/jmehdipour/scrum-callbot/internal/auth"
	"github.com/jmehdipour/scrum-callbot/internal/metrics"
	"github.com/jmehdipour/scrum-callbot/internal/notification"
)

const maxCallbackBody = 1 << 20

// RequestValidator authenticates platform webhook deliveries.
type RequestValidator interface {
	Validate(r *http.Request) auth.Result
}

func callbackHandler(validator RequestValidator, dispatcher *notification.Dispatcher, log *zap.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		req := c.Request()
		defer func() {
			if r := recover(); r != nil {
				log.Error("callback handler panicked", zap.Any("panic", r), zap.StackSkip("stack", 1))
				err = c.JSON(http.StatusInternalServerError, map[string]string{
					"error":  "internal",
					"detail": fmt.Sprint(r),
				})
			}
		}()

		res := validator.Validate(req)
		if !res.Valid {
			metrics.WebhookAuthFailures.WithLabelValues(string(res.Reason)).Inc()
			log.Warn("rejected webhook delivery",
				zap.String("reason", string(res.Reason)),
				zap.String("remote", c.RealIP()),
			)
			return c.JSON(http.StatusForbidden, map[string]string{
				"error":  "forbidden",
				"reason": string(res.Reason),
			})
		}

		body, err := io.ReadAll(io.LimitReader(req.Body, maxCallbackBody))
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "unreadable body"})
		}

		resp := dispatcher.Process(req.Context(), body, req.Header)
		return c.JSON(resp.StatusCode, resp.Body)
	}
}
