package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/jmehdipour/scrum-callbot/internal/call"
	"github.com/jmehdipour/scrum-callbot/internal/command"
	"github.com/jmehdipour/scrum-callbot/internal/platform"
	"github.com/jmehdipour/scrum-callbot/internal/service/groupcall"
)

// CallStates exposes the lifecycle controller's local view of tracked calls.
type CallStates interface {
	State(callID string) (call.State, bool)
}

func groupCallHandler(calls command.GroupCaller) echo.HandlerFunc {
	return func(c echo.Context) error {
		callID, n, err := calls.StartGroupCall(c.Request().Context())
		switch {
		case errors.Is(err, groupcall.ErrNoTargets):
			return c.JSON(http.StatusConflict, map[string]string{"error": "nobody is attending"})
		case errors.Is(err, platform.ErrBreakerOpen):
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "platform unavailable"})
		case err != nil:
			c.Logger().Errorf("group call failed: %v", err)
			return c.JSON(http.StatusBadGateway, map[string]string{"error": "create call failed"})
		}
		return c.JSON(http.StatusCreated, map[string]any{"call_id": callID, "targets": n})
	}
}

func callStateHandler(states CallStates) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := c.Param("id")
		st, ok := states.State(id)
		if !ok {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "call not tracked"})
		}
		return c.JSON(http.StatusOK, map[string]string{"call_id": id, "state": string(st)})
	}
}
