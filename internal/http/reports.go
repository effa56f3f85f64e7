package http

import (
	"net/http"
	"strconv"
	"strings"

	echo "github.com/labstack/echo/v4"

	"github.com/jmehdipour/scrum-callbot/internal/repository"
)

func listCallEventsHandler(chRepo repository.CHCallEventsRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		f := repository.CallEventFilter{
			CallID: strings.TrimSpace(c.QueryParam("call_id")),
			State:  strings.TrimSpace(c.QueryParam("state")),
			Limit:  50,
		}
		if v := c.QueryParam("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
				f.Limit = n
			}
		}
		if v := c.QueryParam("offset"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n >= 0 {
				f.Offset = n
			}
		}

		events, err := chRepo.List(c.Request().Context(), f)
		if err != nil {
			c.Logger().Errorf("clickhouse list failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "query failed"})
		}

		return c.JSON(http.StatusOK, map[string]any{
			"limit":   f.Limit,
			"offset":  f.Offset,
			"count":   len(events),
			"results": events,
		})
	}
}
