package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/jmehdipour/scrum-callbot/internal/command"
)

type messageReq struct {
	Text  string `json:"text"`
	Value struct {
		Type string `json:"type"`
	} `json:"value"`
	From command.Sender `json:"from"`
}

func messageHandler(h *command.Handler) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req messageReq
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}

		reply, err := h.Handle(c.Request().Context(), req.From, command.Parse(req.Text, req.Value.Type))
		if errors.Is(err, command.ErrAnonymousSender) {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "from.id is required"})
		}
		if err != nil {
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "command failed"})
		}
		return c.JSON(http.StatusOK, reply)
	}
}
