package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/jmehdipour/scrum-callbot/internal/command"
	"github.com/jmehdipour/scrum-callbot/internal/repository"
)

type registerReq struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type attendanceReq struct {
	ID      string `json:"id"`
	Attends *bool  `json:"attends"`
}

func listRosterHandler(roster command.Roster) echo.HandlerFunc {
	return func(c echo.Context) error {
		employees, err := roster.List(c.Request().Context())
		if err != nil {
			c.Logger().Errorf("list roster failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "query failed"})
		}
		return c.JSON(http.StatusOK, map[string]any{
			"count":   len(employees),
			"results": employees,
		})
	}
}

func registerHandler(roster command.Roster) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req registerReq
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}
		req.ID = strings.TrimSpace(req.ID)
		req.Name = strings.TrimSpace(req.Name)
		if req.ID == "" || req.Name == "" {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "id and name are required"})
		}

		err := roster.Register(c.Request().Context(), req.ID, req.Name)
		switch {
		case errors.Is(err, repository.ErrAlreadyExists):
			return c.JSON(http.StatusConflict, map[string]string{"error": "already registered"})
		case err != nil:
			c.Logger().Errorf("register failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}
		return c.JSON(http.StatusCreated, map[string]any{"id": req.ID, "display_name": req.Name, "attends": true})
	}
}

func attendanceHandler(roster command.Roster) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req attendanceReq
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}
		req.ID = strings.TrimSpace(req.ID)
		if req.ID == "" || req.Attends == nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "id and attends are required"})
		}

		err := roster.SetAttendance(c.Request().Context(), req.ID, *req.Attends)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return c.JSON(http.StatusNotFound, map[string]string{"error": "not registered"})
		case err != nil:
			c.Logger().Errorf("set attendance failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}
		return c.JSON(http.StatusOK, map[string]any{"id": req.ID, "attends": *req.Attends})
	}
}
