package main

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	slogecho "github.com/samber/slog-echo"

	"github.com/warden-project/warden/automod/cases"
	"github.com/warden-project/warden/settings"
)

// buildAPI assembles the operator-facing HTTP surface: health, settings
// management, and case listing. Everything here is backend plumbing for
// dashboards; the bot itself never calls it.
func (s *Server) buildAPI() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(slogecho.New(s.logger))
	e.Use(middleware.Recover())

	e.GET("/health", s.handleHealthCheck)
	e.GET("/guilds/:guildID/settings", s.handleGetSettings)
	e.PUT("/guilds/:guildID/settings", s.handlePutSettings)
	e.POST("/guilds/:guildID/settings/invalidate", s.handleInvalidateSettings)
	e.GET("/guilds/:guildID/cases", s.handleListCases)
	e.PATCH("/guilds/:guildID/cases/:caseUUID/reason", s.handleUpdateCaseReason)
	return e
}

type healthStatus struct {
	Service string `json:"service"`
	Status  string `json:"status"`
}

func (s *Server) handleHealthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, healthStatus{Service: "warden", Status: "ok"})
}

func (s *Server) handleGetSettings(c echo.Context) error {
	guildID := c.Param("guildID")
	snap, err := s.settings.GetGuildSettings(c.Request().Context(), guildID)
	if err != nil {
		return err
	}
	if snap == nil {
		return echo.NewHTTPError(http.StatusNotFound, "no settings for guild")
	}
	return c.JSON(http.StatusOK, snap)
}

// handlePutSettings replaces the guild's settings document and immediately
// syncs declared counters so triggers take effect without a restart.
func (s *Server) handlePutSettings(c echo.Context) error {
	guildID := c.Param("guildID")
	ctx := c.Request().Context()

	var snap settings.Snapshot
	if err := c.Bind(&snap); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := s.settings.PutGuildSettings(ctx, guildID, &snap); err != nil {
		return err
	}
	if snap.Plugins.Counters != nil {
		// counters sync against the base declaration; overrides only gate
		// rule behavior, never the schema
		if err := s.counters.Sync(ctx, guildID, snap.Plugins.Counters.Config); err != nil {
			return err
		}
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleInvalidateSettings(c echo.Context) error {
	guildID := c.Param("guildID")
	if err := s.settings.Invalidate(c.Request().Context(), guildID); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleListCases(c echo.Context) error {
	guildID := c.Param("guildID")
	limit := 50
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid limit")
		}
		limit = n
	}
	list, err := s.cases.ListGuildCases(c.Request().Context(), guildID, limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, list)
}

type caseReasonUpdate struct {
	Reason string `json:"reason"`
}

// handleUpdateCaseReason rewrites a case's reason; the recorder also edits
// the posted mod-log message when one exists.
func (s *Server) handleUpdateCaseReason(c echo.Context) error {
	var body caseReasonUpdate
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if body.Reason == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "reason is required")
	}
	updated, err := s.cases.UpdateReason(c.Request().Context(), c.Param("guildID"), c.Param("caseUUID"), body.Reason)
	if errors.Is(err, cases.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "no such case")
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, updated)
}
