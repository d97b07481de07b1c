package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/promptloom/internal/api/auth"
)

func versionParam(c echo.Context) (int, error) {
	version, err := strconv.Atoi(c.Param("version"))
	if err != nil || version < 1 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid version number")
	}
	return version, nil
}

// GET /api/v1/prompts/:id/versions
func (s *Server) ListVersions(c echo.Context) error {
	id, err := promptIDParam(c)
	if err != nil {
		return err
	}

	revisions, err := s.revisions.List(c.Request().Context(), id)
	if err != nil {
		return engineError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"versions": revisions,
		"count":    len(revisions),
	})
}

// GET /api/v1/prompts/:id/versions/:version
func (s *Server) GetVersion(c echo.Context) error {
	id, err := promptIDParam(c)
	if err != nil {
		return err
	}

	version, err := versionParam(c)
	if err != nil {
		return err
	}

	rev, err := s.revisions.Get(c.Request().Context(), id, version)
	if err != nil {
		return engineError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]any{"version": rev})
}

// POST /api/v1/prompts/:id/versions/:version/restore
func (s *Server) RestoreVersion(c echo.Context) error {
	authorID := auth.MustGetAuthorID(c)

	id, err := promptIDParam(c)
	if err != nil {
		return err
	}

	version, err := versionParam(c)
	if err != nil {
		return err
	}

	rev, err := s.coordinator.RestorePrompt(c.Request().Context(), id, version, authorID)
	if err != nil {
		return engineError(c, err)
	}

	return c.JSON(http.StatusCreated, map[string]any{"version": rev})
}
