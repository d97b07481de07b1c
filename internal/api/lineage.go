package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

// GET /api/v1/prompts/:id/ancestry
func (s *Server) GetAncestry(c echo.Context) error {
	id, err := promptIDParam(c)
	if err != nil {
		return err
	}

	chain, err := s.lineage.AncestryChain(c.Request().Context(), id)
	if err != nil {
		return engineError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"ancestry": chain,
		"count":    len(chain),
	})
}

// GET /api/v1/prompts/:id/remix-tree
// Query: depth (optional, bounded by the configured ceiling)
func (s *Server) GetRemixTree(c echo.Context) error {
	id, err := promptIDParam(c)
	if err != nil {
		return err
	}

	depth := 0
	if raw := c.QueryParam("depth"); raw != "" {
		depth, err = strconv.Atoi(raw)
		if err != nil || depth < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid depth")
		}
	}

	tree, err := s.lineage.DescendantTree(c.Request().Context(), id, depth)
	if err != nil {
		return engineError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]any{"tree": tree})
}
