package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/promptloom/internal/api/auth"
	"github.com/promptloom/internal/coordinator"
)

type promptRequest struct {
	Title      string  `json:"title"`
	Body       string  `json:"body"`
	ChangeNote *string `json:"change_note,omitempty"`
}

func (r *promptRequest) validate() error {
	if strings.TrimSpace(r.Title) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "title is required")
	}
	if strings.TrimSpace(r.Body) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "body is required")
	}
	return nil
}

func promptIDParam(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid prompt id")
	}
	return id, nil
}

// POST /api/v1/prompts
func (s *Server) CreatePrompt(c echo.Context) error {
	authorID := auth.MustGetAuthorID(c)

	var req promptRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := req.validate(); err != nil {
		return err
	}

	p, err := s.coordinator.CreatePrompt(c.Request().Context(), coordinator.CreateInput{
		Title:    req.Title,
		Body:     req.Body,
		AuthorID: authorID,
	})
	if err != nil {
		return engineError(c, err)
	}

	return c.JSON(http.StatusCreated, map[string]any{"prompt": p})
}

// GET /api/v1/prompts/:id
func (s *Server) GetPrompt(c echo.Context) error {
	id, err := promptIDParam(c)
	if err != nil {
		return err
	}

	p, err := s.prompts.Get(c.Request().Context(), id)
	if err != nil {
		return engineError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]any{"prompt": p})
}

// GET /api/v1/prompts
// Query: author (required), limit (optional)
func (s *Server) ListPrompts(c echo.Context) error {
	author := strings.TrimSpace(c.QueryParam("author"))
	if author == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "author query parameter is required")
	}

	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid limit")
		}
		limit = n
	}

	prompts, err := s.prompts.ListByAuthor(c.Request().Context(), author, limit)
	if err != nil {
		return engineError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"prompts": prompts,
		"count":   len(prompts),
	})
}

// PUT /api/v1/prompts/:id
func (s *Server) EditPrompt(c echo.Context) error {
	authorID := auth.MustGetAuthorID(c)

	id, err := promptIDParam(c)
	if err != nil {
		return err
	}

	var req promptRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := req.validate(); err != nil {
		return err
	}

	rev, err := s.coordinator.EditPrompt(c.Request().Context(), id, req.Title, req.Body, authorID, req.ChangeNote)
	if err != nil {
		return engineError(c, err)
	}

	return c.JSON(http.StatusCreated, map[string]any{"version": rev})
}

// POST /api/v1/prompts/:id/remix
func (s *Server) RemixPrompt(c echo.Context) error {
	authorID := auth.MustGetAuthorID(c)

	parentID, err := promptIDParam(c)
	if err != nil {
		return err
	}

	var req promptRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := req.validate(); err != nil {
		return err
	}

	p, err := s.coordinator.CreateRemix(c.Request().Context(), parentID, coordinator.CreateInput{
		Title:    req.Title,
		Body:     req.Body,
		AuthorID: authorID,
	})
	if err != nil {
		return engineError(c, err)
	}

	return c.JSON(http.StatusCreated, map[string]any{"prompt": p})
}

// POST /api/v1/prompts/:id/duplicate
func (s *Server) DuplicatePrompt(c echo.Context) error {
	authorID := auth.MustGetAuthorID(c)

	id, err := promptIDParam(c)
	if err != nil {
		return err
	}

	p, err := s.coordinator.DuplicatePrompt(c.Request().Context(), id, authorID)
	if err != nil {
		return engineError(c, err)
	}

	return c.JSON(http.StatusCreated, map[string]any{"prompt": p})
}

// POST /api/v1/prompts/:id/view
func (s *Server) RecordView(c echo.Context) error {
	id, err := promptIDParam(c)
	if err != nil {
		return err
	}

	views, err := s.coordinator.RecordView(c.Request().Context(), id)
	if err != nil {
		return engineError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]any{"views": views})
}

// GET /api/v1/prompts/:id/counters/:name
func (s *Server) GetCounter(c echo.Context) error {
	id, err := promptIDParam(c)
	if err != nil {
		return err
	}

	value, err := s.counters.GetValue(c.Request().Context(), id, c.Param("name"))
	if err != nil {
		return engineError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]any{"name": c.Param("name"), "value": value})
}
