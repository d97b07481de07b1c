package api

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/promptloom/internal/api/auth"
)

type engagementOp func(c echo.Context, userID string, promptID uuid.UUID) (int64, string, error)

func (s *Server) engage(c echo.Context, op engagementOp) error {
	userID := auth.MustGetAuthorID(c)

	id, err := promptIDParam(c)
	if err != nil {
		return err
	}

	value, field, err := op(c, userID, id)
	if err != nil {
		return engineError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]any{field: value})
}

// POST /api/v1/prompts/:id/like
func (s *Server) LikePrompt(c echo.Context) error {
	return s.engage(c, func(c echo.Context, userID string, id uuid.UUID) (int64, string, error) {
		v, err := s.engagement.Like(c.Request().Context(), userID, id)
		return v, "likes", err
	})
}

// POST /api/v1/prompts/:id/unlike
func (s *Server) UnlikePrompt(c echo.Context) error {
	return s.engage(c, func(c echo.Context, userID string, id uuid.UUID) (int64, string, error) {
		v, err := s.engagement.Unlike(c.Request().Context(), userID, id)
		return v, "likes", err
	})
}

// POST /api/v1/prompts/:id/vote
func (s *Server) VotePrompt(c echo.Context) error {
	return s.engage(c, func(c echo.Context, userID string, id uuid.UUID) (int64, string, error) {
		v, err := s.engagement.Vote(c.Request().Context(), userID, id)
		return v, "votes", err
	})
}

// POST /api/v1/prompts/:id/unvote
func (s *Server) UnvotePrompt(c echo.Context) error {
	return s.engage(c, func(c echo.Context, userID string, id uuid.UUID) (int64, string, error) {
		v, err := s.engagement.Unvote(c.Request().Context(), userID, id)
		return v, "votes", err
	})
}
