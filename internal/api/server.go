package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"

	"github.com/promptloom/internal/api/auth"
	"github.com/promptloom/internal/config"
	"github.com/promptloom/internal/coordinator"
	"github.com/promptloom/internal/counter"
	"github.com/promptloom/internal/engagement"
	"github.com/promptloom/internal/lineage"
	"github.com/promptloom/internal/prompt"
	"github.com/promptloom/internal/revision"
)

// Server represents the API server
type Server struct {
	echo *echo.Echo
	cfg  *config.Config
	db   *sql.DB

	prompts     *prompt.Store
	lineage     *lineage.Builder
	revisions   *revision.Manager
	counters    *counter.Service
	engagement  *engagement.Service
	coordinator *coordinator.Coordinator
}

// NewServer creates a new API server wired to the engine components.
func NewServer(cfg *config.Config, db *sql.DB, coord *coordinator.Coordinator, prompts *prompt.Store, lin *lineage.Builder, revisions *revision.Manager, counters *counter.Service, eng *engagement.Service) *Server {
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	server := &Server{
		echo:        e,
		cfg:         cfg,
		db:          db,
		prompts:     prompts,
		lineage:     lin,
		revisions:   revisions,
		counters:    counters,
		engagement:  eng,
		coordinator: coord,
	}

	// Setup routes
	server.setupRoutes()

	return server
}

// setupRoutes configures all API endpoints
func (s *Server) setupRoutes() {
	// Health check endpoint
	s.echo.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status": "healthy",
		})
	})

	// API v1 group
	v1 := s.echo.Group("/api/v1")
	authed := auth.RequireAuth(s.cfg.Auth.JWTSecret)

	// Prompt CRUD
	v1.POST("/prompts", s.CreatePrompt, authed)
	v1.GET("/prompts", s.ListPrompts)
	v1.GET("/prompts/:id", s.GetPrompt)
	v1.PUT("/prompts/:id", s.EditPrompt, authed)
	v1.POST("/prompts/:id/remix", s.RemixPrompt, authed)
	v1.POST("/prompts/:id/duplicate", s.DuplicatePrompt, authed)

	// Revisions
	v1.GET("/prompts/:id/versions", s.ListVersions)
	v1.GET("/prompts/:id/versions/:version", s.GetVersion)
	v1.POST("/prompts/:id/versions/:version/restore", s.RestoreVersion, authed)

	// Lineage
	v1.GET("/prompts/:id/ancestry", s.GetAncestry)
	v1.GET("/prompts/:id/remix-tree", s.GetRemixTree)

	// Engagement
	v1.POST("/prompts/:id/like", s.LikePrompt, authed)
	v1.POST("/prompts/:id/unlike", s.UnlikePrompt, authed)
	v1.POST("/prompts/:id/vote", s.VotePrompt, authed)
	v1.POST("/prompts/:id/unvote", s.UnvotePrompt, authed)

	// Counters. Views are unauthenticated and rate-limited per client IP.
	v1.POST("/prompts/:id/view", s.RecordView, s.viewRateLimiter())
	v1.GET("/prompts/:id/counters/:name", s.GetCounter)
}

// Start begins the API server
func (s *Server) Start() error {
	// Start server in a goroutine
	go func() {
		addr := fmt.Sprintf(":%d", s.cfg.Server.Port)
		if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("shutting down the server")
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return s.echo.Shutdown(ctx)
}

// engineError maps engine errors onto HTTP responses per the propagation
// policy: invariant violations surface as conflicts, contention as
// temporary unavailability, missing content as 404.
func engineError(c echo.Context, err error) error {
	var rejected *coordinator.RemixRejectedError

	switch {
	case errors.Is(err, prompt.ErrNotFound) || errors.Is(err, revision.ErrNotFound):
		return c.JSON(http.StatusNotFound, map[string]string{"error": "content unavailable"})
	case errors.As(err, &rejected):
		log.Error().Err(err).Msg("Remix rejected")
		return c.JSON(http.StatusConflict, map[string]string{"error": "could not create remix"})
	case errors.Is(err, lineage.ErrCycleWouldForm) || errors.Is(err, lineage.ErrCycleDetected):
		log.Error().Err(err).Msg("Lineage invariant violation")
		return c.JSON(http.StatusConflict, map[string]string{"error": "could not create remix"})
	case errors.Is(err, revision.ErrConcurrencyExhausted):
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "too much contention, try again"})
	case errors.Is(err, engagement.ErrAlreadyLiked) || errors.Is(err, engagement.ErrAlreadyVoted) ||
		errors.Is(err, engagement.ErrNotLiked) || errors.Is(err, engagement.ErrNotVoted):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, counter.ErrUnknownCounter):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "unknown counter"})
	default:
		log.Error().Err(err).Msg("Internal error")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}
