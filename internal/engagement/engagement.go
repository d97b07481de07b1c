package engagement

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/promptloom/internal/counter"
	"github.com/promptloom/internal/prompt"
)

var (
	// ErrAlreadyLiked is returned when the user has already liked the prompt.
	ErrAlreadyLiked = errors.New("already liked")

	// ErrNotLiked is returned when unliking a prompt the user never liked.
	ErrNotLiked = errors.New("not liked")

	// ErrAlreadyVoted is returned when the user has already voted for the prompt.
	ErrAlreadyVoted = errors.New("already voted")

	// ErrNotVoted is returned when unvoting a prompt the user never voted for.
	ErrNotVoted = errors.New("not voted")
)

// Service enforces at-most-one like/vote per user per prompt via membership
// tables, and adjusts the engagement counters only when membership actually
// changed. The counter arithmetic itself stays race-free inside the counter
// service; this layer is the de-duplicating caller.
type Service struct {
	db       *sql.DB
	counters *counter.Service
}

// NewService creates a new engagement service
func NewService(db *sql.DB, counters *counter.Service) *Service {
	return &Service{db: db, counters: counters}
}

// Like records a like and returns the new like count.
func (s *Service) Like(ctx context.Context, userID string, promptID uuid.UUID) (int64, error) {
	return s.add(ctx, userID, promptID, "likes", counter.Likes, ErrAlreadyLiked)
}

// Unlike removes a like and returns the new like count. Duplicate unlikes
// return ErrNotLiked without touching the counter, so racing requests can
// never drive it negative.
func (s *Service) Unlike(ctx context.Context, userID string, promptID uuid.UUID) (int64, error) {
	return s.remove(ctx, userID, promptID, "likes", counter.Likes, ErrNotLiked)
}

// Vote records a challenge vote and returns the new vote count.
func (s *Service) Vote(ctx context.Context, userID string, promptID uuid.UUID) (int64, error) {
	return s.add(ctx, userID, promptID, "challenge_votes", counter.Votes, ErrAlreadyVoted)
}

// Unvote removes a challenge vote and returns the new vote count.
func (s *Service) Unvote(ctx context.Context, userID string, promptID uuid.UUID) (int64, error) {
	return s.remove(ctx, userID, promptID, "challenge_votes", counter.Votes, ErrNotVoted)
}

func (s *Service) add(ctx context.Context, userID string, promptID uuid.UUID, table, counterName string, dupErr error) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := fmt.Sprintf(`INSERT INTO %s (user_id, prompt_id) VALUES ($1, $2)`, table)
	if _, err := tx.ExecContext(ctx, query, userID, promptID); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) {
			switch pqErr.Code {
			case "23505":
				return 0, dupErr
			case "23503":
				return 0, prompt.ErrNotFound
			}
		}
		return 0, fmt.Errorf("failed to insert %s membership: %w", table, err)
	}

	value, err := s.counters.IncrementTx(ctx, tx, promptID, counterName, 1)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit %s: %w", table, err)
	}

	log.Debug().
		Str("prompt_id", promptID.String()).
		Str("counter", counterName).
		Int64("value", value).
		Msg("Recorded engagement")

	return value, nil
}

func (s *Service) remove(ctx context.Context, userID string, promptID uuid.UUID, table, counterName string, missingErr error) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := fmt.Sprintf(`DELETE FROM %s WHERE user_id = $1 AND prompt_id = $2`, table)
	result, err := tx.ExecContext(ctx, query, userID, promptID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete %s membership: %w", table, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return 0, missingErr
	}

	value, err := s.counters.DecrementTx(ctx, tx, promptID, counterName, 1)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit %s removal: %w", table, err)
	}

	return value, nil
}
