package counter

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/promptloom/pkg/models"
)

// Counter names attached to a prompt. Unknown names are rejected so a typo
// in a caller can't silently create a stray counter row.
const (
	Likes      = "likes"
	Votes      = "votes"
	RemixCount = "remix_count"
	ViewCount  = "view_count"
)

var knownNames = map[string]bool{
	Likes:      true,
	Votes:      true,
	RemixCount: true,
	ViewCount:  true,
}

// ErrUnknownCounter is returned for counter names outside the known set.
var ErrUnknownCounter = fmt.Errorf("unknown counter name")

// Querier is the subset of database/sql shared by *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Service provides concurrency-safe adjustment of named prompt counters.
// Every delta is applied in a single atomic statement, clamped at zero, so
// racing increments and decrements never lose updates or persist a negative
// value. De-duplication ("has this user already liked?") is the caller's
// job, not this service's.
type Service struct {
	db *sql.DB
}

// NewService creates a new counter service
func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// adjustQuery applies a delta and clamps at zero in one statement. The
// insert arm clamps too, so a decrement on a never-touched counter settles
// at zero instead of erroring on the check constraint.
const adjustQuery = `
	INSERT INTO prompt_counters (prompt_id, name, value)
	VALUES ($1, $2, GREATEST(0, $3::bigint))
	ON CONFLICT (prompt_id, name)
	DO UPDATE SET value = GREATEST(0, prompt_counters.value + $3), updated_at = NOW()
	RETURNING value
`

// Increment adds delta (default 1 when callers pass 1) to the named counter
// and returns the new value.
func (s *Service) Increment(ctx context.Context, promptID uuid.UUID, name string, delta int64) (int64, error) {
	return s.adjust(ctx, s.db, promptID, name, delta)
}

// IncrementTx is Increment running inside a caller-owned transaction.
func (s *Service) IncrementTx(ctx context.Context, tx *sql.Tx, promptID uuid.UUID, name string, delta int64) (int64, error) {
	return s.adjust(ctx, tx, promptID, name, delta)
}

// Decrement subtracts delta from the named counter, clamped at zero. A
// decrement below zero is a no-op settling at zero, absorbing duplicate or
// racing unlike requests.
func (s *Service) Decrement(ctx context.Context, promptID uuid.UUID, name string, delta int64) (int64, error) {
	return s.adjust(ctx, s.db, promptID, name, -delta)
}

// DecrementTx is Decrement running inside a caller-owned transaction.
func (s *Service) DecrementTx(ctx context.Context, tx *sql.Tx, promptID uuid.UUID, name string, delta int64) (int64, error) {
	return s.adjust(ctx, tx, promptID, name, -delta)
}

func (s *Service) adjust(ctx context.Context, q Querier, promptID uuid.UUID, name string, delta int64) (int64, error) {
	if !knownNames[name] {
		return 0, fmt.Errorf("%w: %s", ErrUnknownCounter, name)
	}

	var value int64
	err := q.QueryRowContext(ctx, adjustQuery, promptID, name, delta).Scan(&value)
	if err != nil {
		return 0, fmt.Errorf("failed to adjust counter %s: %w", name, err)
	}

	log.Debug().
		Str("prompt_id", promptID.String()).
		Str("counter", name).
		Int64("delta", delta).
		Int64("value", value).
		Msg("Adjusted counter")

	return value, nil
}

// GetValue returns the current value of the named counter, 0 if it has
// never been touched.
func (s *Service) GetValue(ctx context.Context, promptID uuid.UUID, name string) (int64, error) {
	if !knownNames[name] {
		return 0, fmt.Errorf("%w: %s", ErrUnknownCounter, name)
	}

	var value int64
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM prompt_counters WHERE prompt_id = $1 AND name = $2`,
		promptID, name,
	).Scan(&value)

	if err != nil {
		if err == sql.ErrNoRows {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get counter %s: %w", name, err)
	}

	return value, nil
}

// ValuesFor returns all counters for a batch of prompts in one query,
// keyed by prompt id then counter name. Prompts with no counter rows map
// to an empty inner map. Used by the lineage builder for tree rollups.
func (s *Service) ValuesFor(ctx context.Context, promptIDs []uuid.UUID) (map[uuid.UUID]models.Rollup, error) {
	rollups := make(map[uuid.UUID]models.Rollup, len(promptIDs))
	if len(promptIDs) == 0 {
		return rollups, nil
	}

	ids := make([]string, len(promptIDs))
	for i, id := range promptIDs {
		ids[i] = id.String()
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT prompt_id, name, value FROM prompt_counters WHERE prompt_id = ANY($1)`,
		pq.Array(ids),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query counters: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var promptID uuid.UUID
		var name string
		var value int64
		if err := rows.Scan(&promptID, &name, &value); err != nil {
			return nil, fmt.Errorf("failed to scan counter row: %w", err)
		}

		rollup := rollups[promptID]
		switch name {
		case Likes:
			rollup.Likes = value
		case ViewCount:
			rollup.Views = value
		case RemixCount:
			rollup.DirectRemixes = value
		}
		rollups[promptID] = rollup
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating counter rows: %w", err)
	}

	return rollups, nil
}
