package prompt

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/promptloom/pkg/models"
)

// ErrNotFound is returned when a prompt id does not exist.
var ErrNotFound = errors.New("prompt not found")

// Querier is the subset of database/sql shared by *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Store provides database operations on prompt rows. The parent_id column
// is owned by the lineage builder; everything else belongs here.
type Store struct {
	q Querier
}

// NewStore creates a new prompt store
func NewStore(db *sql.DB) *Store {
	return &Store{q: db}
}

// WithTx returns a store bound to the given transaction.
func (s *Store) WithTx(tx *sql.Tx) *Store {
	return &Store{q: tx}
}

const promptColumns = `id, title, body, author_id, parent_id, created_at, updated_at`

func scanPrompt(row interface{ Scan(...interface{}) error }) (*models.Prompt, error) {
	var p models.Prompt
	var parentID sql.NullString
	err := row.Scan(&p.ID, &p.Title, &p.Body, &p.AuthorID, &parentID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if parentID.Valid {
		id, err := uuid.Parse(parentID.String)
		if err != nil {
			return nil, fmt.Errorf("invalid parent id %q: %w", parentID.String, err)
		}
		p.ParentID = &id
	}
	return &p, nil
}

// Create inserts a new prompt row. The id must be set by the caller; the
// row always starts without a parent (lineage attaches the edge).
func (s *Store) Create(ctx context.Context, p *models.Prompt) error {
	query := `
		INSERT INTO prompts (id, title, body, author_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		RETURNING created_at, updated_at
	`

	err := s.q.QueryRowContext(ctx, query, p.ID, p.Title, p.Body, p.AuthorID).
		Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create prompt: %w", err)
	}

	return nil
}

// Get retrieves a prompt by id
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*models.Prompt, error) {
	query := `SELECT ` + promptColumns + ` FROM prompts WHERE id = $1`

	p, err := scanPrompt(s.q.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get prompt: %w", err)
	}

	return p, nil
}

// ListByAuthor retrieves all prompts created by an author, newest first.
func (s *Store) ListByAuthor(ctx context.Context, authorID string, limit int) ([]*models.Prompt, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	query := `
		SELECT ` + promptColumns + `
		FROM prompts
		WHERE author_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2
	`

	rows, err := s.q.QueryContext(ctx, query, authorID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list prompts by author: %w", err)
	}
	defer rows.Close()

	// Initialize as empty slice so JSON encodes to [] rather than null
	prompts := make([]*models.Prompt, 0)
	for rows.Next() {
		p, err := scanPrompt(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan prompt: %w", err)
		}
		prompts = append(prompts, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating prompts: %w", err)
	}

	return prompts, nil
}

// ChildrenOf returns the direct children of each of the given prompts in
// one query, ordered by created_at then id so traversal order is stable.
func (s *Store) ChildrenOf(ctx context.Context, parentIDs []uuid.UUID) (map[uuid.UUID][]models.Prompt, error) {
	children := make(map[uuid.UUID][]models.Prompt, len(parentIDs))
	if len(parentIDs) == 0 {
		return children, nil
	}

	ids := make([]string, len(parentIDs))
	for i, id := range parentIDs {
		ids[i] = id.String()
	}

	query := `
		SELECT ` + promptColumns + `
		FROM prompts
		WHERE parent_id = ANY($1)
		ORDER BY created_at ASC, id ASC
	`

	rows, err := s.q.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to query children: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanPrompt(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan child prompt: %w", err)
		}
		children[*p.ParentID] = append(children[*p.ParentID], *p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating children: %w", err)
	}

	return children, nil
}

// UpdateCurrent sets the prompt's current title and body. Called by the
// revision chain manager inside the same transaction as the revision
// insert so the current row and the max revision can never diverge.
func (s *Store) UpdateCurrent(ctx context.Context, id uuid.UUID, title, body string) (time.Time, error) {
	var updatedAt time.Time
	err := s.q.QueryRowContext(ctx,
		`UPDATE prompts SET title = $1, body = $2, updated_at = NOW() WHERE id = $3 RETURNING updated_at`,
		title, body, id,
	).Scan(&updatedAt)

	if err != nil {
		if err == sql.ErrNoRows {
			return time.Time{}, ErrNotFound
		}
		return time.Time{}, fmt.Errorf("failed to update prompt content: %w", err)
	}

	return updatedAt, nil
}
