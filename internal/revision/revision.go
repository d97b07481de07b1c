package revision

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/promptloom/internal/prompt"
	"github.com/promptloom/internal/retry"
	"github.com/promptloom/pkg/models"
)

var (
	// ErrNotFound is returned when a revision (or its prompt) does not exist.
	ErrNotFound = errors.New("revision not found")

	// ErrConcurrencyExhausted is returned when version-number contention
	// persists beyond the retry budget.
	ErrConcurrencyExhausted = errors.New("revision numbering contention exhausted retry budget")
)

// Manager maintains the append-only revision chain of a prompt. History is
// never rewritten: edits append, and restores append a copy of an older
// revision as the new current one.
type Manager struct {
	db      *sql.DB
	prompts *prompt.Store
	retry   retry.Config
}

// NewManager creates a new revision chain manager. maxAttempts bounds the
// retries on (prompt_id, version_number) uniqueness violations.
func NewManager(db *sql.DB, prompts *prompt.Store, maxAttempts int) *Manager {
	cfg := retry.DefaultConfig()
	if maxAttempts > 0 {
		cfg.MaxAttempts = maxAttempts
	}
	return &Manager{db: db, prompts: prompts, retry: cfg}
}

const revisionColumns = `id, prompt_id, version_number, title, body, change_note, author_id, created_at`

func scanRevision(row interface{ Scan(...interface{}) error }) (*models.Revision, error) {
	var r models.Revision
	var note sql.NullString
	err := row.Scan(&r.ID, &r.PromptID, &r.VersionNumber, &r.Title, &r.Body, &note, &r.AuthorID, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	if note.Valid {
		r.ChangeNote = &note.String
	}
	return &r, nil
}

// Append creates the next revision for a prompt and updates the prompt's
// current title/body in the same transaction. Concurrent appends for the
// same prompt serialize on the prompt row lock; the uniqueness constraint
// on (prompt_id, version_number) backstops that, and violations are
// retried up to the configured budget before ErrConcurrencyExhausted.
func (m *Manager) Append(ctx context.Context, promptID uuid.UUID, title, body, authorID string, changeNote *string) (*models.Revision, error) {
	var rev *models.Revision

	err := retry.Do(ctx, m.retry, isUniqueViolation, func() error {
		r, err := m.appendOnce(ctx, promptID, title, body, authorID, changeNote)
		if err != nil {
			return err
		}
		rev = r
		return nil
	})

	if err != nil {
		if isUniqueViolation(err) {
			log.Warn().
				Str("prompt_id", promptID.String()).
				Int("attempts", m.retry.MaxAttempts).
				Msg("Revision append exhausted retry budget")
			return nil, fmt.Errorf("%w: %s", ErrConcurrencyExhausted, promptID)
		}
		return nil, err
	}

	return rev, nil
}

func (m *Manager) appendOnce(ctx context.Context, promptID uuid.UUID, title, body, authorID string, changeNote *string) (*models.Revision, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	rev, err := m.AppendTx(ctx, tx, promptID, title, body, authorID, changeNote)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit revision: %w", err)
	}

	return rev, nil
}

// AppendTx appends a revision inside a caller-owned transaction. Used by
// the coordinator to seed version 1 atomically with entity creation.
// Locking the prompt row first (via the current-content update) serializes
// concurrent appends for the same prompt within the transaction.
func (m *Manager) AppendTx(ctx context.Context, tx *sql.Tx, promptID uuid.UUID, title, body, authorID string, changeNote *string) (*models.Revision, error) {
	if _, err := m.prompts.WithTx(tx).UpdateCurrent(ctx, promptID, title, body); err != nil {
		if errors.Is(err, prompt.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	query := `
		INSERT INTO prompt_revisions (prompt_id, version_number, title, body, change_note, author_id)
		SELECT $1, COALESCE(MAX(version_number), 0) + 1, $2, $3, $4, $5
		FROM prompt_revisions WHERE prompt_id = $1
		RETURNING ` + revisionColumns

	var note interface{}
	if changeNote != nil && *changeNote != "" {
		note = *changeNote
	}

	rev, err := scanRevision(tx.QueryRowContext(ctx, query, promptID, title, body, note, authorID))
	if err != nil {
		return nil, fmt.Errorf("failed to insert revision: %w", err)
	}

	return rev, nil
}

// List returns all revisions of a prompt, most recent first.
func (m *Manager) List(ctx context.Context, promptID uuid.UUID) ([]*models.Revision, error) {
	query := `
		SELECT ` + revisionColumns + `
		FROM prompt_revisions
		WHERE prompt_id = $1
		ORDER BY version_number DESC
	`

	rows, err := m.db.QueryContext(ctx, query, promptID)
	if err != nil {
		return nil, fmt.Errorf("failed to query revisions: %w", err)
	}
	defer rows.Close()

	// Initialize as empty slice so JSON encodes to [] rather than null
	revisions := make([]*models.Revision, 0)
	for rows.Next() {
		r, err := scanRevision(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan revision: %w", err)
		}
		revisions = append(revisions, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating revisions: %w", err)
	}

	return revisions, nil
}

// Get retrieves a single revision by prompt id and version number.
func (m *Manager) Get(ctx context.Context, promptID uuid.UUID, versionNumber int) (*models.Revision, error) {
	query := `
		SELECT ` + revisionColumns + `
		FROM prompt_revisions
		WHERE prompt_id = $1 AND version_number = $2
	`

	rev, err := scanRevision(m.db.QueryRowContext(ctx, query, promptID, versionNumber))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get revision: %w", err)
	}

	return rev, nil
}

// Restore re-applies the content of a past revision as a brand-new current
// revision. Restoring v2 when the chain is at v5 produces v6 with v2's
// content; history is never deleted or renumbered.
func (m *Manager) Restore(ctx context.Context, promptID uuid.UUID, versionNumber int, authorID string) (*models.Revision, error) {
	target, err := m.Get(ctx, promptID, versionNumber)
	if err != nil {
		return nil, err
	}

	note := fmt.Sprintf("Restored from version %d", versionNumber)
	rev, err := m.Append(ctx, promptID, target.Title, target.Body, authorID, &note)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("prompt_id", promptID.String()).
		Int("restored_version", versionNumber).
		Int("new_version", rev.VersionNumber).
		Msg("Restored revision as new version")

	return rev, nil
}

// LatestVersion returns the highest version number for a prompt, 0 when no
// revisions exist yet.
func (m *Manager) LatestVersion(ctx context.Context, promptID uuid.UUID) (int, error) {
	var version int
	err := m.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version_number), 0) FROM prompt_revisions WHERE prompt_id = $1`,
		promptID,
	).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to get latest version: %w", err)
	}
	return version, nil
}

// isUniqueViolation reports whether err is a Postgres unique constraint
// violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
