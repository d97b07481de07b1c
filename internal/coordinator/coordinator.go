package coordinator

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/promptloom/internal/counter"
	"github.com/promptloom/internal/lineage"
	"github.com/promptloom/internal/prompt"
	"github.com/promptloom/internal/revision"
	"github.com/promptloom/pkg/models"
)

// RemixRejectedError wraps the lineage failure that prevented a remix.
// These should never occur in normal operation; they indicate either a bug
// or a scripted abuse of the parent-selection input.
type RemixRejectedError struct {
	Cause error
}

func (e *RemixRejectedError) Error() string {
	return fmt.Sprintf("remix rejected: %v", e.Cause)
}

func (e *RemixRejectedError) Unwrap() error {
	return e.Cause
}

// JobEnqueuer schedules background counter reconciliation. Optional; the
// engine's invariants do not depend on it.
type JobEnqueuer interface {
	EnqueueCounterReconcile(ctx context.Context, promptID uuid.UUID) error
}

// Coordinator sequences multi-component operations so the cross-cutting
// invariants hold: a remix creates the entity, the lineage edge, the seed
// revision and the parent's remix counter bump in one transaction, or none
// of them.
type Coordinator struct {
	db        *sql.DB
	prompts   *prompt.Store
	lineage   *lineage.Builder
	revisions *revision.Manager
	counters  *counter.Service
	jobs      JobEnqueuer
}

// New creates a new coordinator
func New(db *sql.DB, prompts *prompt.Store, lin *lineage.Builder, revisions *revision.Manager, counters *counter.Service) *Coordinator {
	return &Coordinator{
		db:        db,
		prompts:   prompts,
		lineage:   lin,
		revisions: revisions,
		counters:  counters,
	}
}

// SetJobEnqueuer wires the optional background reconciliation queue.
func (c *Coordinator) SetJobEnqueuer(jobs JobEnqueuer) {
	c.jobs = jobs
}

// CreateInput carries the editable content for create/remix/edit calls.
type CreateInput struct {
	Title    string
	Body     string
	AuthorID string
}

// CreatePrompt creates a root prompt and seeds its revision chain with
// version 1 in one transaction.
func (c *Coordinator) CreatePrompt(ctx context.Context, in CreateInput) (*models.Prompt, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	p := &models.Prompt{
		ID:       uuid.New(),
		Title:    in.Title,
		Body:     in.Body,
		AuthorID: in.AuthorID,
	}

	if err := c.prompts.WithTx(tx).Create(ctx, p); err != nil {
		return nil, err
	}

	if _, err := c.revisions.AppendTx(ctx, tx, p.ID, in.Title, in.Body, in.AuthorID, nil); err != nil {
		return nil, fmt.Errorf("failed to seed revision chain: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit prompt creation: %w", err)
	}

	log.Info().Str("prompt_id", p.ID.String()).Msg("Created prompt")
	return p, nil
}

// CreateRemix creates a new prompt remixed from parentID: the entity row,
// the validated lineage edge, revision 1 and the parent's remix_count bump
// all commit together. Lineage failures surface as RemixRejectedError with
// no partial state.
func (c *Coordinator) CreateRemix(ctx context.Context, parentID uuid.UUID, in CreateInput) (*models.Prompt, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	txPrompts := c.prompts.WithTx(tx)

	p := &models.Prompt{
		ID:       uuid.New(),
		Title:    in.Title,
		Body:     in.Body,
		AuthorID: in.AuthorID,
	}

	if err := txPrompts.Create(ctx, p); err != nil {
		return nil, err
	}

	if err := c.lineage.AttachChild(ctx, txPrompts, tx, parentID, p.ID); err != nil {
		if errors.Is(err, lineage.ErrCycleWouldForm) ||
			errors.Is(err, lineage.ErrCycleDetected) ||
			errors.Is(err, lineage.ErrParentNotFound) {
			return nil, &RemixRejectedError{Cause: err}
		}
		return nil, err
	}

	if _, err := c.revisions.AppendTx(ctx, tx, p.ID, in.Title, in.Body, in.AuthorID, nil); err != nil {
		return nil, fmt.Errorf("failed to seed revision chain: %w", err)
	}

	if _, err := c.counters.IncrementTx(ctx, tx, parentID, counter.RemixCount, 1); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit remix: %w", err)
	}

	p.ParentID = &parentID

	log.Info().
		Str("prompt_id", p.ID.String()).
		Str("parent_id", parentID.String()).
		Msg("Created remix")

	if c.jobs != nil {
		if err := c.jobs.EnqueueCounterReconcile(ctx, parentID); err != nil {
			log.Warn().Err(err).Msg("Failed to enqueue counter reconciliation")
		}
	}

	return p, nil
}

// DuplicatePrompt creates a remix of the prompt with the same body and a
// "Copy of" title, attributed to the duplicating author.
func (c *Coordinator) DuplicatePrompt(ctx context.Context, id uuid.UUID, authorID string) (*models.Prompt, error) {
	source, err := c.prompts.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	return c.CreateRemix(ctx, id, CreateInput{
		Title:    "Copy of " + source.Title,
		Body:     source.Body,
		AuthorID: authorID,
	})
}

// EditPrompt appends a new revision; lineage and counters are untouched.
func (c *Coordinator) EditPrompt(ctx context.Context, id uuid.UUID, title, body, authorID string, changeNote *string) (*models.Revision, error) {
	return c.revisions.Append(ctx, id, title, body, authorID, changeNote)
}

// RestorePrompt re-applies a past revision as the new current one.
func (c *Coordinator) RestorePrompt(ctx context.Context, id uuid.UUID, versionNumber int, authorID string) (*models.Revision, error) {
	return c.revisions.Restore(ctx, id, versionNumber, authorID)
}

// RecordView bumps the view counter. A foreign-key violation means the
// prompt does not exist.
func (c *Coordinator) RecordView(ctx context.Context, id uuid.UUID) (int64, error) {
	value, err := c.counters.Increment(ctx, id, counter.ViewCount, 1)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23503" {
			return 0, prompt.ErrNotFound
		}
		return 0, err
	}
	return value, nil
}
