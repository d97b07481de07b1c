/*
Package jobqueue provides a River-based job queue for counter
reconciliation: recomputing the derived engagement counters (remix_count,
likes, votes) from their source relations.

For configuration options and tuning parameters, see queue_config.go.
*/
package jobqueue

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/rs/zerolog/log"
)

// CounterReconcileArgs represents the arguments for a counter
// reconciliation job. A nil PromptID requests a full sweep.
type CounterReconcileArgs struct {
	PromptID *uuid.UUID `json:"prompt_id,omitempty"`
}

// Kind returns the job kind for River
func (CounterReconcileArgs) Kind() string {
	return "counter_reconcile"
}

// CounterReconcileWorker recomputes derived counters from their source
// relations and overwrites the counter rows. view_count has no source
// relation and is never reconciled.
type CounterReconcileWorker struct {
	river.WorkerDefaults[CounterReconcileArgs]
	pool   *pgxpool.Pool
	config *QueueConfig
}

// Timeout bounds a single reconciliation run.
func (w *CounterReconcileWorker) Timeout(*river.Job[CounterReconcileArgs]) time.Duration {
	return w.config.JobTimeout
}

// Work performs the reconciliation
func (w *CounterReconcileWorker) Work(ctx context.Context, job *river.Job[CounterReconcileArgs]) error {
	if job.Args.PromptID != nil {
		return w.reconcilePrompt(ctx, *job.Args.PromptID)
	}
	return w.reconcileAll(ctx)
}

// counterSources maps each derived counter to the relation it is derived
// from and the column joining that relation back to the counted prompt.
var counterSources = []struct {
	name     string
	table    string
	groupCol string
}{
	{"remix_count", "prompts", "parent_id"},
	{"likes", "likes", "prompt_id"},
	{"votes", "challenge_votes", "prompt_id"},
}

func (w *CounterReconcileWorker) reconcilePrompt(ctx context.Context, promptID uuid.UUID) error {
	for _, src := range counterSources {
		query := fmt.Sprintf(`
			INSERT INTO prompt_counters (prompt_id, name, value)
			SELECT $1, $2, COUNT(*) FROM %s WHERE %s = $1
			ON CONFLICT (prompt_id, name)
			DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
		`, src.table, src.groupCol)

		if _, err := w.pool.Exec(ctx, query, promptID, src.name); err != nil {
			return fmt.Errorf("failed to reconcile %s for prompt %s: %w", src.name, promptID, err)
		}
	}

	log.Debug().Str("prompt_id", promptID.String()).Msg("Reconciled prompt counters")
	return nil
}

func (w *CounterReconcileWorker) reconcileAll(ctx context.Context) error {
	started := time.Now()

	for _, src := range counterSources {
		// Recompute counters that have source rows.
		upsert := fmt.Sprintf(`
			INSERT INTO prompt_counters (prompt_id, name, value)
			SELECT %s, $1, COUNT(*) FROM %s WHERE %s IS NOT NULL GROUP BY %s
			ON CONFLICT (prompt_id, name)
			DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
		`, src.groupCol, src.table, src.groupCol, src.groupCol)

		if _, err := w.pool.Exec(ctx, upsert, src.name); err != nil {
			return fmt.Errorf("failed to sweep %s counters: %w", src.name, err)
		}

		// Zero stale counters whose source rows are all gone; the
		// grouped insert above never emits a row for those.
		zero := fmt.Sprintf(`
			UPDATE prompt_counters pc
			SET value = 0, updated_at = NOW()
			WHERE pc.name = $1 AND pc.value > 0
			  AND NOT EXISTS (SELECT 1 FROM %s s WHERE s.%s = pc.prompt_id)
		`, src.table, src.groupCol)

		if _, err := w.pool.Exec(ctx, zero, src.name); err != nil {
			return fmt.Errorf("failed to zero stale %s counters: %w", src.name, err)
		}
	}

	log.Info().Dur("took", time.Since(started)).Msg("Full counter reconciliation sweep complete")
	return nil
}

// JobQueue manages the River job queue
type JobQueue struct {
	client *river.Client[pgx.Tx]
	pool   *pgxpool.Pool
	config *QueueConfig
}

// NewJobQueue creates a new job queue instance. reconcileInterval overrides
// the default full-sweep cadence when positive.
func NewJobQueue(databaseURL string, reconcileInterval time.Duration) (*JobQueue, error) {
	config := DefaultQueueConfig()
	if reconcileInterval > 0 {
		config.ReconcileInterval = reconcileInterval
	}

	// Create a pgx connection pool
	pool, err := pgxpool.New(context.Background(), databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Create River client
	workers := river.NewWorkers()
	river.AddWorker(workers, &CounterReconcileWorker{pool: pool, config: config})

	periodic := []*river.PeriodicJob{
		river.NewPeriodicJob(
			river.PeriodicInterval(config.ReconcileInterval),
			func() (river.JobArgs, *river.InsertOpts) {
				return CounterReconcileArgs{}, nil
			},
			&river.PeriodicJobOpts{RunOnStart: true},
		),
	}

	client, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues:       config.RiverQueueConfig(),
		Workers:      workers,
		PeriodicJobs: periodic,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create River client: %w", err)
	}

	return &JobQueue{
		client: client,
		pool:   pool,
		config: config,
	}, nil
}

// Start starts the job queue workers
func (jq *JobQueue) Start(ctx context.Context) error {
	return jq.client.Start(ctx)
}

// Stop stops the job queue workers
func (jq *JobQueue) Stop(ctx context.Context) error {
	defer jq.pool.Close()
	return jq.client.Stop(ctx)
}

// EnqueueCounterReconcile queues a reconciliation for one prompt.
func (jq *JobQueue) EnqueueCounterReconcile(ctx context.Context, promptID uuid.UUID) error {
	_, err := jq.client.Insert(ctx, CounterReconcileArgs{PromptID: &promptID}, nil)
	if err != nil {
		return fmt.Errorf("failed to queue counter reconcile job: %w", err)
	}
	return nil
}
