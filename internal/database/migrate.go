package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog/log"
)

// Schema statements are idempotent so Migrate can run on every boot.
// Each engine component owns exactly one of these tables and enforces its
// own invariants; the uniqueness and check constraints below are the
// storage-level halves of those invariants.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS prompts (
		id         UUID PRIMARY KEY,
		title      TEXT NOT NULL,
		body       TEXT NOT NULL,
		author_id  TEXT NOT NULL,
		parent_id  UUID REFERENCES prompts(id),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_prompts_parent_id ON prompts(parent_id)`,
	`CREATE INDEX IF NOT EXISTS idx_prompts_author_id ON prompts(author_id)`,

	`CREATE TABLE IF NOT EXISTS prompt_revisions (
		id             BIGSERIAL PRIMARY KEY,
		prompt_id      UUID NOT NULL REFERENCES prompts(id),
		version_number INTEGER NOT NULL CHECK (version_number >= 1),
		title          TEXT NOT NULL,
		body           TEXT NOT NULL,
		change_note    TEXT,
		author_id      TEXT NOT NULL,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (prompt_id, version_number)
	)`,

	`CREATE TABLE IF NOT EXISTS prompt_counters (
		prompt_id  UUID NOT NULL REFERENCES prompts(id),
		name       TEXT NOT NULL,
		value      BIGINT NOT NULL DEFAULT 0 CHECK (value >= 0),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (prompt_id, name)
	)`,

	`CREATE TABLE IF NOT EXISTS likes (
		user_id    TEXT NOT NULL,
		prompt_id  UUID NOT NULL REFERENCES prompts(id),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (user_id, prompt_id)
	)`,

	`CREATE TABLE IF NOT EXISTS challenge_votes (
		user_id    TEXT NOT NULL,
		prompt_id  UUID NOT NULL REFERENCES prompts(id),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (user_id, prompt_id)
	)`,
}

// Migrate applies the engine schema to the connected database.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement: %w", err)
		}
	}

	log.Info().Int("statements", len(schemaStatements)).Msg("Schema migration complete")
	return nil
}
