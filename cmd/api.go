package cmd

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/promptloom/internal/api"
	"github.com/promptloom/internal/config"
	"github.com/promptloom/internal/coordinator"
	"github.com/promptloom/internal/counter"
	"github.com/promptloom/internal/database"
	"github.com/promptloom/internal/engagement"
	"github.com/promptloom/internal/jobqueue"
	"github.com/promptloom/internal/lineage"
	"github.com/promptloom/internal/logging"
	"github.com/promptloom/internal/prompt"
	"github.com/promptloom/internal/revision"
)

// ServeCommand returns the CLI command for starting the API server
func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the PromptLoom API server",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Override the configured API port",
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := config.LoadConfig(c.String("config"))
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if port := c.Int("port"); port > 0 {
				cfg.Server.Port = port
			}
			if err := config.Validate(cfg); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			logging.Setup(cfg.Server.LogLevel, cfg.Server.ConsoleLog)

			db, err := database.NewDB(cfg.Database.URL)
			if err != nil {
				return err
			}
			defer db.Close()

			ctx := context.Background()
			if err := database.Migrate(ctx, db); err != nil {
				return err
			}

			prompts := prompt.NewStore(db)
			counters := counter.NewService(db)
			revisions := revision.NewManager(db, prompts, cfg.Revisions.MaxAttempts)
			lin := lineage.NewBuilder(prompts, counters, cfg.Lineage.DepthCeiling)
			eng := engagement.NewService(db, counters)
			coord := coordinator.New(db, prompts, lin, revisions, counters)

			if cfg.Worker.Enabled {
				dbURL, err := database.ResolveURL(cfg.Database.URL)
				if err != nil {
					return err
				}

				jq, err := jobqueue.NewJobQueue(dbURL, cfg.Worker.ReconcileInterval)
				if err != nil {
					return fmt.Errorf("failed to create job queue: %w", err)
				}
				if err := jq.Start(ctx); err != nil {
					return fmt.Errorf("failed to start job queue: %w", err)
				}
				defer jq.Stop(ctx)

				coord.SetJobEnqueuer(jq)
			}

			log.Info().Int("port", cfg.Server.Port).Msg("Starting PromptLoom API server")

			server := api.NewServer(cfg, db, coord, prompts, lin, revisions, counters, eng)
			return server.Start()
		},
	}
}

// MigrateCommand returns the CLI command for applying the database schema
func MigrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Apply the database schema",
		Action: func(c *cli.Context) error {
			cfg, err := config.LoadConfig(c.String("config"))
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			logging.Setup(cfg.Server.LogLevel, cfg.Server.ConsoleLog)

			db, err := database.NewDB(cfg.Database.URL)
			if err != nil {
				return err
			}
			defer db.Close()

			return database.Migrate(context.Background(), db)
		},
	}
}
