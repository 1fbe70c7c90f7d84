package main

import (
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/urfave/cli/v2"
)

var (
	// Version information (set via ldflags during build)
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	// Local development convenience; a missing .env is not an error.
	_ = godotenv.Load()

	app := &cli.App{
		Name:  "rakeback",
		Usage: "Jupiter referral fee settlement service CLI",
		Description: `A command-line tool for managing and debugging the rakeback service.

Use this CLI to run migrations, inspect ledger state, manage Temporal
schedules, and exercise the HTTP API.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Commands: []*cli.Command{
			// Database migration and inspection commands
			{
				Name:  "db",
				Usage: "Database migration and inspection commands",
				Subcommands: []*cli.Command{
					migrateCommand(),
					getUserCommand(),
					platformStatsCommand(),
					pendingPayoutsCommand(),
				},
			},
			// Temporal schedule management commands
			{
				Name:  "temporal",
				Usage: "Temporal schedule management commands",
				Subcommands: []*cli.Command{
					listSchedulesCommand(),
					createSchedulesCommand(),
					deleteScheduleCommand(),
					triggerClaimCommand(),
					triggerPayoutsCommand(),
				},
			},
			// Client commands (HTTP API)
			clientCommands(),
			// Server utility commands
			{
				Name:  "server",
				Usage: "Server utility commands",
				Subcommands: []*cli.Command{
					healthCommand(),
					versionCommand(),
				},
			},
		},
		// Global flags available to all commands
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Database connection URL",
				EnvVars: []string{"DATABASE_URL"},
			},
			&cli.StringFlag{
				Name:    "temporal-host",
				Usage:   "Temporal server address",
				EnvVars: []string{"TEMPORAL_HOST"},
				Value:   "localhost:7233",
			},
			&cli.StringFlag{
				Name:    "temporal-namespace",
				Usage:   "Temporal namespace",
				EnvVars: []string{"TEMPORAL_NAMESPACE"},
				Value:   "default",
			},
			&cli.StringFlag{
				Name:    "task-queue",
				Usage:   "Temporal task queue",
				EnvVars: []string{"TEMPORAL_TASK_QUEUE"},
				Value:   "rakeback-settlement",
			},
			&cli.StringFlag{
				Name:    "server-url",
				Usage:   "Server URL for HTTP API commands",
				EnvVars: []string{"SERVER_URL"},
				Value:   "http://localhost:8080",
			},
			&cli.StringFlag{
				Name:    "admin-key",
				Usage:   "Admin key for protected endpoints",
				EnvVars: []string{"ADMIN_KEY"},
			},
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Output in JSON format",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Enable debug logging",
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// newLogger builds the CLI logger. Colorized output goes to stderr so
// stdout stays clean for JSON.
func newLogger(c *cli.Context) *slog.Logger {
	level := slog.LevelInfo
	if c.Bool("verbose") {
		level = slog.LevelDebug
	}
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level: level,
	}))
}
