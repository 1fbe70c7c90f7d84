package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/urfave/cli/v2"

	"github.com/arbelos/rakeback/service/db"
)

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Run database migrations",
		Subcommands: []*cli.Command{
			{
				Name:  "up",
				Usage: "Apply all pending migrations",
				Action: func(c *cli.Context) error {
					dbURL, err := requireDatabaseURL(c)
					if err != nil {
						return err
					}
					return db.MigrateUp(newLogger(c), dbURL)
				},
			},
			{
				Name:  "down",
				Usage: "Roll back the most recent migration",
				Action: func(c *cli.Context) error {
					dbURL, err := requireDatabaseURL(c)
					if err != nil {
						return err
					}
					return db.MigrateDown(newLogger(c), dbURL)
				},
			},
			{
				Name:  "status",
				Usage: "Show migration status",
				Action: func(c *cli.Context) error {
					dbURL, err := requireDatabaseURL(c)
					if err != nil {
						return err
					}
					return db.MigrateStatus(newLogger(c), dbURL)
				},
			},
		},
	}
}

func getUserCommand() *cli.Command {
	return &cli.Command{
		Name:      "get-user",
		Usage:     "Get user details",
		Aliases:   []string{"get"},
		ArgsUsage: "<wallet-address>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: wallet address")
			}

			address := c.Args().First()
			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			user, err := store.GetUserByWallet(context.Background(), address)
			if err != nil {
				return fmt.Errorf("failed to get user: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(user)
			}

			// Pretty output
			fmt.Printf("Wallet:          %s\n", user.WalletAddress)
			fmt.Printf("Referral Code:   %s\n", user.ReferralCode)
			fmt.Printf("Lifetime Volume: $%.2f\n", user.LifetimeVolumeUSD)
			fmt.Printf("30d Volume:      $%.2f\n", user.Volume30dUSD)
			if user.LastTradeAt != nil {
				fmt.Printf("Last Trade:      %s\n", user.LastTradeAt.Format(time.RFC3339))
			} else {
				fmt.Printf("Last Trade:      never\n")
			}
			fmt.Printf("Created:         %s\n", user.CreatedAt.Format(time.RFC3339))

			return nil
		},
	}
}

func platformStatsCommand() *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Show platform-wide volume and fee totals",
		Action: func(c *cli.Context) error {
			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			stats, err := store.GetPlatformStats(context.Background())
			if err != nil {
				return fmt.Errorf("failed to get platform stats: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(stats)
			}

			fmt.Printf("Users:         %d\n", stats.UserCount)
			fmt.Printf("Swaps:         %d\n", stats.SwapCount)
			fmt.Printf("Total Volume:  $%.2f\n", stats.TotalVolumeUSD)
			fmt.Printf("Gross Fees:    $%.2f\n", stats.GrossFeesUSD)
			fmt.Printf("Platform:      $%.2f\n", stats.PlatformUSD)
			fmt.Printf("Referrers:     $%.2f\n", stats.ReferrerUSD)

			return nil
		},
	}
}

func pendingPayoutsCommand() *cli.Command {
	return &cli.Command{
		Name:  "pending-payouts",
		Usage: "List what each referrer is currently owed",
		Flags: []cli.Flag{
			&cli.Float64Flag{
				Name:  "min",
				Usage: "Minimum owed amount in USD",
				Value: 1.00,
			},
		},
		Action: func(c *cli.Context) error {
			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			pending, err := store.ListPendingPayouts(context.Background(), c.Float64("min"))
			if err != nil {
				return fmt.Errorf("failed to list pending payouts: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(pending)
			}

			// Pretty table output
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "REFERRER\tOWED")
			total := 0.0
			for _, p := range pending {
				fmt.Fprintf(w, "%s\t$%.2f\n", p.ReferrerWallet, p.AmountUSD)
				total += p.AmountUSD
			}
			w.Flush()

			fmt.Fprintf(os.Stderr, "\nTotal: %d referrers, $%.2f owed\n", len(pending), total)
			return nil
		},
	}
}

// Helper function to connect to database
func getStore(c *cli.Context) (*db.Store, func(), error) {
	dbURL, err := requireDatabaseURL(c)
	if err != nil {
		return nil, nil, err
	}

	pool, err := pgxpool.New(context.Background(), dbURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := db.NewStore(pool)
	closer := func() { pool.Close() }

	return store, closer, nil
}

func requireDatabaseURL(c *cli.Context) (string, error) {
	dbURL := c.String("database-url")
	if dbURL == "" {
		dbURL = os.Getenv("DATABASE_URL")
	}
	if dbURL == "" {
		return "", fmt.Errorf("database-url is required (set DATABASE_URL env var or use --database-url)")
	}
	return dbURL, nil
}

// Helper function to output JSON
func outputJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
