package main

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/arbelos/rakeback/client"
)

func clientCommands() *cli.Command {
	return &cli.Command{
		Name:  "client",
		Usage: "HTTP client commands for interacting with the rakeback service",
		Subcommands: []*cli.Command{
			registerCommand(),
			clientGetUserCommand(),
			referralStatsCommand(),
			listSwapsCommand(),
			clientPendingPayoutsCommand(),
			clientClaimCommand(),
			clientSweepCommand(),
			clientRunPayoutsCommand(),
		},
	}
}

// getClient builds a service client from the global flags.
func getClient(c *cli.Context) *client.Client {
	return client.NewClient(c.String("server-url"), c.String("admin-key"), nil, newLogger(c))
}

func registerCommand() *cli.Command {
	return &cli.Command{
		Name:      "register",
		Usage:     "Register a wallet, optionally with a referral code",
		ArgsUsage: "<wallet-address>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "referred-by",
				Aliases: []string{"r"},
				Usage:   "Referral code of the referring wallet",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: wallet address")
			}

			var referredBy *string
			if code := c.String("referred-by"); code != "" {
				referredBy = &code
			}

			user, err := getClient(c).Register(context.Background(), c.Args().First(), referredBy)
			if err != nil {
				return fmt.Errorf("failed to register: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(user)
			}

			fmt.Printf("✓ Registered %s\n", user.WalletAddress)
			fmt.Printf("  Referral Code: %s\n", user.ReferralCode)
			return nil
		},
	}
}

func clientGetUserCommand() *cli.Command {
	return &cli.Command{
		Name:      "get-user",
		Usage:     "Fetch a user by wallet address",
		ArgsUsage: "<wallet-address>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: wallet address")
			}

			user, err := getClient(c).GetUser(context.Background(), c.Args().First())
			if err != nil {
				return fmt.Errorf("failed to get user: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(user)
			}

			fmt.Printf("Wallet:          %s\n", user.WalletAddress)
			fmt.Printf("Referral Code:   %s\n", user.ReferralCode)
			fmt.Printf("Lifetime Volume: $%.2f\n", user.LifetimeVolumeUSD)
			fmt.Printf("30d Volume:      $%.2f\n", user.Volume30dUSD)
			return nil
		},
	}
}

func referralStatsCommand() *cli.Command {
	return &cli.Command{
		Name:      "referral-stats",
		Usage:     "Fetch a referrer's aggregated earnings",
		ArgsUsage: "<wallet-address>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: wallet address")
			}

			stats, err := getClient(c).GetReferralStats(context.Background(), c.Args().First())
			if err != nil {
				return fmt.Errorf("failed to get referral stats: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(stats)
			}

			fmt.Printf("Referral Code: %s\n", stats.ReferralCode)
			fmt.Printf("Referees:      %d (%d capped)\n", stats.RefereeCount, stats.CappedCount)
			fmt.Printf("Earned:        $%.2f\n", stats.EarnedUSD)
			fmt.Printf("Paid:          $%.2f\n", stats.PaidUSD)
			fmt.Printf("Pending:       $%.2f\n", stats.PendingUSD)
			return nil
		},
	}
}

func listSwapsCommand() *cli.Command {
	return &cli.Command{
		Name:      "swaps",
		Usage:     "List a wallet's recorded swaps, newest first",
		ArgsUsage: "<wallet-address>",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Limit number of swaps",
				Value:   50,
			},
			&cli.IntFlag{
				Name:  "offset",
				Usage: "Pagination offset",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: wallet address")
			}

			swaps, err := getClient(c).ListSwaps(context.Background(), c.Args().First(), c.Int("limit"), c.Int("offset"))
			if err != nil {
				return fmt.Errorf("failed to list swaps: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(swaps)
			}

			for _, s := range swaps {
				fmt.Printf("%s  $%.2f (fee $%.4f)  %s\n",
					s.SwappedAt.Format(time.RFC3339), s.VolumeUSD, s.GrossFeeUSD, s.TxSignature)
			}
			fmt.Printf("\nTotal: %d swaps\n", len(swaps))
			return nil
		},
	}
}

func clientPendingPayoutsCommand() *cli.Command {
	return &cli.Command{
		Name:  "pending-payouts",
		Usage: "List what each referrer is owed (requires admin key)",
		Action: func(c *cli.Context) error {
			pending, err := getClient(c).ListPendingPayouts(context.Background())
			if err != nil {
				return fmt.Errorf("failed to list pending payouts: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(pending)
			}

			total := 0.0
			for _, p := range pending {
				fmt.Printf("%s  $%.2f\n", p.ReferrerWallet, p.AmountUSD)
				total += p.AmountUSD
			}
			fmt.Printf("\nTotal: %d referrers, $%.2f owed\n", len(pending), total)
			return nil
		},
	}
}

func clientClaimCommand() *cli.Command {
	return &cli.Command{
		Name:  "claim",
		Usage: "Run a claim cycle now (requires admin key)",
		Action: func(c *cli.Context) error {
			raw, err := getClient(c).TriggerClaim(context.Background())
			if err != nil {
				return fmt.Errorf("failed to trigger claim: %w", err)
			}
			fmt.Println(string(raw))
			return nil
		},
	}
}

func clientSweepCommand() *cli.Command {
	return &cli.Command{
		Name:  "sweep",
		Usage: "Run a treasury sweep now (requires admin key)",
		Action: func(c *cli.Context) error {
			raw, err := getClient(c).TriggerSweep(context.Background())
			if err != nil {
				return fmt.Errorf("failed to trigger sweep: %w", err)
			}
			fmt.Println(string(raw))
			return nil
		},
	}
}

func clientRunPayoutsCommand() *cli.Command {
	return &cli.Command{
		Name:  "run-payouts",
		Usage: "Run payout disbursement now (requires admin key)",
		Action: func(c *cli.Context) error {
			raw, err := getClient(c).TriggerPayouts(context.Background())
			if err != nil {
				return fmt.Errorf("failed to trigger payouts: %w", err)
			}
			fmt.Println(string(raw))
			return nil
		},
	}
}
