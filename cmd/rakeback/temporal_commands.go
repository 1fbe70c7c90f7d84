package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"
	sdkclient "go.temporal.io/sdk/client"

	"github.com/arbelos/rakeback/service/temporal"
)

// getTemporalClient connects to Temporal using the global flags.
func getTemporalClient(c *cli.Context) (*temporal.Client, error) {
	return temporal.NewClient(
		c.String("temporal-host"),
		c.String("temporal-namespace"),
		c.String("task-queue"),
		newLogger(c),
	)
}

func listSchedulesCommand() *cli.Command {
	return &cli.Command{
		Name:    "list-schedules",
		Usage:   "List all Temporal schedules",
		Aliases: []string{"ls"},
		Action: func(c *cli.Context) error {
			temporalClient, err := getTemporalClient(c)
			if err != nil {
				return err
			}
			defer temporalClient.Close()

			ctx := context.Background()
			iter, err := temporalClient.SDKClient().ScheduleClient().List(ctx, sdkclient.ScheduleListOptions{
				PageSize: 100,
			})
			if err != nil {
				return fmt.Errorf("failed to list schedules: %w", err)
			}

			// Pretty table output
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "SCHEDULE ID")
			count := 0
			for iter.HasNext() {
				schedule, err := iter.Next()
				if err != nil {
					return fmt.Errorf("failed to iterate schedules: %w", err)
				}
				fmt.Fprintf(w, "%s\n", schedule.ID)
				count++
			}
			w.Flush()

			fmt.Fprintf(os.Stderr, "\nTotal: %d schedules\n", count)
			return nil
		},
	}
}

func createSchedulesCommand() *cli.Command {
	return &cli.Command{
		Name:  "create-schedules",
		Usage: "Create the settlement schedules (idempotent)",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:    "claim-interval",
				Usage:   "How often to run the claim workflow",
				Value:   time.Hour,
				EnvVars: []string{"CLAIM_INTERVAL"},
			},
			&cli.IntFlag{
				Name:    "payout-hour",
				Usage:   "UTC hour for the daily payout run (0-23)",
				Value:   2,
				EnvVars: []string{"PAYOUT_HOUR_UTC"},
			},
			&cli.StringFlag{
				Name:    "payer",
				Usage:   "Settlement payer address to monitor (omit to skip the balance check schedule)",
				EnvVars: []string{"SETTLEMENT_PAYER"},
			},
			&cli.Float64Flag{
				Name:  "min-payer-sol",
				Usage: "Balance threshold below which the payer is flagged low",
				Value: 0.1,
			},
			&cli.DurationFlag{
				Name:    "balance-check-interval",
				Usage:   "How often to check the payer balance",
				Value:   15 * time.Minute,
				EnvVars: []string{"BALANCE_CHECK_INTERVAL"},
			},
		},
		Action: func(c *cli.Context) error {
			temporalClient, err := getTemporalClient(c)
			if err != nil {
				return err
			}
			defer temporalClient.Close()

			ctx := context.Background()

			if err := temporalClient.CreateClaimSchedule(ctx, c.Duration("claim-interval")); err != nil {
				return fmt.Errorf("failed to create claim schedule: %w", err)
			}
			fmt.Printf("✓ Schedule ensured: %s (every %v)\n", temporal.ClaimScheduleID, c.Duration("claim-interval"))

			if err := temporalClient.CreatePayoutSchedule(ctx, c.Int("payout-hour")); err != nil {
				return fmt.Errorf("failed to create payout schedule: %w", err)
			}
			fmt.Printf("✓ Schedule ensured: %s (daily at %02d:00 UTC)\n", temporal.PayoutScheduleID, c.Int("payout-hour"))

			if payer := c.String("payer"); payer != "" {
				minLamports := uint64(c.Float64("min-payer-sol") * 1e9)
				if err := temporalClient.CreateBalanceCheckSchedule(ctx, payer, minLamports, c.Duration("balance-check-interval")); err != nil {
					return fmt.Errorf("failed to create balance check schedule: %w", err)
				}
				fmt.Printf("✓ Schedule ensured: %s (every %v)\n", temporal.BalanceCheckScheduleID, c.Duration("balance-check-interval"))
			}

			return nil
		},
	}
}

func deleteScheduleCommand() *cli.Command {
	return &cli.Command{
		Name:      "delete-schedule",
		Usage:     "Delete a Temporal schedule",
		ArgsUsage: "<schedule-id>",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "force",
				Usage: "Skip confirmation prompt",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: schedule ID")
			}

			scheduleID := c.Args().First()

			// Confirm deletion unless --force
			if !c.Bool("force") {
				fmt.Printf("Are you sure you want to delete schedule %s? (yes/no): ", scheduleID)
				var response string
				fmt.Scanln(&response)
				if response != "yes" {
					fmt.Println("Cancelled")
					return nil
				}
			}

			temporalClient, err := getTemporalClient(c)
			if err != nil {
				return err
			}
			defer temporalClient.Close()

			if err := temporalClient.DeleteSchedule(context.Background(), scheduleID); err != nil {
				return fmt.Errorf("failed to delete schedule: %w", err)
			}

			fmt.Printf("✓ Schedule deleted: %s\n", scheduleID)
			return nil
		},
	}
}

func triggerClaimCommand() *cli.Command {
	return &cli.Command{
		Name:  "trigger-claim",
		Usage: "Start a claim-and-sweep workflow run now",
		Action: func(c *cli.Context) error {
			temporalClient, err := getTemporalClient(c)
			if err != nil {
				return err
			}
			defer temporalClient.Close()

			workflowID, err := temporalClient.TriggerClaim(context.Background())
			if err != nil {
				return fmt.Errorf("failed to trigger claim workflow: %w", err)
			}

			fmt.Printf("✓ Started workflow: %s\n", workflowID)
			return nil
		},
	}
}

func triggerPayoutsCommand() *cli.Command {
	return &cli.Command{
		Name:  "trigger-payouts",
		Usage: "Start a payout workflow run now",
		Action: func(c *cli.Context) error {
			temporalClient, err := getTemporalClient(c)
			if err != nil {
				return err
			}
			defer temporalClient.Close()

			workflowID, err := temporalClient.TriggerPayout(context.Background())
			if err != nil {
				return fmt.Errorf("failed to trigger payout workflow: %w", err)
			}

			fmt.Printf("✓ Started workflow: %s\n", workflowID)
			return nil
		},
	}
}
