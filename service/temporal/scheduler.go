package temporal

import (
	"context"
	"time"
)

// Schedule IDs. One schedule per settlement concern, created at deploy
// time and left running.
const (
	ClaimScheduleID        = "claim-fees"
	PayoutScheduleID       = "daily-payout"
	BalanceCheckScheduleID = "payer-balance-check"
)

// Scheduler manages the Temporal schedules that drive settlement.
type Scheduler interface {
	// CreateClaimSchedule runs ClaimFeesWorkflow on a fixed interval.
	CreateClaimSchedule(ctx context.Context, interval time.Duration) error

	// CreatePayoutSchedule runs DailyPayoutWorkflow once a day at the
	// given UTC hour.
	CreatePayoutSchedule(ctx context.Context, hourUTC int) error

	// CreateBalanceCheckSchedule runs BalanceCheckWorkflow on a fixed
	// interval against the settlement payer.
	CreateBalanceCheckSchedule(ctx context.Context, payerAddress string, minLamports uint64, interval time.Duration) error

	// DeleteSchedule removes a schedule by ID.
	DeleteSchedule(ctx context.Context, id string) error
}
