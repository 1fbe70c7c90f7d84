package temporal

import (
	"fmt"
	"time"

	temporalsdk "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

var a *Activities // for type-safe activity invocation

// Per-job activity budgets. Claiming walks every identity's vaults and
// waits for confirmations, payouts add a database pass per referrer,
// and the balance check is a single RPC call.
const (
	claimActivityTimeout        = 30 * time.Minute
	payoutActivityTimeout       = time.Hour
	balanceCheckActivityTimeout = 5 * time.Minute
)

func settlementActivityOptions(ctx workflow.Context, startToClose time.Duration) workflow.Context {
	return workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: startToClose,
		RetryPolicy: &temporalsdk.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    30 * time.Second,
			MaximumAttempts:    3,
		},
	})
}

// ClaimFeesWorkflowResult summarizes a full claim-and-sweep cycle.
type ClaimFeesWorkflowResult struct {
	Claim *ClaimFeesResult     `json:"claim"`
	Sweep *SweepTreasuryResult `json:"sweep"`
}

// ClaimFeesWorkflow claims accrued referral fees from every identity's
// vaults, then sweeps the treasury's claimed assets into the settlement
// mint. It is triggered by a Temporal schedule at a configured interval.
//
// The sweep runs even when individual claims fail: previously claimed
// assets sitting in the treasury should not wait for a stuck vault.
func ClaimFeesWorkflow(ctx workflow.Context) (*ClaimFeesWorkflowResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("ClaimFeesWorkflow started")
	start := workflow.Now(ctx)

	ctx = settlementActivityOptions(ctx, claimActivityTimeout)
	result := &ClaimFeesWorkflowResult{}

	var claimResult *ClaimFeesResult
	err := workflow.ExecuteActivity(ctx, a.ClaimFees).Get(ctx, &claimResult)
	if err != nil {
		logger.Error("claim activity failed", "error", err)
		recordWorkflowDuration(ctx, "ClaimFeesWorkflow", "error", start)
		return result, fmt.Errorf("claim activity failed: %w", err)
	}
	result.Claim = claimResult
	logger.Info("claims finished",
		"attempted", claimResult.Attempted,
		"failed", claimResult.Failed,
	)

	var sweepResult *SweepTreasuryResult
	err = workflow.ExecuteActivity(ctx, a.SweepTreasury).Get(ctx, &sweepResult)
	if err != nil {
		logger.Error("sweep activity failed", "error", err)
		recordWorkflowDuration(ctx, "ClaimFeesWorkflow", "error", start)
		return result, fmt.Errorf("sweep activity failed: %w", err)
	}
	result.Sweep = sweepResult

	logger.Info("ClaimFeesWorkflow completed",
		"claims_attempted", claimResult.Attempted,
		"sweeps_attempted", sweepResult.Attempted,
	)
	recordWorkflowDuration(ctx, "ClaimFeesWorkflow", "success", start)
	return result, nil
}

// DailyPayoutWorkflow disburses accrued referrer earnings. It is
// triggered once a day by a cron schedule.
func DailyPayoutWorkflow(ctx workflow.Context) (*RunPayoutsResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("DailyPayoutWorkflow started")
	start := workflow.Now(ctx)

	ctx = settlementActivityOptions(ctx, payoutActivityTimeout)

	var result *RunPayoutsResult
	err := workflow.ExecuteActivity(ctx, a.RunPayouts).Get(ctx, &result)
	if err != nil {
		logger.Error("payout activity failed", "error", err)
		recordWorkflowDuration(ctx, "DailyPayoutWorkflow", "error", start)
		return nil, fmt.Errorf("payout activity failed: %w", err)
	}

	logger.Info("DailyPayoutWorkflow completed",
		"attempted", result.Attempted,
		"failed", result.Failed,
	)
	recordWorkflowDuration(ctx, "DailyPayoutWorkflow", "success", start)
	return result, nil
}

// BalanceCheckWorkflow verifies the settlement payer still holds enough
// SOL to keep claiming and paying out. The low-balance condition only
// logs; alerting is driven off the workflow result and metrics.
func BalanceCheckWorkflow(ctx workflow.Context, input CheckPayerBalanceInput) (*CheckPayerBalanceResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("BalanceCheckWorkflow started", "payer", input.PayerAddress)
	start := workflow.Now(ctx)

	ctx = settlementActivityOptions(ctx, balanceCheckActivityTimeout)

	var result *CheckPayerBalanceResult
	err := workflow.ExecuteActivity(ctx, a.CheckPayerBalance, input).Get(ctx, &result)
	if err != nil {
		logger.Error("balance check failed", "error", err)
		recordWorkflowDuration(ctx, "BalanceCheckWorkflow", "error", start)
		return nil, fmt.Errorf("balance check failed: %w", err)
	}

	if result.Low {
		logger.Warn("settlement payer balance is low",
			"payer", result.PayerAddress,
			"sol", result.SOL,
		)
	}
	recordWorkflowDuration(ctx, "BalanceCheckWorkflow", "success", start)
	return result, nil
}

// recordWorkflowDuration logs workflow timing. Metric recording lives
// in the activities so workflow code stays free of side effects.
func recordWorkflowDuration(ctx workflow.Context, name, status string, start time.Time) {
	workflow.GetLogger(ctx).Debug("workflow finished",
		"workflow", name,
		"status", status,
		"duration", workflow.Now(ctx).Sub(start).String(),
	)
}
