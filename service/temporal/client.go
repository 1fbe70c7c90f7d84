package temporal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.temporal.io/sdk/client"
	temporalsdk "go.temporal.io/sdk/temporal"
)

// Client is a production implementation of Scheduler that talks to
// Temporal.
type Client struct {
	client    client.Client
	taskQueue string
	logger    *slog.Logger
}

// NewClient creates a new Temporal client.
func NewClient(host, namespace, taskQueue string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("connecting to temporal",
		"host", host,
		"namespace", namespace,
		"task_queue", taskQueue,
	)

	c, err := client.Dial(client.Options{
		HostPort:  host,
		Namespace: namespace,
		Logger:    newTemporalLogger(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Temporal: %w", err)
	}

	logger.Info("connected to temporal successfully")

	return &Client{
		client:    c,
		taskQueue: taskQueue,
		logger:    logger,
	}, nil
}

// CreateClaimSchedule creates the recurring claim-and-sweep schedule.
// Creating an already-existing schedule is treated as success so deploys
// can call this unconditionally.
func (c *Client) CreateClaimSchedule(ctx context.Context, interval time.Duration) error {
	return c.createSchedule(ctx, ClaimScheduleID,
		client.ScheduleSpec{
			Intervals: []client.ScheduleIntervalSpec{{Every: interval}},
		},
		&client.ScheduleWorkflowAction{
			ID:        "claim-fees-run",
			Workflow:  "ClaimFeesWorkflow",
			TaskQueue: c.taskQueue,
		},
	)
}

// CreatePayoutSchedule creates the daily payout schedule at the given
// UTC hour.
func (c *Client) CreatePayoutSchedule(ctx context.Context, hourUTC int) error {
	if hourUTC < 0 || hourUTC > 23 {
		return fmt.Errorf("payout hour %d out of range", hourUTC)
	}
	return c.createSchedule(ctx, PayoutScheduleID,
		client.ScheduleSpec{
			CronExpressions: []string{fmt.Sprintf("0 %d * * *", hourUTC)},
		},
		&client.ScheduleWorkflowAction{
			ID:        "daily-payout-run",
			Workflow:  "DailyPayoutWorkflow",
			TaskQueue: c.taskQueue,
		},
	)
}

// CreateBalanceCheckSchedule creates the recurring payer SOL balance
// check.
func (c *Client) CreateBalanceCheckSchedule(ctx context.Context, payerAddress string, minLamports uint64, interval time.Duration) error {
	return c.createSchedule(ctx, BalanceCheckScheduleID,
		client.ScheduleSpec{
			Intervals: []client.ScheduleIntervalSpec{{Every: interval}},
		},
		&client.ScheduleWorkflowAction{
			ID:        "payer-balance-check-run",
			Workflow:  "BalanceCheckWorkflow",
			TaskQueue: c.taskQueue,
			Args: []interface{}{CheckPayerBalanceInput{
				PayerAddress: payerAddress,
				MinLamports:  minLamports,
			}},
		},
	)
}

func (c *Client) createSchedule(ctx context.Context, id string, spec client.ScheduleSpec, action *client.ScheduleWorkflowAction) error {
	c.logger.Debug("creating schedule", "schedule_id", id)

	_, err := c.client.ScheduleClient().Create(ctx, client.ScheduleOptions{
		ID:     id,
		Spec:   spec,
		Action: action,
		Memo: map[string]interface{}{
			"created_by": "rakeback",
		},
	})
	if err != nil {
		if errors.Is(err, temporalsdk.ErrScheduleAlreadyRunning) {
			c.logger.Info("schedule already exists", "schedule_id", id)
			return nil
		}
		c.logger.Error("failed to create schedule",
			"schedule_id", id,
			"error", err,
		)
		return fmt.Errorf("failed to create schedule %q: %w", id, err)
	}

	c.logger.Info("schedule created", "schedule_id", id)
	return nil
}

// DeleteSchedule removes a schedule by ID.
func (c *Client) DeleteSchedule(ctx context.Context, id string) error {
	c.logger.Debug("deleting schedule", "schedule_id", id)

	handle := c.client.ScheduleClient().GetHandle(ctx, id)
	if err := handle.Delete(ctx); err != nil {
		c.logger.Error("failed to delete schedule",
			"schedule_id", id,
			"error", err,
		)
		return fmt.Errorf("failed to delete schedule %q: %w", id, err)
	}

	c.logger.Info("schedule deleted", "schedule_id", id)
	return nil
}

// TriggerClaim starts a claim-and-sweep run immediately, outside the
// schedule. Used by the admin claim endpoint.
func (c *Client) TriggerClaim(ctx context.Context) (string, error) {
	return c.trigger(ctx, "claim-fees-manual", "ClaimFeesWorkflow")
}

// TriggerPayout starts a payout run immediately, outside the schedule.
func (c *Client) TriggerPayout(ctx context.Context) (string, error) {
	return c.trigger(ctx, "daily-payout-manual", "DailyPayoutWorkflow")
}

func (c *Client) trigger(ctx context.Context, idPrefix, workflowName string) (string, error) {
	run, err := c.client.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        fmt.Sprintf("%s-%d", idPrefix, time.Now().UnixNano()),
		TaskQueue: c.taskQueue,
	}, workflowName)
	if err != nil {
		return "", fmt.Errorf("failed to start %s: %w", workflowName, err)
	}

	c.logger.Info("triggered workflow",
		"workflow", workflowName,
		"workflow_id", run.GetID(),
		"run_id", run.GetRunID(),
	)
	return run.GetID(), nil
}

// SDKClient returns the underlying Temporal SDK client for direct
// workflow operations.
func (c *Client) SDKClient() client.Client {
	return c.client
}

// TaskQueue returns the configured task queue for this client.
func (c *Client) TaskQueue() string {
	return c.taskQueue
}

// Close closes the Temporal client connection.
func (c *Client) Close() {
	c.logger.Info("closing temporal client")
	c.client.Close()
}

// temporalLogger adapts slog.Logger to Temporal's logger interface.
type temporalLogger struct {
	logger *slog.Logger
}

func newTemporalLogger(logger *slog.Logger) *temporalLogger {
	return &temporalLogger{logger: logger}
}

func (l *temporalLogger) Debug(msg string, keyvals ...interface{}) {
	l.logger.Debug(msg, keyvals...)
}

func (l *temporalLogger) Info(msg string, keyvals ...interface{}) {
	l.logger.Info(msg, keyvals...)
}

func (l *temporalLogger) Warn(msg string, keyvals ...interface{}) {
	l.logger.Warn(msg, keyvals...)
}

func (l *temporalLogger) Error(msg string, keyvals ...interface{}) {
	l.logger.Error(msg, keyvals...)
}
