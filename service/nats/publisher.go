package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/arbelos/rakeback/service/metrics"
)

// Publisher defines the interface for publishing fee events to NATS.
type Publisher interface {
	// PublishSwap publishes a swap accrual event to JetStream on the
	// subject "fees.swaps.{wallet_address}".
	PublishSwap(ctx context.Context, event *SwapEvent) error

	// PublishPayout publishes a payout event to JetStream on the
	// subject "fees.payouts.{referrer_wallet}".
	PublishPayout(ctx context.Context, event *PayoutEvent) error

	// Close closes the connection to NATS.
	Close() error
}

const (
	// StreamName is the name of the JetStream stream for fee events.
	StreamName = "FEES"

	// StreamSubjects is the subject pattern for the stream.
	StreamSubjects = "fees.>"

	// StreamRetention is how long messages are retained.
	StreamRetention = 30 * 24 * time.Hour
)

// JetStreamPublisher publishes fee events to NATS JetStream.
type JetStreamPublisher struct {
	nc      *nats.Conn
	js      jetstream.JetStream
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewPublisher creates a new JetStream publisher. It connects to NATS
// and ensures the stream exists. If m is nil no metrics are recorded.
func NewPublisher(natsURL string, m *metrics.Metrics, logger *slog.Logger) (*JetStreamPublisher, error) {
	nc, err := nats.Connect(natsURL,
		nats.Name("rakeback-publisher"),
		nats.Timeout(10*time.Second),
		nats.ReconnectWait(1*time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	publisher := &JetStreamPublisher{
		nc:      nc,
		js:      js,
		logger:  logger,
		metrics: m,
	}

	if err := publisher.ensureStream(); err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to ensure stream exists: %w", err)
	}

	logger.Info("NATS publisher initialized",
		"url", natsURL,
		"stream", StreamName,
	)
	return publisher, nil
}

// ensureStream creates the JetStream stream if it doesn't exist.
func (p *JetStreamPublisher) ensureStream() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := p.js.Stream(ctx, StreamName); err == nil {
		p.logger.Debug("JetStream stream already exists", "stream", StreamName)
		return nil
	}

	p.logger.Info("creating JetStream stream", "stream", StreamName)
	_, err := p.js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Description: "Fee accrual and payout events",
		Subjects:    []string{StreamSubjects},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      StreamRetention,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}
	return nil
}

func (p *JetStreamPublisher) publish(ctx context.Context, subject string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event for %s: %w", subject, err)
	}

	start := time.Now()
	_, err = p.js.Publish(ctx, subject, data)
	status := "success"
	if err != nil {
		status = "error"
	}
	p.metrics.RecordNATSPublish(subject, status, time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	return nil
}

// PublishSwap publishes a swap accrual event.
func (p *JetStreamPublisher) PublishSwap(ctx context.Context, event *SwapEvent) error {
	subject := fmt.Sprintf("fees.swaps.%s", event.WalletAddress)
	if err := p.publish(ctx, subject, event); err != nil {
		return err
	}
	p.logger.Debug("published swap event",
		"subject", subject,
		"tx_signature", event.TxSignature,
		"volume_usd", event.VolumeUSD,
	)
	return nil
}

// PublishPayout publishes a payout event.
func (p *JetStreamPublisher) PublishPayout(ctx context.Context, event *PayoutEvent) error {
	subject := fmt.Sprintf("fees.payouts.%s", event.ReferrerWallet)
	if err := p.publish(ctx, subject, event); err != nil {
		return err
	}
	p.logger.Debug("published payout event",
		"subject", subject,
		"payout_id", event.PayoutID,
		"status", event.Status,
	)
	return nil
}

// Close drains and closes the NATS connection.
func (p *JetStreamPublisher) Close() error {
	p.nc.Close()
	p.logger.Info("NATS publisher closed")
	return nil
}
