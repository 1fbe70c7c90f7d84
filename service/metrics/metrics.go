package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the application.
// Following the explicit dependency injection pattern, this struct is
// passed to all components that need to record metrics. A nil *Metrics
// is valid everywhere and records nothing.
type Metrics struct {
	// Solana RPC metrics
	solanaRPCCallsTotal   *prometheus.CounterVec
	solanaRPCCallDuration *prometheus.HistogramVec

	// Swap accrual metrics
	swapsRecordedTotal *prometheus.CounterVec
	swapVolumeUSD      *prometheus.CounterVec
	feesAccruedUSD     *prometheus.CounterVec

	// Settlement metrics
	claimsTotal       *prometheus.CounterVec
	claimedUIAmount   *prometheus.CounterVec
	sweepsTotal       *prometheus.CounterVec
	payoutsTotal      *prometheus.CounterVec
	payoutAmountUSD   *prometheus.CounterVec
	settlementRunTime *prometheus.HistogramVec

	// Workflow metrics
	workflowDuration        *prometheus.HistogramVec
	workflowExecutionsTotal *prometheus.CounterVec
	activityDuration        *prometheus.HistogramVec

	// Price metrics
	priceLookupsTotal *prometheus.CounterVec
	priceCacheHits    *prometheus.CounterVec

	// HTTP metrics
	httpRequestDuration *prometheus.HistogramVec
	httpRequestsTotal   *prometheus.CounterVec

	// NATS metrics
	natsMessagesPublished *prometheus.CounterVec
	natsPublishDuration   *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance and registers all collectors.
// If registry is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		solanaRPCCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solana_rpc_calls_total",
				Help: "Total number of Solana RPC calls by method and status",
			},
			[]string{"method", "status", "endpoint"},
		),
		solanaRPCCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "solana_rpc_call_duration_seconds",
				Help:    "Duration of Solana RPC calls in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"method", "endpoint"},
		),

		swapsRecordedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "swaps_recorded_total",
				Help: "Total number of swap webhook deliveries by outcome",
			},
			[]string{"outcome"},
		),
		swapVolumeUSD: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "swap_volume_usd_total",
				Help: "Cumulative recorded swap volume in USD",
			},
			[]string{},
		),
		feesAccruedUSD: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fees_accrued_usd_total",
				Help: "Cumulative accrued fees in USD by recipient",
			},
			[]string{"recipient"},
		),

		claimsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fee_claims_total",
				Help: "Total number of vault claim attempts by identity and status",
			},
			[]string{"identity", "status"},
		),
		claimedUIAmount: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fee_claimed_amount_total",
				Help: "Cumulative claimed token amount (UI units) by identity and mint",
			},
			[]string{"identity", "mint"},
		),
		sweepsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fee_sweeps_total",
				Help: "Total number of sweep swap attempts by identity and status",
			},
			[]string{"identity", "status"},
		),
		payoutsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "referrer_payouts_total",
				Help: "Total number of referrer payout attempts by status",
			},
			[]string{"status"},
		),
		payoutAmountUSD: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "referrer_payout_usd_total",
				Help: "Cumulative referrer payout amount in USD by status",
			},
			[]string{"status"},
		),
		settlementRunTime: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "settlement_run_duration_seconds",
				Help:    "Duration of settlement runs in seconds",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
			},
			[]string{"run"},
		),

		workflowDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "workflow_duration_seconds",
				Help:    "Duration of workflow executions in seconds",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
			},
			[]string{"workflow", "status"},
		),
		workflowExecutionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "workflow_executions_total",
				Help: "Total number of workflow executions",
			},
			[]string{"workflow", "status"},
		),
		activityDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "activity_duration_seconds",
				Help:    "Duration of workflow activities in seconds",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"activity"},
		),

		priceLookupsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "price_lookups_total",
				Help: "Total number of token price lookups by status",
			},
			[]string{"status"},
		),
		priceCacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "price_cache_hits_total",
				Help: "Total number of price lookups served from cache",
			},
			[]string{},
		),

		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
			},
			[]string{"handler", "method", "status"},
		),
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"handler", "method", "status"},
		),

		natsMessagesPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nats_messages_published_total",
				Help: "Total number of NATS messages published",
			},
			[]string{"subject", "status"},
		),
		natsPublishDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nats_publish_duration_seconds",
				Help:    "Duration of NATS publish operations in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
			},
			[]string{"subject"},
		),
	}
}

// Solana RPC metric helpers

// RecordRPCCall records a Solana RPC call with duration.
func (m *Metrics) RecordRPCCall(method, status, endpoint string, duration float64) {
	if m == nil {
		return
	}
	m.solanaRPCCallsTotal.WithLabelValues(method, status, endpoint).Inc()
	m.solanaRPCCallDuration.WithLabelValues(method, endpoint).Observe(duration)
}

// Swap accrual metric helpers

// RecordSwapOutcome records a webhook swap delivery outcome
// ("recorded", "duplicate", "unknown_wallet", "error").
func (m *Metrics) RecordSwapOutcome(outcome string) {
	if m == nil {
		return
	}
	m.swapsRecordedTotal.WithLabelValues(outcome).Inc()
}

// RecordSwapAccrual records a successfully accrued swap's volume and
// fee split.
func (m *Metrics) RecordSwapAccrual(volumeUSD, jupiterUSD, platformUSD, referrerUSD float64) {
	if m == nil {
		return
	}
	m.swapVolumeUSD.WithLabelValues().Add(volumeUSD)
	m.feesAccruedUSD.WithLabelValues("jupiter").Add(jupiterUSD)
	m.feesAccruedUSD.WithLabelValues("platform").Add(platformUSD)
	m.feesAccruedUSD.WithLabelValues("referrer").Add(referrerUSD)
}

// Settlement metric helpers

// RecordClaim records a vault claim attempt.
func (m *Metrics) RecordClaim(identity, status string) {
	if m == nil {
		return
	}
	m.claimsTotal.WithLabelValues(identity, status).Inc()
}

// RecordClaimedAmount records the UI amount drained from a vault.
func (m *Metrics) RecordClaimedAmount(identity, mint string, uiAmount float64) {
	if m == nil {
		return
	}
	m.claimedUIAmount.WithLabelValues(identity, mint).Add(uiAmount)
}

// RecordSweep records a sweep swap attempt.
func (m *Metrics) RecordSweep(identity, status string) {
	if m == nil {
		return
	}
	m.sweepsTotal.WithLabelValues(identity, status).Inc()
}

// RecordPayout records a referrer payout attempt and its amount.
func (m *Metrics) RecordPayout(status string, amountUSD float64) {
	if m == nil {
		return
	}
	m.payoutsTotal.WithLabelValues(status).Inc()
	m.payoutAmountUSD.WithLabelValues(status).Add(amountUSD)
}

// RecordSettlementRun records the duration of a settlement run
// ("claim", "sweep", "payout").
func (m *Metrics) RecordSettlementRun(run string, duration float64) {
	if m == nil {
		return
	}
	m.settlementRunTime.WithLabelValues(run).Observe(duration)
}

// Workflow metric helpers

// RecordWorkflowDuration records workflow execution duration.
func (m *Metrics) RecordWorkflowDuration(workflow, status string, duration float64) {
	if m == nil {
		return
	}
	m.workflowDuration.WithLabelValues(workflow, status).Observe(duration)
	m.workflowExecutionsTotal.WithLabelValues(workflow, status).Inc()
}

// RecordActivityDuration records activity execution duration.
func (m *Metrics) RecordActivityDuration(activity string, duration float64) {
	if m == nil {
		return
	}
	m.activityDuration.WithLabelValues(activity).Observe(duration)
}

// Price metric helpers

// RecordPriceLookup records a token price lookup ("hit", "miss", "error").
func (m *Metrics) RecordPriceLookup(status string) {
	if m == nil {
		return
	}
	m.priceLookupsTotal.WithLabelValues(status).Inc()
	if status == "hit" {
		m.priceCacheHits.WithLabelValues().Inc()
	}
}

// HTTP metric helpers

// RecordHTTPRequest records an HTTP request with duration.
func (m *Metrics) RecordHTTPRequest(handler, method string, statusCode int, duration float64) {
	if m == nil {
		return
	}
	status := statusCodeToString(statusCode)
	m.httpRequestDuration.WithLabelValues(handler, method, status).Observe(duration)
	m.httpRequestsTotal.WithLabelValues(handler, method, status).Inc()
}

// NATS metric helpers

// RecordNATSPublish records a NATS publish operation.
func (m *Metrics) RecordNATSPublish(subject, status string, duration float64) {
	if m == nil {
		return
	}
	m.natsMessagesPublished.WithLabelValues(subject, status).Inc()
	m.natsPublishDuration.WithLabelValues(subject).Observe(duration)
}

func statusCodeToString(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500 && code < 600:
		return "5xx"
	default:
		return "unknown"
	}
}
