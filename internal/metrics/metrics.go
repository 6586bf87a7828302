package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ============================================
	// Transfers
	// ============================================
	TransfersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatcher_transfers_total",
			Help: "Total number of transfers by route and result",
		},
		[]string{"route", "result"},
	)

	TransferDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dispatcher_transfer_duration_seconds",
			Help:    "Transfer duration in seconds, including collaborator calls",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	// ============================================
	// Fees and custody
	// ============================================
	FeesCollected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatcher_fees_collected_total",
			Help: "Fees charged, in token base units",
		},
		[]string{"policy"},
	)

	FeesWithdrawn = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dispatcher_fees_withdrawn_total",
		Help: "Fees withdrawn by the collector, in token base units",
	})

	RefundFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dispatcher_refund_failures_total",
		Help: "Refunds that failed and left principal frozen in custody",
	})

	TransfersPending = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatcher_transfers_pending_total",
			Help: "Transfers whose submitted transaction had no observable outcome; principal is frozen",
		},
		[]string{"route"},
	)

	FeeForwardFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dispatcher_fee_forward_failures_total",
		Help: "Fees that could not be sent to the collector and were retained in custody",
	})

	FastCustody = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatcher_fast_custody_total",
			Help: "Fast transfer amounts taken into custody or sent to the collector, in token base units",
		},
		[]string{"policy"},
	)

	CustodyHeldFees = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dispatcher_custody_held_fees",
			Help: "Fees held in custody awaiting withdrawal, in token base units",
		},
		[]string{"token"},
	)

	CustodyInFlight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dispatcher_custody_in_flight",
			Help: "Principal reserved by transfers that have not settled",
		},
		[]string{"token"},
	)

	CustodyFrozen = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dispatcher_custody_frozen",
			Help: "Principal left in custody by failed refunds",
		},
		[]string{"token"},
	)

	CustodianBalance = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dispatcher_custodian_balance",
			Help: "Custodian native balance in wei",
		},
		[]string{"chain", "address"},
	)

	// ============================================
	// Database
	// ============================================
	DBConnectionPoolSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dispatcher_db_connection_pool_size",
		Help: "Database connection pool size",
	})

	DBConnectionActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dispatcher_db_connection_active",
		Help: "Number of active database connections",
	})

	DBConnectionIdle = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dispatcher_db_connection_idle",
		Help: "Number of idle database connections",
	})

	DBConnectionStatus = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dispatcher_db_connection_status",
		Help: "Database connection status (1=healthy, 0=unhealthy)",
	})

	// ============================================
	// Settlement events
	// ============================================
	NATSConnectionStatus = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dispatcher_nats_connection_status",
		Help: "NATS connection status (1=connected, 0=disconnected)",
	})

	SettlementsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatcher_settlements_published_total",
			Help: "Settlement events delivered per sink",
		},
		[]string{"sink"},
	)

	SettlementPublishFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatcher_settlement_publish_failed_total",
			Help: "Settlement events a sink failed to deliver",
		},
		[]string{"sink"},
	)

	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dispatcher_websocket_clients",
		Help: "Connected settlement stream clients",
	})

	// ============================================
	// HTTP
	// ============================================
	RateLimited = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatcher_http_rate_limited_total",
			Help: "Requests rejected by the per-caller rate limiter",
		},
		[]string{"path"},
	)
)
