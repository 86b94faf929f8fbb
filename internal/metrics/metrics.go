package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Connection metrics
	ConnectionState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "chat_gateway_connection_state",
		Help: "Connection state per shard (0=idle .. 7=reconnecting)",
	}, []string{"shard"})

	Reconnects = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_gateway_reconnects_total",
		Help: "Total number of reconnect attempts",
	}, []string{"shard", "mode"})

	ConnectFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_gateway_connect_failures_total",
		Help: "Total number of failed connection attempts",
	}, []string{"shard"})

	// Session metrics
	SessionsStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_gateway_sessions_started_total",
		Help: "Total number of sessions started",
	}, []string{"shard", "resumed"})

	SessionsInvalidated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_gateway_sessions_invalidated_total",
		Help: "Total number of sessions the server invalidated",
	}, []string{"shard"})

	// Heartbeat metrics
	HeartbeatLatency = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "chat_gateway_heartbeat_latency_seconds",
		Help: "Last acknowledged heartbeat round-trip per shard",
	}, []string{"shard"})

	MissedHeartbeats = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_gateway_missed_heartbeats_total",
		Help: "Total number of unacknowledged heartbeats",
	}, []string{"shard"})

	ZombieConnections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_gateway_zombie_connections_total",
		Help: "Total number of connections dropped for missing heartbeat acks",
	}, []string{"shard"})

	// Payload metrics
	EventsDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_gateway_events_dispatched_total",
		Help: "Total number of dispatch events received",
	}, []string{"shard", "event"})

	PayloadBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_gateway_payload_bytes_total",
		Help: "Total payload bytes after decompression",
	}, []string{"shard", "direction"})

	DecodeErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_gateway_decode_errors_total",
		Help: "Total number of payloads that failed to decompress or decode",
	}, []string{"shard", "stage"})

	// Shard coordination metrics
	ShardAcquireWait = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "chat_gateway_shard_acquire_wait_seconds",
		Help:    "Time spent waiting for an identify slot",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
	})

	ActiveShards = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chat_gateway_shards_active",
		Help: "Number of shards currently in the ready state",
	})
)
