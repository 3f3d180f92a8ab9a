// Package metrics defines the node's Prometheus instruments behind go-kit
// interfaces so components can run with NopMetrics in tests.
package metrics

import (
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
)

const (
	MempoolSubsystem = "mempool"
	ChainSubsystem   = "chain"
	SwapSubsystem    = "swap"
)

// Metrics contains metrics exposed by the node.
type Metrics struct {
	// Number of signed messages waiting for a block.
	MempoolSize metrics.Gauge
	// Signed message sizes, in bytes.
	TxSizeBytes metrics.Histogram
	// Signed messages refused at admission or at block time, by reason.
	RejectedMsgs metrics.Counter

	// Height of the latest block.
	Height metrics.Gauge
	// Time spent applying one block, in seconds.
	BlockProcessingTime metrics.Histogram
	// Transactions executed, by outcome (success, failed, rejected).
	Transactions metrics.Counter
	// Native value collected as gas, in nano.
	FeesCollected metrics.Gauge

	// Swap events seen in transaction traces, by op.
	SwapOps metrics.Counter
}

// PrometheusMetrics returns Metrics built using the Prometheus client library.
func PrometheusMetrics(namespace string) *Metrics {
	return &Metrics{
		MempoolSize: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MempoolSubsystem,
			Name:      "size",
			Help:      "Number of signed messages waiting for a block.",
		}, []string{}),
		TxSizeBytes: prometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: MempoolSubsystem,
			Name:      "tx_size_bytes",
			Help:      "Signed message sizes in bytes.",
			Buckets:   stdprometheus.ExponentialBuckets(1, 3, 17),
		}, []string{}),
		RejectedMsgs: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MempoolSubsystem,
			Name:      "rejected_msgs",
			Help:      "Signed messages refused, by reason.",
		}, []string{"reason"}),
		Height: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: ChainSubsystem,
			Name:      "height",
			Help:      "Height of the latest block.",
		}, []string{}),
		BlockProcessingTime: prometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: ChainSubsystem,
			Name:      "block_processing_time",
			Help:      "Time spent applying one block, in seconds.",
			Buckets:   stdprometheus.ExponentialBuckets(0.0005, 2, 14),
		}, []string{}),
		Transactions: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: ChainSubsystem,
			Name:      "transactions",
			Help:      "Executed transactions by outcome.",
		}, []string{"outcome"}),
		FeesCollected: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: ChainSubsystem,
			Name:      "fees_collected",
			Help:      "Native value collected as gas, in nano.",
		}, []string{}),
		SwapOps: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: SwapSubsystem,
			Name:      "ops",
			Help:      "Swap protocol messages delivered, by op.",
		}, []string{"op"}),
	}
}

// NopMetrics returns no-op Metrics.
func NopMetrics() *Metrics {
	return &Metrics{
		MempoolSize:         discard.NewGauge(),
		TxSizeBytes:         discard.NewHistogram(),
		RejectedMsgs:        discard.NewCounter(),
		Height:              discard.NewGauge(),
		BlockProcessingTime: discard.NewHistogram(),
		Transactions:        discard.NewCounter(),
		FeesCollected:       discard.NewGauge(),
		SwapOps:             discard.NewCounter(),
	}
}
