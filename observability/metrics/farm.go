package metrics

import (
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// FarmMetrics tracks farm calls, emitted events and ledger aggregates.
type FarmMetrics struct {
	operations     *prometheus.CounterVec
	latency        *prometheus.HistogramVec
	events         *prometheus.CounterVec
	phase          prometheus.Gauge
	totalSupply    prometheus.Gauge
	cap            prometheus.Gauge
	remainingCap   prometheus.Gauge
	poolStaked     *prometheus.GaugeVec
	rewardRemained *prometheus.GaugeVec
	journalLag     prometheus.Gauge
}

var (
	farmOnce     sync.Once
	farmRegistry *FarmMetrics
)

// Farm returns the lazily-initialised farm metrics registry.
func Farm() *FarmMetrics {
	farmOnce.Do(func() {
		farmRegistry = &FarmMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "farm",
				Name:      "operations_total",
				Help:      "Mutating farm calls segmented by operation and outcome.",
			}, []string{"operation", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "farm",
				Name:      "operation_duration_seconds",
				Help:      "Latency distribution of mutating farm calls.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"operation"}),
			events: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "farm",
				Name:      "events_total",
				Help:      "Committed farm events by type.",
			}, []string{"type"}),
			phase: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "farm",
				Name:      "phase",
				Help:      "Current lifecycle phase (0 pre-launch, 1 accruing, 2 post-deadline, 3 released).",
			}),
			totalSupply: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "farm",
				Name:      "total_supply",
				Help:      "Items currently staked across all holders.",
			}),
			cap: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "farm",
				Name:      "cap_points",
				Help:      "Sum of funded amount times price across allotments.",
			}),
			remainingCap: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "farm",
				Name:      "remaining_cap_points",
				Help:      "Point value still redeemable against the vault.",
			}),
			poolStaked: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "farm",
				Name:      "pool_staked_items",
				Help:      "Items staked per pool.",
			}, []string{"pool"}),
			rewardRemained: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "farm",
				Name:      "reward_remaining",
				Help:      "Unclaimed supply per reward token.",
			}, []string{"token"}),
			journalLag: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "farm",
				Name:      "journal_sequence",
				Help:      "Sequence number of the last journaled event.",
			}),
		}
		prometheus.MustRegister(
			farmRegistry.operations,
			farmRegistry.latency,
			farmRegistry.events,
			farmRegistry.phase,
			farmRegistry.totalSupply,
			farmRegistry.cap,
			farmRegistry.remainingCap,
			farmRegistry.poolStaked,
			farmRegistry.rewardRemained,
			farmRegistry.journalLag,
		)
	})
	return farmRegistry
}

func normalizeLabel(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "unknown"
	}
	return trimmed
}

// BigToFloat converts an integer amount into a gauge value.
func BigToFloat(v *big.Int) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(v).Float64()
	return f
}

// ObserveOperation records the outcome and latency of a mutating call.
func (m *FarmMetrics) ObserveOperation(operation string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	op := normalizeLabel(operation)
	m.operations.WithLabelValues(op, outcome).Inc()
	m.latency.WithLabelValues(op).Observe(elapsed.Seconds())
}

// RecordEvent increments the counter for a committed event type.
func (m *FarmMetrics) RecordEvent(eventType string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(normalizeLabel(eventType)).Inc()
}

// SetPhase publishes the current lifecycle phase.
func (m *FarmMetrics) SetPhase(phase int) {
	if m == nil {
		return
	}
	m.phase.Set(float64(phase))
}

// SetSupply publishes the staked item count.
func (m *FarmMetrics) SetSupply(supply uint64) {
	if m == nil {
		return
	}
	m.totalSupply.Set(float64(supply))
}

// SetCaps publishes the funded and remaining point capacity.
func (m *FarmMetrics) SetCaps(cap, remaining *big.Int) {
	if m == nil {
		return
	}
	m.cap.Set(BigToFloat(cap))
	m.remainingCap.Set(BigToFloat(remaining))
}

// SetPoolStaked publishes the staked count of one pool.
func (m *FarmMetrics) SetPoolStaked(pool string, staked uint64) {
	if m == nil {
		return
	}
	m.poolStaked.WithLabelValues(normalizeLabel(pool)).Set(float64(staked))
}

// SetRewardRemaining publishes the unclaimed supply of one token.
func (m *FarmMetrics) SetRewardRemaining(token string, remaining *big.Int) {
	if m == nil {
		return
	}
	m.rewardRemained.WithLabelValues(normalizeLabel(token)).Set(BigToFloat(remaining))
}

// SetJournalSequence publishes the last journaled sequence number.
func (m *FarmMetrics) SetJournalSequence(seq uint64) {
	if m == nil {
		return
	}
	m.journalLag.Set(float64(seq))
}
