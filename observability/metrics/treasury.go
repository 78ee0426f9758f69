package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type TreasuryMetrics struct {
	borrowsTotal      *prometheus.CounterVec
	repaysTotal       *prometheus.CounterVec
	rejectionsTotal   *prometheus.CounterVec
	basePullsTotal    *prometheus.CounterVec
	baseForwardsTotal *prometheus.CounterVec
	localReserve      *prometheus.GaugeVec
	outstandingDebt   *prometheus.GaugeVec
}

var (
	treasuryOnce     sync.Once
	treasuryRegistry *TreasuryMetrics
)

func Treasury() *TreasuryMetrics {
	treasuryOnce.Do(func() {
		treasuryRegistry = &TreasuryMetrics{
			borrowsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "treasury_borrows_total",
				Help: "Count of settled borrow operations by token.",
			}, []string{"token"}),
			repaysTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "treasury_repays_total",
				Help: "Count of settled repay operations by token.",
			}, []string{"token"}),
			rejectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "treasury_rejections_total",
				Help: "Count of rejected operations by reason.",
			}, []string{"reason"}),
			basePullsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "treasury_base_pulls_total",
				Help: "Count of withdrawals sourced through the base strategy by token.",
			}, []string{"token"}),
			baseForwardsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "treasury_base_forwards_total",
				Help: "Count of repayment inflows forwarded to the base strategy by token.",
			}, []string{"token"}),
			localReserve: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "treasury_local_reserve",
				Help: "Vault local reserve balance per token, in base units.",
			}, []string{"token"}),
			outstandingDebt: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "treasury_outstanding_debt",
				Help: "Net outstanding debt per strategy and token, in base units.",
			}, []string{"token", "strategy"}),
		}
		prometheus.MustRegister(
			treasuryRegistry.borrowsTotal,
			treasuryRegistry.repaysTotal,
			treasuryRegistry.rejectionsTotal,
			treasuryRegistry.basePullsTotal,
			treasuryRegistry.baseForwardsTotal,
			treasuryRegistry.localReserve,
			treasuryRegistry.outstandingDebt,
		)
	})
	return treasuryRegistry
}

func (m *TreasuryMetrics) ObserveBorrow(token string) {
	if m == nil {
		return
	}
	m.borrowsTotal.WithLabelValues(labelOrUnknown(token)).Inc()
}

func (m *TreasuryMetrics) ObserveRepay(token string) {
	if m == nil {
		return
	}
	m.repaysTotal.WithLabelValues(labelOrUnknown(token)).Inc()
}

func (m *TreasuryMetrics) ObserveRejection(reason string) {
	if m == nil {
		return
	}
	m.rejectionsTotal.WithLabelValues(labelOrUnknown(reason)).Inc()
}

func (m *TreasuryMetrics) ObserveBasePull(token string) {
	if m == nil {
		return
	}
	m.basePullsTotal.WithLabelValues(labelOrUnknown(token)).Inc()
}

func (m *TreasuryMetrics) ObserveBaseForward(token string) {
	if m == nil {
		return
	}
	m.baseForwardsTotal.WithLabelValues(labelOrUnknown(token)).Inc()
}

func (m *TreasuryMetrics) SetLocalReserve(token string, amount float64) {
	if m == nil {
		return
	}
	m.localReserve.WithLabelValues(labelOrUnknown(token)).Set(amount)
}

func (m *TreasuryMetrics) SetOutstandingDebt(token, strategy string, amount float64) {
	if m == nil {
		return
	}
	m.outstandingDebt.WithLabelValues(labelOrUnknown(token), labelOrUnknown(strategy)).Set(amount)
}

func labelOrUnknown(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
