package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// SalesCommittedTotal counts checkout outcomes by payment method.
	SalesCommittedTotal *prometheus.CounterVec
	// SaleValue records committed sale grand totals in minor units.
	SaleValue *prometheus.HistogramVec
	// ShiftsOpenedTotal counts started cash-drawer shifts.
	ShiftsOpenedTotal prometheus.Counter
	// ShiftsClosedTotal counts closed shifts.
	ShiftsClosedTotal prometheus.Counter
	// ShiftCashVariance records the drawer variance observed at shift close.
	ShiftCashVariance prometheus.Histogram
	// BackofficePersistFailures counts failed persistence attempts awaiting retry.
	BackofficePersistFailures *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers POS domain collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		SalesCommittedTotal = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sales_committed_total",
			Help:      "Count of checkout attempts by payment method and result.",
		}, []string{"method", "result"}))
		SaleValue = registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sale_value_minor_units",
			Help:      "Grand totals of committed sales in currency minor units.",
			Buckets:   prometheus.ExponentialBuckets(1000, 4, 10),
		}, []string{"method"}))
		ShiftsOpenedTotal = registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "shifts_opened_total",
			Help:      "Count of opened cash-drawer shifts.",
		}))
		ShiftsClosedTotal = registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "shifts_closed_total",
			Help:      "Count of closed cash-drawer shifts.",
		}))
		ShiftCashVariance = registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "shift_cash_variance_minor_units",
			Help:      "Drawer surplus (positive) or shortfall (negative) at shift close.",
			Buckets:   []float64{-100000, -50000, -10000, -1000, 0, 1000, 10000, 50000, 100000},
		}))
		BackofficePersistFailures = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backoffice_persist_failures_total",
			Help:      "Failed back-office persistence calls by operation.",
		}, []string{"operation"}))
	})
}
