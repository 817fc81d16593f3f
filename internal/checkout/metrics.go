package checkout

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics содержит метрики checkout-пайплайна.
type Metrics struct {
	checkoutsStarted   prometheus.Counter
	checkoutsSucceeded prometheus.Counter
	checkoutsFailed    *prometheus.CounterVec

	checkoutDuration prometheus.Histogram

	stockConflicts prometheus.Counter
	lowStockEvents prometheus.Counter

	activeCheckouts prometheus.Gauge
}

// NewMetrics создаёт метрики checkout в default registry.
func NewMetrics() *Metrics {
	return newMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func newMetricsWithRegisterer(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &Metrics{
		checkoutsStarted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "banhang_checkouts_started_total",
			Help: "Total number of checkout attempts started",
		}),
		checkoutsSucceeded: registerCounter(registerer, prometheus.CounterOpts{
			Name: "banhang_checkouts_succeeded_total",
			Help: "Total number of checkouts that produced a persisted order",
		}),
		checkoutsFailed: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "banhang_checkouts_failed_total",
			Help: "Total number of failed checkouts grouped by reason",
		}, []string{"reason"}),
		checkoutDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "banhang_checkout_duration_seconds",
			Help:    "Duration of checkout attempts in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		stockConflicts: registerCounter(registerer, prometheus.CounterOpts{
			Name: "banhang_checkout_stock_conflicts_total",
			Help: "Total number of checkouts that lost the race for limited stock",
		}),
		lowStockEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "banhang_low_stock_events_total",
			Help: "Total number of low stock notifications scheduled",
		}),
		activeCheckouts: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "banhang_active_checkouts",
			Help: "Number of checkout transactions currently in flight",
		}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerGauge(registerer prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	collector := prometheus.NewGauge(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Gauge)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register gauge %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogram(registerer prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	collector := prometheus.NewHistogram(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Histogram)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram %q: %v", opts.Name, err))
	}
	return collector
}

// RecordStarted отмечает начало checkout-попытки.
func (m *Metrics) RecordStarted() {
	m.checkoutsStarted.Inc()
	m.activeCheckouts.Inc()
}

// RecordSucceeded отмечает успешное оформление заказа.
func (m *Metrics) RecordSucceeded() {
	m.checkoutsSucceeded.Inc()
	m.activeCheckouts.Dec()
}

// RecordFailed отмечает неуспешный checkout с причиной.
func (m *Metrics) RecordFailed(reason string) {
	m.checkoutsFailed.WithLabelValues(reason).Inc()
	m.activeCheckouts.Dec()
}

// RecordStockConflict отмечает проигранную гонку за сток.
func (m *Metrics) RecordStockConflict() {
	m.stockConflicts.Inc()
}

// RecordLowStock отмечает запланированное low-stock уведомление.
func (m *Metrics) RecordLowStock() {
	m.lowStockEvents.Inc()
}

// RecordDuration записывает длительность checkout-попытки.
func (m *Metrics) RecordDuration(duration time.Duration) {
	m.checkoutDuration.Observe(duration.Seconds())
}
