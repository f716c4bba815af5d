package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Decision metrics
	decisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "risk_engine_decisions_total",
			Help: "Total open-position decisions by result",
		},
		[]string{"result"},
	)

	rejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "risk_engine_rejections_total",
			Help: "Total rejected trade intents by reason code",
		},
		[]string{"reason"},
	)

	approvedNotional = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "risk_engine_approved_notional",
			Help:    "Distribution of approved position notional values",
			Buckets: prometheus.ExponentialBuckets(10, 4, 10),
		},
		[]string{"symbol"},
	)

	// Portfolio metrics
	openPositions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "risk_engine_open_positions",
			Help: "Number of currently held positions",
		},
	)

	equity = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "risk_engine_equity",
			Help: "Current portfolio equity",
		},
	)

	drawdown = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "risk_engine_drawdown",
			Help: "Current drawdown from peak equity",
		},
	)

	riskState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "risk_engine_risk_state",
			Help: "Current risk state (0=normal 1=warning 2=critical 3=halted)",
		},
	)

	// Event metrics
	stopAdjustments = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "risk_engine_stop_adjustments_total",
			Help: "Total stop tightenings by kind",
		},
		[]string{"kind"},
	)

	eventsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "risk_engine_events_dropped_total",
			Help: "Engine events dropped because the consumer fell behind",
		},
	)
)

func init() {
	prometheus.MustRegister(decisionsTotal)
	prometheus.MustRegister(rejectionsTotal)
	prometheus.MustRegister(approvedNotional)
	prometheus.MustRegister(openPositions)
	prometheus.MustRegister(equity)
	prometheus.MustRegister(drawdown)
	prometheus.MustRegister(riskState)
	prometheus.MustRegister(stopAdjustments)
	prometheus.MustRegister(eventsDropped)
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordApproval records an approved open.
func RecordApproval(symbol string, notional float64) {
	decisionsTotal.WithLabelValues("approved").Inc()
	approvedNotional.WithLabelValues(symbol).Observe(notional)
}

// RecordRejection records a rejected intent.
func RecordRejection(reason string) {
	decisionsTotal.WithLabelValues("rejected").Inc()
	rejectionsTotal.WithLabelValues(reason).Inc()
}

// RecordStopAdjustment records a stop tightening.
func RecordStopAdjustment(kind string) {
	stopAdjustments.WithLabelValues(kind).Inc()
}

// RecordEventDropped counts a dropped engine event.
func RecordEventDropped() {
	eventsDropped.Inc()
}

// UpdatePortfolio refreshes the portfolio gauges.
func UpdatePortfolio(openCount int, currentEquity, currentDrawdown float64, state int) {
	openPositions.Set(float64(openCount))
	equity.Set(currentEquity)
	drawdown.Set(currentDrawdown)
	riskState.Set(float64(state))
}
