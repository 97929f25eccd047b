package metrics

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Served HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	transitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pool_transitions_total",
			Help: "Committed engine transitions",
		},
		[]string{"op"},
	)

	rejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pool_transitions_rejected_total",
			Help: "Rejected engine transitions",
		},
		[]string{"op", "kind"},
	)

	// Match score of submitted applications, 0..100
	matchScore = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "application_match_score",
			Help:    "Match score of submitted applications",
			Buckets: []float64{10, 25, 50, 75, 90, 100},
		},
	)

	outboxEvents = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "outbox_events_published_total",
			Help: "Events published from the outbox",
		},
	)

	outboxPayouts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "outbox_payouts_shipped_total",
			Help: "Payout intents shipped from the outbox",
		},
	)

	outboxFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "outbox_flush_failures_total",
			Help: "Failed outbox flushes",
		},
	)

	settlements = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settlements_total",
			Help: "Processed payout intents by outcome",
		},
		[]string{"outcome"},
	)
)

// ObserveRequest counts a served HTTP request.
func ObserveRequest(method, route string, status int) {
	httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}

// IncTransition counts a committed engine transition.
func IncTransition(op string) {
	transitionsTotal.WithLabelValues(op).Inc()
}

// IncRejected counts a transition that failed, labelled by error kind.
func IncRejected(op, kind string) {
	rejectedTotal.WithLabelValues(op, kind).Inc()
}

// ObserveMatchScore records the score of a submitted application.
func ObserveMatchScore(score float64) {
	if score < 0 {
		score = 0
	}
	matchScore.Observe(score)
}

// AddOutboxEvents counts events handed to the publisher.
func AddOutboxEvents(n int) {
	outboxEvents.Add(float64(n))
}

// AddOutboxPayouts counts payout intents handed to the ledger transport.
func AddOutboxPayouts(n int) {
	outboxPayouts.Add(float64(n))
}

// IncOutboxFailure counts a failed flush.
func IncOutboxFailure() {
	outboxFailures.Inc()
}

// IncSettlement counts a processed payout by outcome: executed, duplicate or failed.
func IncSettlement(outcome string) {
	switch outcome {
	case "executed", "duplicate":
	default:
		outcome = "failed"
	}
	settlements.WithLabelValues(outcome).Inc()
}

// Handler exposes the default registry in Prometheus text format.
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
