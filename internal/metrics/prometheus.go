package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	DecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docshare_moderation_decisions_total",
			Help: "Moderation decisions by outcome and origin",
		},
		[]string{"status", "origin"},
	)

	EvaluationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "docshare_moderation_evaluation_seconds",
			Help:    "Document evaluation duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10},
		},
	)

	SimilarityMatchesRecorded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "docshare_similarity_matches_recorded_total",
			Help: "Similarity matches at or above the detection floor",
		},
	)

	SimilarityScore = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "docshare_similarity_combined_score",
			Help:    "Combined similarity scores of recorded matches",
			Buckets: []float64{0.5, 0.6, 0.7, 0.8, 0.9, 0.95, 1.0},
		},
	)

	LiveConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "docshare_live_connections",
			Help: "Currently open websocket connections",
		},
	)

	EventsDelivered = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docshare_events_delivered_total",
			Help: "Live events delivered to connections",
		},
		[]string{"event_type"},
	)

	NotificationPersistFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "docshare_notification_persist_failures_total",
			Help: "Durable notification writes that failed after retries",
		},
	)

	AuthFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "docshare_ws_auth_failures_total",
			Help: "Websocket authentication attempts that failed",
		},
	)
)

func Init() {
	prometheus.MustRegister(DecisionsTotal)
	prometheus.MustRegister(EvaluationDuration)
	prometheus.MustRegister(SimilarityMatchesRecorded)
	prometheus.MustRegister(SimilarityScore)
	prometheus.MustRegister(LiveConnections)
	prometheus.MustRegister(EventsDelivered)
	prometheus.MustRegister(NotificationPersistFailures)
	prometheus.MustRegister(AuthFailures)
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
