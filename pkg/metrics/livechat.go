package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ConversationsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "livechat",
		Name:      "conversations_started_total",
		Help:      "Conversations opened by customers.",
	})

	AssignmentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "livechat",
		Name:      "assignments_total",
		Help:      "Conversations assigned to agents, by routing method.",
	}, []string{"method"})

	TransfersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "livechat",
		Name:      "transfers_total",
		Help:      "Transfer attempts between agents, by outcome.",
	}, []string{"outcome"})

	AbandonedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "livechat",
		Name:      "abandoned_total",
		Help:      "Conversations abandoned while waiting in the queue.",
	})

	QueueWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "livechat",
		Name:      "queue_wait_seconds",
		Help:      "Time between enqueue and assignment.",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
	})

	HandleTimeSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "livechat",
		Name:      "handle_time_seconds",
		Help:      "Conversation duration from start to close.",
		Buckets:   []float64{30, 60, 120, 300, 600, 1200, 3600},
	})

	QueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "livechat",
		Name:      "queue_depth",
		Help:      "Conversations currently waiting, per tenant.",
	}, []string{"tenant"})
)
