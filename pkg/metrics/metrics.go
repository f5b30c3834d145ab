package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	RoutingDecisions         *prometheus.CounterVec
	EvaluationDuration       prometheus.Histogram
	HolidayLookupFailures    prometheus.Counter
	ExternalCallDuration     *prometheus.HistogramVec
	ToolExecutions           *prometheus.CounterVec
	ActiveConversationsCount prometheus.Gauge
	ConversationLockBusy     prometheus.Counter
	RedisOperationDuration   *prometheus.HistogramVec
	LeaderChanges            prometheus.Counter
	LeaderElectionDuration   prometheus.Histogram
	OutcomePublishFailures   *prometheus.CounterVec
	StreamProcessingDuration prometheus.Histogram
	StreamMessagesProcessed  *prometheus.CounterVec
	CatalogueReloads         *prometheus.CounterVec
}

// NewMetrics registers the collectors with reg. Tests pass a fresh
// prometheus.NewRegistry(); the service passes prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		RoutingDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "routing_decisions_total",
			Help: "Total number of routing outcomes by status and channel",
		}, []string{"status", "channel"}),
		EvaluationDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "routing_evaluation_duration_seconds",
			Help:    "Time taken to evaluate one inbound event",
			Buckets: prometheus.DefBuckets,
		}),
		HolidayLookupFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "holiday_lookup_failures_total",
			Help: "Holiday calendar lookups that failed open",
		}),
		ExternalCallDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "external_call_duration_seconds",
			Help:    "Time taken by external collaborators",
			Buckets: prometheus.DefBuckets,
		}, []string{"call"}),
		ToolExecutions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tool_executions_total",
			Help: "Integration connector executions by tool and result",
		}, []string{"tool", "result"}),
		ActiveConversationsCount: factory.NewGauge(prometheus.GaugeOpts{
			Name: "active_conversations_count",
			Help: "Current number of conversations with stored routing state",
		}),
		ConversationLockBusy: factory.NewCounter(prometheus.CounterOpts{
			Name: "conversation_lock_busy_total",
			Help: "Evaluations rejected because another caller held the conversation",
		}),
		RedisOperationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "redis_operation_duration_seconds",
			Help:    "Time taken for Redis operations",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		LeaderChanges: factory.NewCounter(prometheus.CounterOpts{
			Name: "router_leader_changes_total",
			Help: "Total number of leader changes",
		}),
		LeaderElectionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "leader_election_duration_seconds",
			Help:    "Time taken for leader election operations",
			Buckets: prometheus.DefBuckets,
		}),
		OutcomePublishFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "outcome_publish_failures_total",
			Help: "Routing outcomes that could not be handed to a sink",
		}, []string{"sink"}),
		StreamProcessingDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "stream_processing_duration_seconds",
			Help:    "Time taken to process outcome stream messages",
			Buckets: prometheus.DefBuckets,
		}),
		StreamMessagesProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "stream_messages_processed_total",
			Help: "Total number of outcome stream messages processed",
		}, []string{"status"}),
		CatalogueReloads: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "catalogue_reloads_total",
			Help: "Skill catalogue loads by result",
		}, []string{"result"}),
	}
}
