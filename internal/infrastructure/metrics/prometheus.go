// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "avatarrelay"

var (
	// CacheOperationsTotal tracks response cache operations.
	// Labels:
	//   - operation: lookup, record, touch, cleanup, purge
	//   - status: hit, miss, success, error
	//   - cache_namespace: chat, video
	CacheOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_operations_total",
			Help:      "Total number of response cache operations",
		},
		[]string{"operation", "status", "cache_namespace"},
	)

	// CacheEntriesExpiredTotal counts entries removed by TTL cleanup.
	CacheEntriesExpiredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_entries_expired_total",
			Help:      "Total number of cache entries removed by TTL cleanup",
		},
	)

	// ProviderRequestsTotal tracks calls to external providers.
	// Labels:
	//   - provider: openai, did, elevenlabs
	//   - operation: complete, create_talk, synthesize
	//   - status: success, error
	ProviderRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_requests_total",
			Help:      "Total number of external provider requests",
		},
		[]string{"provider", "operation", "status"},
	)

	// ProviderRequestDuration observes provider call latency.
	ProviderRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_request_duration_seconds",
			Help:      "Latency of external provider requests",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"provider", "operation"},
	)

	// PollOutcomesTotal tracks how avatar video waits ended.
	// Labels:
	//   - outcome: done, failed, timeout, cancelled
	PollOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_outcomes_total",
			Help:      "Total number of avatar video polls by outcome",
		},
		[]string{"outcome"},
	)

	// PollDuration observes the wall-clock time of avatar video waits.
	PollDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "poll_duration_seconds",
			Help:      "Time spent waiting for avatar videos",
			Buckets:   []float64{1, 3, 6, 10, 20, 30, 60, 90, 120, 180},
		},
	)

	// SingleflightRequestsTotal tracks singleflight behavior.
	// Labels:
	//   - result: initiated (new execution), shared (reused result)
	SingleflightRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "singleflight_requests_total",
			Help:      "Total number of singleflight requests",
		},
		[]string{"result"},
	)

	// RateLimitedRequestsTotal counts requests rejected by the rate limiter.
	RateLimitedRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_requests_total",
			Help:      "Total number of requests rejected by the rate limiter",
		},
		[]string{"route"},
	)

	// RenderTasksTotal tracks asynchronous avatar render tasks.
	// Labels:
	//   - result: published, success, retry, dropped, dead_lettered
	RenderTasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "render_tasks_total",
			Help:      "Total number of avatar render tasks by result",
		},
		[]string{"result"},
	)

	// SpeechArchiveTotal tracks lookups in the speech audio archive.
	// Labels:
	//   - result: hit, miss, error
	SpeechArchiveTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "speech_archive_total",
			Help:      "Total number of speech archive lookups",
		},
		[]string{"result"},
	)
)

// Cache operation status constants.
const (
	CacheStatusHit     = "hit"
	CacheStatusMiss    = "miss"
	CacheStatusSuccess = "success"
	CacheStatusError   = "error"
)

// Cache operation type constants.
const (
	CacheOpLookup  = "lookup"
	CacheOpRecord  = "record"
	CacheOpTouch   = "touch"
	CacheOpCleanup = "cleanup"
	CacheOpPurge   = "purge"
)

// Cache namespace constants.
const (
	CacheNamespaceChat  = "chat"
	CacheNamespaceVideo = "video"
)

// Provider constants.
const (
	ProviderOpenAI     = "openai"
	ProviderDID        = "did"
	ProviderElevenLabs = "elevenlabs"
)

// Provider operation constants.
const (
	ProviderOpComplete   = "complete"
	ProviderOpCreateTalk = "create_talk"
	ProviderOpSynthesize = "synthesize"
)

// Provider status constants.
const (
	ProviderStatusSuccess = "success"
	ProviderStatusError   = "error"
)

// Singleflight result constants.
const (
	SingleflightInitiated = "initiated"
	SingleflightShared    = "shared"
)

// Render task result constants.
const (
	RenderPublished = "published"
	RenderSuccess   = "success"
	RenderRetry     = "retry"
	RenderDropped   = "dropped"

	// RenderDeadLettered counts undecodable tasks moved to the dead-letter queue.
	RenderDeadLettered = "dead_lettered"
	// RenderInterrupted counts renders requeued by a worker shutdown.
	RenderInterrupted = "interrupted"
)

// Speech archive result constants.
const (
	SpeechArchiveHit   = "hit"
	SpeechArchiveMiss  = "miss"
	SpeechArchiveError = "error"
)

// ProviderStatus returns the status label for a provider call result.
func ProviderStatus(err error) string {
	if err != nil {
		return ProviderStatusError
	}
	return ProviderStatusSuccess
}
