package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blackboard_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "blackboard_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Session metrics
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "blackboard_active_sessions",
			Help: "Currently connected peer sessions",
		},
	)

	FramesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blackboard_frames_total",
			Help: "Total protocol frames processed",
		},
		[]string{"type"},
	)

	FrameErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "blackboard_frame_errors_total",
			Help: "Total frames rejected with an error response",
		},
	)

	// Business metrics
	ChannelMessagesPublished = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "blackboard_channel_messages_published_total",
			Help: "Total channel messages published",
		},
	)

	DirectMessagesDelivered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "blackboard_direct_messages_delivered_total",
			Help: "Total point-to-point messages delivered locally",
		},
	)

	RecordUpdates = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "blackboard_record_updates_total",
			Help: "Total successful versioned record updates",
		},
	)

	RecordConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "blackboard_record_conflicts_total",
			Help: "Total versioned record updates rejected on version conflict",
		},
	)

	// Rate limit metrics
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blackboard_rate_limit_hits_total",
			Help: "Total rate limit hits",
		},
		[]string{"endpoint"},
	)
)
