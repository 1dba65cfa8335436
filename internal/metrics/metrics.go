package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "teamchat_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "teamchat_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Business metrics
	MessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "teamchat_messages_sent_total",
			Help: "Total channel messages persisted",
		},
	)

	DirectMessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "teamchat_direct_messages_sent_total",
			Help: "Total direct messages persisted",
		},
	)

	SearchQueries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "teamchat_search_queries_total",
			Help: "Total search queries",
		},
	)

	FilesUploaded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "teamchat_files_uploaded_total",
			Help: "Total files accepted by the upload relay",
		},
	)

	// Gateway metrics
	ConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "teamchat_ws_connections_active",
			Help: "Currently connected websocket clients",
		},
	)

	EventsRelayed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "teamchat_ws_events_relayed_total",
			Help: "Server events relayed to room members",
		},
		[]string{"event"},
	)

	BroadcastsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "teamchat_ws_broadcasts_dropped_total",
			Help: "Events dropped because a client send buffer was full",
		},
	)
)
