// Package metrics holds the daemon's Prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	outboxQueued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "outpost_outbox_queued_total",
			Help: "Messages queued in the local outbox",
		},
	)

	outboxResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outpost_outbox_results_total",
			Help: "Outbox send attempts by result",
		},
		[]string{"result"},
	)

	outboxPending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "outpost_outbox_pending",
			Help: "Entries waiting in the outbox",
		},
	)

	syncPassDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "outpost_sync_pass_duration_seconds",
			Help:    "Duration of outbox sync passes",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2, 5, 10},
		},
	)

	realtimeReconnects = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outpost_realtime_reconnects_total",
			Help: "Realtime channel reconnect attempts by transport",
		},
		[]string{"transport"},
	)

	realtimeEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outpost_realtime_events_total",
			Help: "Realtime events received by name",
		},
		[]string{"event"},
	)

	notificationFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outpost_notification_fetches_total",
			Help: "Notification list fetches by result",
		},
		[]string{"result"},
	)

	notificationsUnread = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "outpost_notifications_unread",
			Help: "Unread notification counter",
		},
	)

	connectivityOnline = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "outpost_connectivity_online",
			Help: "1 when the server is reachable",
		},
	)
)

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordQueued records a new outbox entry
func RecordQueued() {
	outboxQueued.Inc()
}

// RecordSendResult records the outcome of one send attempt ("sent" or "failed")
func RecordSendResult(result string) {
	outboxResults.WithLabelValues(result).Inc()
}

// SetPending sets the outbox pending gauge
func SetPending(n int) {
	outboxPending.Set(float64(n))
}

// RecordSyncPass records how long a sync pass took
func RecordSyncPass(d time.Duration) {
	syncPassDuration.Observe(d.Seconds())
}

// RecordReconnect records a scheduled realtime reconnect
func RecordReconnect(transport string) {
	realtimeReconnects.WithLabelValues(transport).Inc()
}

// RecordRealtimeEvent records an inbound realtime event
func RecordRealtimeEvent(event string) {
	realtimeEvents.WithLabelValues(event).Inc()
}

// RecordFetch records a notification fetch result ("ok", "unauthorized", "error")
func RecordFetch(result string) {
	notificationFetches.WithLabelValues(result).Inc()
}

// SetUnread sets the unread notification gauge
func SetUnread(n int) {
	notificationsUnread.Set(float64(n))
}

// SetOnline sets the connectivity gauge
func SetOnline(online bool) {
	v := 0.0
	if online {
		v = 1
	}
	connectivityOnline.Set(v)
}
