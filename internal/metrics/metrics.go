// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "home_controller"

// Poll results.
const (
	PollOK      = "ok"
	PollFailed  = "failed"
	PollSkipped = "skipped"
)

var (
	pollsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "polls_total",
			Help:      "Device list polls by result.",
		},
		[]string{"result"},
	)

	pollDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "poll_duration_seconds",
			Help:      "Time spent fetching and reconciling the device list.",
			Buckets:   prometheus.DefBuckets,
		},
	)

	commandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Device commands by command and result.",
		},
		[]string{"command", "result"},
	)

	registryDevices = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "registry_devices",
			Help:      "Devices currently held in the registry.",
		},
	)

	registryOnline = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "registry_devices_online",
			Help:      "Devices whose last heartbeat is within the staleness threshold.",
		},
	)

	dataAnomalies = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "device_data_anomalies_total",
			Help:      "Malformed or inconsistent device records seen while polling.",
		},
		[]string{"kind"},
	)

	voiceIntents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "voice_results_total",
			Help:      "Interpreted voice transcripts by result kind.",
		},
		[]string{"kind"},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "API requests by route, method and status.",
		},
		[]string{"route", "method", "status"},
	)
)

func init() {
	prometheus.MustRegister(
		pollsTotal,
		pollDuration,
		commandsTotal,
		registryDevices,
		registryOnline,
		dataAnomalies,
		voiceIntents,
		httpRequests,
	)
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObservePoll records one poll attempt. Duration is ignored for skipped polls.
func ObservePoll(result string, d time.Duration) {
	pollsTotal.WithLabelValues(result).Inc()
	if result != PollSkipped {
		pollDuration.Observe(d.Seconds())
	}
}

// ObserveCommand records a completed device command.
func ObserveCommand(command string, ok bool) {
	result := "ok"
	if !ok {
		result = "failed"
	}
	commandsTotal.WithLabelValues(command, result).Inc()
}

// SetRegistry records the registry size and online count.
func SetRegistry(total, online int) {
	registryDevices.Set(float64(total))
	registryOnline.Set(float64(online))
}

// ObserveAnomaly counts a malformed device record, e.g. "duplicate_id".
func ObserveAnomaly(kind string, n int) {
	if n <= 0 {
		return
	}
	dataAnomalies.WithLabelValues(kind).Add(float64(n))
}

// ObserveVoice counts one interpreted transcript.
func ObserveVoice(kind string) {
	voiceIntents.WithLabelValues(kind).Inc()
}

// ObserveHTTP counts one API request.
func ObserveHTTP(route, method string, status int) {
	httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
}
