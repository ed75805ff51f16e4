package resclone

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts what a run did. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	requests *prometheus.CounterVec
	bytes    prometheus.Counter
	files    *prometheus.CounterVec
	skipped  *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "resclone",
			Name:      "http_requests_total",
			Help:      "HTTP requests issued, by method and status code.",
		}, []string{"method", "code"}),
		bytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "resclone",
			Name:      "transferred_bytes_total",
			Help:      "Resource payload bytes downloaded or uploaded.",
		}),
		files: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "resclone",
			Name:      "files_total",
			Help:      "Files archived (pull) or uploaded (push).",
		}, []string{"mode"}),
		skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "resclone",
			Name:      "skipped_total",
			Help:      "Entries skipped, by reason.",
		}, []string{"reason"}),
	}
	m.registry.MustRegister(m.requests, m.bytes, m.files, m.skipped)
	return m
}

// Registry exposes the counters, e.g. for prometheus.WriteToTextfile.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// WriteTextfile dumps all counters in the text exposition format.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}

func (m *Metrics) observeRequest(method string, code int) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, strconv.Itoa(code)).Inc()
}

func (m *Metrics) observeBytes(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.bytes.Add(float64(n))
}

func (m *Metrics) fileDone(mode Mode) {
	if m == nil {
		return
	}
	m.files.WithLabelValues(mode.String()).Inc()
}

func (m *Metrics) skip(reason string) {
	if m == nil {
		return
	}
	m.skipped.WithLabelValues(reason).Inc()
}
