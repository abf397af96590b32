package recorder

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/itohio/goctd/pkg/ctd"
)

// metrics holds the recorder's Prometheus collectors in a private registry.
type metrics struct {
	registry *prometheus.Registry

	bytesReceived prometheus.Counter
	bytesLogged   prometheus.Counter
	logSyncs      prometheus.Counter
	logErrors     prometheus.Counter
}

func newMetrics(r *Recorder) *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		bytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ctd_bytes_received_total",
			Help: "Total number of bytes read from the instrument",
		}),
		bytesLogged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ctd_bytes_logged_total",
			Help: "Total number of bytes appended to the log file",
		}),
		logSyncs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ctd_log_syncs_total",
			Help: "Total number of idle log flushes",
		}),
		logErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ctd_log_errors_total",
			Help: "Total number of failed log writes and flushes",
		}),
	}

	stat := func(field func(ctd.Stats) uint64) func() float64 {
		return func() float64 { return float64(field(r.Stats())) }
	}

	m.registry.MustRegister(
		m.bytesReceived,
		m.bytesLogged,
		m.logSyncs,
		m.logErrors,
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "ctd_lines_total",
			Help: "Total number of complete lines framed",
		}, stat(func(s ctd.Stats) uint64 { return s.Lines })),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "ctd_samples_total",
			Help: "Total number of lines parsed into samples",
		}, stat(func(s ctd.Stats) uint64 { return s.Samples })),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "ctd_lines_dropped_total",
			Help: "Total number of lines that did not parse",
		}, stat(func(s ctd.Stats) uint64 { return s.Dropped })),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "ctd_lines_recovered_total",
			Help: "Total number of samples recovered from overflowed lines",
		}, stat(func(s ctd.Stats) uint64 { return s.Recovered })),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "ctd_bytes_evicted_total",
			Help: "Total number of bytes discarded by the line buffer",
		}, stat(func(s ctd.Stats) uint64 { return s.Evicted })),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "ctd_averages_total",
			Help: "Total number of averaged lines emitted",
		}, stat(func(s ctd.Stats) uint64 { return s.Averages })),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "ctd_window_samples",
			Help: "Samples collected towards the next average",
		}, func() float64 {
			_, count := r.State()
			return float64(count)
		}),
	)

	return m
}

// Handler exposes the recorder metrics in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.metrics.registry, promhttp.HandlerOpts{})
}
