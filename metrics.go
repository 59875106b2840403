package smbpoll

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for polls and transfers.
// A nil *Metrics records nothing.
type Metrics struct {
	polls             *prometheus.CounterVec
	pollDuration      prometheus.Histogram
	filesDiscovered   prometheus.Counter
	transfers         *prometheus.CounterVec
	bytesWritten      prometheus.Counter
	directoryWarnings prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		polls: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "smbpoll_polls_total",
				Help: "Total number of poll cycles",
			},
			[]string{"status"},
		),
		pollDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "smbpoll_poll_duration_seconds",
				Help:    "Time to walk the share in one poll cycle",
				Buckets: prometheus.DefBuckets,
			},
		),
		filesDiscovered: f.NewCounter(
			prometheus.CounterOpts{
				Name: "smbpoll_files_discovered_total",
				Help: "Total number of files returned by poll cycles",
			},
		),
		transfers: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "smbpoll_transfers_total",
				Help: "Total number of file writes to the share",
			},
			[]string{"status"},
		),
		bytesWritten: f.NewCounter(
			prometheus.CounterOpts{
				Name: "smbpoll_bytes_written_total",
				Help: "Total bytes stored on the share",
			},
		),
		directoryWarnings: f.NewCounter(
			prometheus.CounterOpts{
				Name: "smbpoll_directory_create_warnings_total",
				Help: "Parent directories that could not be built before an upload",
			},
		),
	}
}

func (m *Metrics) observePoll(files int, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.pollDuration.Observe(d.Seconds())
	if err != nil {
		m.polls.WithLabelValues("error").Inc()
		return
	}
	m.polls.WithLabelValues("success").Inc()
	m.filesDiscovered.Add(float64(files))
}

func (m *Metrics) observeTransfer(n int64, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.transfers.WithLabelValues("error").Inc()
		return
	}
	m.transfers.WithLabelValues("success").Inc()
	m.bytesWritten.Add(float64(n))
}

func (m *Metrics) directoryWarning() {
	if m == nil {
		return
	}
	m.directoryWarnings.Inc()
}
