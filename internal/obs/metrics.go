// Package obs exposes Prometheus metrics for the refresh engine. A nil
// *Metrics is valid and records nothing.
package obs

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	DecisionsTotal *prometheus.CounterVec // strategy, refresh=true|false, reason
	DownloadsTotal *prometheus.CounterVec // result=success|network_error|parse_error|cache_error
	ProbesTotal    *prometheus.CounterVec // result=ok|no_etag|error

	HolidaysLoaded prometheus.Gauge
	LastDownload   prometheus.Gauge // unix seconds of last successful download
}

// NewMetrics creates the collectors and registers them with reg. Passing a
// dedicated registry keeps tests independent of the global one.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		DecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "holidays_refresh_decisions_total",
				Help: "Refresh policy evaluations by strategy, outcome and reason",
			},
			[]string{"strategy", "refresh", "reason"},
		),
		DownloadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "holidays_downloads_total",
				Help: "Full source downloads by result",
			},
			[]string{"result"},
		),
		ProbesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "holidays_etag_probes_total",
				Help: "ETag probes by result",
			},
			[]string{"result"},
		),
		HolidaysLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "holidays_loaded",
			Help: "Number of holidays in the in-memory map",
		}),
		LastDownload: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "holidays_last_download_timestamp_seconds",
			Help: "Unix time of the last successful download",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.DecisionsTotal,
			m.DownloadsTotal,
			m.ProbesTotal,
			m.HolidaysLoaded,
			m.LastDownload,
		)
	}

	return m
}

func (m *Metrics) ObserveDecision(strategy string, refresh bool, reason string) {
	if m == nil {
		return
	}
	m.DecisionsTotal.WithLabelValues(strategy, strconv.FormatBool(refresh), reason).Inc()
}

func (m *Metrics) ObserveDownload(result string) {
	if m == nil {
		return
	}
	m.DownloadsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveProbe(result string) {
	if m == nil {
		return
	}
	m.ProbesTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) SetHolidays(n int) {
	if m == nil {
		return
	}
	m.HolidaysLoaded.Set(float64(n))
}

func (m *Metrics) SetLastDownload(t time.Time) {
	if m == nil {
		return
	}
	m.LastDownload.Set(float64(t.Unix()))
}
