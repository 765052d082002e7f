package obs

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.ObserveDecision("Hybrid", false, "etag_unchanged")
	m.ObserveDecision("Hybrid", false, "etag_unchanged")
	m.ObserveDownload("success")
	m.ObserveProbe("error")
	m.SetHolidays(42)
	m.SetLastDownload(time.Unix(1700000000, 0))

	if got := testutil.ToFloat64(m.DecisionsTotal.WithLabelValues("Hybrid", "false", "etag_unchanged")); got != 2 {
		t.Errorf("decisions = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.DownloadsTotal.WithLabelValues("success")); got != 1 {
		t.Errorf("downloads = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ProbesTotal.WithLabelValues("error")); got != 1 {
		t.Errorf("probes = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.HolidaysLoaded); got != 42 {
		t.Errorf("holidays = %v, want 42", got)
	}
	if got := testutil.ToFloat64(m.LastDownload); got != 1700000000 {
		t.Errorf("last download = %v", got)
	}

	if n, err := testutil.GatherAndCount(reg); err != nil || n == 0 {
		t.Errorf("GatherAndCount = %d, %v", n, err)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveDecision("TimeBased", true, "age_exceeded")
	m.ObserveDownload("success")
	m.ObserveProbe("ok")
	m.SetHolidays(1)
	m.SetLastDownload(time.Now())
}
