package telemetry

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// ---------------------------------------------------------------------------
// Registration sanity checks. Describe() is used rather than Gather() because
// *Vec metrics with no observed label set are absent from Gather output.
// ---------------------------------------------------------------------------

func TestMetrics_AllRegistered(t *testing.T) {
	type describer interface {
		Describe(chan<- *prometheus.Desc)
	}

	cases := []struct {
		name string
		c    describer
	}{
		{"http_requests_total", HTTPRequestsTotal},
		{"http_request_duration_seconds", HTTPRequestDuration},
		{"audit_events_recorded_total", AuditEventsRecordedTotal},
		{"audit_ship_errors_total", AuditShipErrorsTotal},
		{"exports_total", ExportsTotal},
		{"export_rows", ExportRows},
		{"export_bytes", ExportBytes},
		{"db_open_connections", DBOpenConnections},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ch := make(chan *prometheus.Desc, 10)
			tc.c.Describe(ch)
			close(ch)
			for desc := range ch {
				if strings.Contains(desc.String(), `"`+tc.name+`"`) {
					return
				}
			}
			t.Errorf("metric %q: Describe() returned no descriptor with this fqName", tc.name)
		})
	}
}

func TestMetrics_AuditEventsRecorded_CanBeIncremented(t *testing.T) {
	labels := prometheus.Labels{"action": "SUBMIT", "category": "application"}
	before := counterValue(t, AuditEventsRecordedTotal, labels)
	AuditEventsRecordedTotal.With(labels).Inc()
	after := counterValue(t, AuditEventsRecordedTotal, labels)
	if after-before != 1 {
		t.Errorf("counter delta = %.0f, want 1", after-before)
	}
}

func TestMetrics_ExportsTotal_CanBeIncremented(t *testing.T) {
	labels := prometheus.Labels{"format": "csv", "destination": "download", "outcome": "success"}
	before := counterValue(t, ExportsTotal, labels)
	ExportsTotal.With(labels).Inc()
	after := counterValue(t, ExportsTotal, labels)
	if after-before != 1 {
		t.Errorf("counter delta = %.0f, want 1", after-before)
	}
}

func TestMetrics_ExportHistograms_CanBeObserved(t *testing.T) {
	before := histogramCount(t, ExportRows)
	ExportRows.Observe(42)
	if got := histogramCount(t, ExportRows); got != before+1 {
		t.Errorf("export_rows sample count = %d, want %d", got, before+1)
	}
	ExportBytes.Observe(1024)
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// counterValue reads the current value of a CounterVec for the given label set.
func counterValue(t *testing.T, cv *prometheus.CounterVec, labels prometheus.Labels) float64 {
	t.Helper()
	ch := make(chan prometheus.Metric, 64)
	cv.Collect(ch)
	close(ch)
	for m := range ch {
		var dm dto.Metric
		if err := m.Write(&dm); err != nil {
			continue
		}
		if labelsMatch(dm.GetLabel(), labels) {
			return dm.GetCounter().GetValue()
		}
	}
	return 0
}

func histogramCount(t *testing.T, h prometheus.Histogram) uint64 {
	t.Helper()
	var dm dto.Metric
	if err := h.Write(&dm); err != nil {
		t.Fatalf("histogram Write: %v", err)
	}
	return dm.GetHistogram().GetSampleCount()
}

// labelsMatch returns true when all entries in want appear in got.
func labelsMatch(got []*dto.LabelPair, want prometheus.Labels) bool {
	for k, v := range want {
		found := false
		for _, lp := range got {
			if lp.GetName() == k && lp.GetValue() == v {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
