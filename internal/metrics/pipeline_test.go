package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/ironsheep/creek-ocr/internal/catalog"
	"github.com/ironsheep/creek-ocr/internal/failure"
	"github.com/ironsheep/creek-ocr/internal/record"
)

func TestStatus(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "success"},
		{errors.New("boom"), "error"},
		{failure.NewTimestampUnresolved("x", nil), "timestamp_unresolved"},
		{failure.NewUnreadableImage(nil), "unreadable_image"},
	}
	for _, tt := range tests {
		if got := Status(tt.err); got != tt.want {
			t.Errorf("Status(%v): got %s, want %s", tt.err, got, tt.want)
		}
	}
}

func TestFinishCapture(t *testing.T) {
	m := NewPipelineMetrics("test")

	rec := record.New(record.Identity{}, "k", nil, []record.FieldFailure{
		{ID: catalog.Stage, Code: failure.FieldCoercion},
		{ID: catalog.Turbidity, Code: failure.OCREngine},
	}, true)

	m.StartCapture()
	m.FinishCapture("test", 2*time.Second, rec, nil)
	m.StartCapture()
	m.FinishCapture("test", time.Second, nil, failure.NewTimestampUnresolved("", nil))

	if got := testutil.ToFloat64(m.capturesTotal.WithLabelValues("test", "success")); got != 1 {
		t.Errorf("success captures: got %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.capturesTotal.WithLabelValues("test", "timestamp_unresolved")); got != 1 {
		t.Errorf("failed captures: got %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.fieldFailures.WithLabelValues("test", "stage", "FIELD_COERCION")); got != 1 {
		t.Errorf("stage failures: got %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.partialRecords); got != 1 {
		t.Errorf("partial records: got %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.capturesInFlight); got != 0 {
		t.Errorf("in flight: got %v, want 0", got)
	}
}

func TestHandler(t *testing.T) {
	m := NewPipelineMetrics("test")
	m.ObserveFetch("test", nil)

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rr.Body)
	if !strings.Contains(string(body), "creek_source_fetches_total") {
		t.Errorf("metrics output missing fetch counter:\n%s", body)
	}
}
