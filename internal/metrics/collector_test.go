package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"oden/internal/bus"
)

func TestRegistryReturnsSameSeries(t *testing.T) {
	reg := NewRegistry()
	a := reg.Counter("x_total", "x", "")
	b := reg.Counter("x_total", "x", "")
	if a != b {
		t.Fatal("same name and labels should return the same counter")
	}
	if reg.Counter("x_total", "x", `k="v"`) == a {
		t.Fatal("different labels should be a different series")
	}
}

func TestRenderFormat(t *testing.T) {
	reg := NewRegistry()
	reg.Counter("b_total", "B things", "").Add(3)
	reg.Counter("a_total", "A things", `reason="x"`).Inc()
	reg.Gauge("g", "G", "").Set(7)
	h := reg.Histogram("lat_seconds", "Latency", "", []float64{1, 0.5})
	h.Observe(0.2)
	h.Observe(2)

	out := reg.Render()
	for _, want := range []string{
		"# TYPE b_total counter",
		"b_total 3",
		`a_total{reason="x"} 1`,
		"g 7",
		`lat_seconds_bucket{le="0.5"} 1`,
		`lat_seconds_bucket{le="1"} 1`,
		`lat_seconds_bucket{le="+Inf"} 2`,
		"lat_seconds_count 2",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q\n%s", want, out)
		}
	}
	if strings.Index(out, "a_total") > strings.Index(out, "b_total") {
		t.Error("counters not sorted by name")
	}
}

func TestHandlerContentType(t *testing.T) {
	reg := NewRegistry()
	rec := httptest.NewRecorder()
	reg.Handler()(rec, httptest.NewRequest("GET", "/metrics", nil))
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("Content-Type = %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "oden_uptime_seconds") {
		t.Error("uptime gauge missing")
	}
}

func TestPipelineSubscribe(t *testing.T) {
	reg := NewRegistry()
	p := NewPipeline(reg)
	eb := bus.NewEventBus(nil)
	p.Subscribe(eb)

	eb.Emit(bus.Event{Type: bus.EventDocumentCreated, Payload: map[string]any{"duration": 20 * time.Millisecond}})
	eb.Emit(bus.Event{Type: bus.EventDocumentAppended})
	eb.Emit(bus.Event{Type: bus.EventDiscarded, Payload: map[string]any{"reason": "echo"}})
	eb.Emit(bus.Event{Type: bus.EventDiscarded, Payload: map[string]any{"reason": "echo"}})
	eb.Emit(bus.Event{Type: bus.EventConnected})

	if p.Created.Value() != 1 || p.Appended.Value() != 1 {
		t.Errorf("created=%d appended=%d", p.Created.Value(), p.Appended.Value())
	}
	if got := p.Discarded("echo").Value(); got != 2 {
		t.Errorf("discarded(echo) = %d, want 2", got)
	}
	if p.Connected.Value() != 1 {
		t.Error("connected gauge not set")
	}
	if p.ProcessLatency.Count() != 1 {
		t.Errorf("latency observations = %d, want 1", p.ProcessLatency.Count())
	}

	eb.Emit(bus.Event{Type: bus.EventDisconnected})
	if p.Connected.Value() != 0 || p.Reconnects.Value() != 1 {
		t.Error("disconnect not recorded")
	}
}
