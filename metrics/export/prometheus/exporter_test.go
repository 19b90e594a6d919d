package prometheus

import (
	"net/http/httptest"
	"strings"
	"testing"

	authcore "github.com/beautystack/authcore"
)

type fakeSource struct {
	snapshot authcore.MetricsSnapshot
}

func (f *fakeSource) MetricsSnapshot() authcore.MetricsSnapshot {
	out := authcore.MetricsSnapshot{Counters: make(map[authcore.MetricID]uint64, len(f.snapshot.Counters))}
	for k, v := range f.snapshot.Counters {
		out.Counters[k] = v
	}
	return out
}

func TestRenderCounters(t *testing.T) {
	src := &fakeSource{snapshot: authcore.MetricsSnapshot{
		Counters: map[authcore.MetricID]uint64{
			authcore.MetricLoginSuccess:     7,
			authcore.MetricMFAVerifyFailure: 2,
		},
	}}
	out := NewExporterFromSource(src).Render()

	for _, want := range []string{
		"# TYPE authcore_login_success_total counter",
		"authcore_login_success_total 7",
		"authcore_mfa_verify_failure_total 2",
		"authcore_refresh_success_total 0",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in rendered output:\n%s", want, out)
		}
	}
}

func TestHandlerContentType(t *testing.T) {
	src := &fakeSource{snapshot: authcore.MetricsSnapshot{Counters: map[authcore.MetricID]uint64{}}}
	rec := httptest.NewRecorder()
	NewExporterFromSource(src).Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if got := rec.Header().Get("Content-Type"); !strings.HasPrefix(got, "text/plain") {
		t.Fatalf("unexpected content type %q", got)
	}
}

func TestNilExporterRenders(t *testing.T) {
	var e *Exporter
	if out := e.Render(); out != "" {
		t.Fatalf("nil exporter rendered %q", out)
	}
}
