package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func scrape(t *testing.T) string {
	t.Helper()

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	return w.Body.String()
}

func TestHandler(t *testing.T) {
	RecordRender("render", "ok", time.Second)
	UpdateBrowserMetrics(2, 1)

	body := scrape(t)

	expectedMetrics := []string{
		"pageforge_browser_state",
		"pageforge_active_sessions",
		"pageforge_renders_in_flight",
	}
	for _, metric := range expectedMetrics {
		if !strings.Contains(body, metric) {
			t.Errorf("Expected metric %q not found in output", metric)
		}
	}
}

func TestSetBuildInfo(t *testing.T) {
	SetBuildInfo("1.0.0", "go1.22")

	body := scrape(t)
	if !strings.Contains(body, "pageforge_build_info") {
		t.Error("Expected pageforge_build_info metric")
	}
	if !strings.Contains(body, "version=\"1.0.0\"") {
		t.Error("Expected version label in build_info")
	}
	if !strings.Contains(body, "go_version=\"go1.22\"") {
		t.Error("Expected go_version label in build_info")
	}
}

func TestRecordRender(t *testing.T) {
	RecordRender("html", "ok", time.Second)
	RecordRender("html", "timeout", 500*time.Millisecond)
	RecordRender("pdf", "ok", 2*time.Second)

	body := scrape(t)
	if !strings.Contains(body, "pageforge_renders_total") {
		t.Error("Expected pageforge_renders_total metric")
	}
	if !strings.Contains(body, `endpoint="html",outcome="timeout"`) {
		t.Error("Expected html/timeout series")
	}
	if !strings.Contains(body, "pageforge_render_duration_seconds") {
		t.Error("Expected pageforge_render_duration_seconds metric")
	}
}

func TestRecordBatch(t *testing.T) {
	RecordBatch(5)

	body := scrape(t)
	if !strings.Contains(body, "pageforge_batch_size") {
		t.Error("Expected pageforge_batch_size metric")
	}
}

func TestUpdateBrowserMetrics(t *testing.T) {
	UpdateBrowserMetrics(3, 5)

	body := scrape(t)
	if !strings.Contains(body, "pageforge_browser_state 3") {
		t.Error("Expected browser_state to be 3")
	}
	if !strings.Contains(body, "pageforge_active_sessions 5") {
		t.Error("Expected active_sessions to be 5")
	}
}

func TestStartMemoryCollector(t *testing.T) {
	stopCh := make(chan struct{})

	go StartMemoryCollector(50*time.Millisecond, stopCh)
	time.Sleep(150 * time.Millisecond)
	close(stopCh)

	body := scrape(t)
	if !strings.Contains(body, "pageforge_memory_usage_bytes") {
		t.Error("Expected pageforge_memory_usage_bytes metric")
	}
	if !strings.Contains(body, "pageforge_memory_sys_bytes") {
		t.Error("Expected pageforge_memory_sys_bytes metric")
	}
	if !strings.Contains(body, "pageforge_goroutines") {
		t.Error("Expected pageforge_goroutines metric")
	}
}
