package health

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func opsStub(t *testing.T, statusCode int, body string) string {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusCode)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)

	return strings.TrimPrefix(server.URL, "http://")
}

func TestProbeOpsHealthy(t *testing.T) {
	addr := opsStub(t, http.StatusOK,
		`{"status":"healthy","components":{"telegram":"healthy","docker":"healthy"},"version":"1.2.3","uptime":"3h0m0s"}`)

	var out bytes.Buffer
	code := ProbeOps(context.Background(), addr, &out)

	if code != ExitHealthy {
		t.Fatalf("Expected exit code %d, got %d", ExitHealthy, code)
	}

	report := out.String()
	if !strings.Contains(report, "status: healthy") {
		t.Errorf("Expected healthy header, got %q", report)
	}
	if !strings.Contains(report, "docker: healthy") || !strings.Contains(report, "telegram: healthy") {
		t.Errorf("Expected per-component lines, got %q", report)
	}
	if !strings.Contains(report, "1.2.3") {
		t.Errorf("Expected version in header, got %q", report)
	}
}

func TestProbeOpsUnhealthy(t *testing.T) {
	addr := opsStub(t, http.StatusServiceUnavailable,
		`{"status":"unhealthy","components":{"docker":"unhealthy: engine unreachable","telegram":"healthy"}}`)

	var out bytes.Buffer
	code := ProbeOps(context.Background(), addr, &out)

	if code != ExitUnhealthy {
		t.Fatalf("Expected exit code %d, got %d", ExitUnhealthy, code)
	}
	if !strings.Contains(out.String(), "engine unreachable") {
		t.Errorf("Expected failing component detail, got %q", out.String())
	}
}

func TestProbeOpsUnreachable(t *testing.T) {
	// Grab a port that is guaranteed closed by the time we probe it.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := strings.TrimPrefix(server.URL, "http://")
	server.Close()

	var out bytes.Buffer
	code := ProbeOps(context.Background(), addr, &out)

	if code != ExitUnknown {
		t.Fatalf("Expected exit code %d, got %d", ExitUnknown, code)
	}
	if !strings.Contains(out.String(), "status: unknown") {
		t.Errorf("Expected unknown header, got %q", out.String())
	}
}

func TestProbeOpsUnreadableResponse(t *testing.T) {
	addr := opsStub(t, http.StatusOK, `<html>not json</html>`)

	var out bytes.Buffer
	code := ProbeOps(context.Background(), addr, &out)

	if code != ExitUnknown {
		t.Fatalf("Expected exit code %d, got %d", ExitUnknown, code)
	}
}

func TestProbeOpsUnexpectedStatusValue(t *testing.T) {
	addr := opsStub(t, http.StatusOK, `{"status":"degraded"}`)

	var out bytes.Buffer
	code := ProbeOps(context.Background(), addr, &out)

	if code != ExitUnknown {
		t.Fatalf("Expected exit code %d for unrecognized status, got %d", ExitUnknown, code)
	}
}
