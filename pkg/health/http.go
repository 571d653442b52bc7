package health

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// maxProbeBody caps how much of a probe response is retained.
const maxProbeBody = 1 << 16

// HTTPChecker probes an HTTP endpoint and keeps what it answered, so
// callers can classify on the report body and not just on reachability.
type HTTPChecker struct {
	url       string
	statusMin int
	statusMax int
	client    *http.Client
}

// NewHTTPChecker builds a GET checker accepting 2xx/3xx answers.
func NewHTTPChecker(url string) *HTTPChecker {
	return &HTTPChecker{
		url:       url,
		statusMin: http.StatusOK,
		statusMax: 399,
		client:    &http.Client{Timeout: 10 * time.Second},
	}
}

// WithStatusRange widens or narrows the acceptable status codes.
func (h *HTTPChecker) WithStatusRange(min, max int) *HTTPChecker {
	h.statusMin = min
	h.statusMax = max
	return h
}

// WithTimeout overrides the request timeout.
func (h *HTTPChecker) WithTimeout(timeout time.Duration) *HTTPChecker {
	h.client.Timeout = timeout
	return h
}

// Check performs one GET. A transport failure leaves StatusCode at
// zero; an answered request records the code and a bounded copy of the
// body whether or not the code is in range.
func (h *HTTPChecker) Check(ctx context.Context) Result {
	start := time.Now()
	fail := func(format string, args ...any) Result {
		return Result{
			Healthy:   false,
			Message:   fmt.Sprintf(format, args...),
			CheckedAt: start,
			Duration:  time.Since(start),
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url, nil)
	if err != nil {
		return fail("bad probe request: %v", err)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return fail("probe failed: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxProbeBody))

	healthy := resp.StatusCode >= h.statusMin && resp.StatusCode <= h.statusMax
	message := fmt.Sprintf("HTTP %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	if !healthy {
		message = fmt.Sprintf("%s (expected %d-%d)", message, h.statusMin, h.statusMax)
	}

	return Result{
		Healthy:    healthy,
		Message:    message,
		CheckedAt:  start,
		Duration:   time.Since(start),
		StatusCode: resp.StatusCode,
		Body:       body,
	}
}
