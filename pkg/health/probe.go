package health

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/orenlab/pytmbot-sub000/pkg/metrics"
)

// Process exit codes for the standalone health probe, following the
// Docker HEALTHCHECK convention.
const (
	ExitHealthy   = 0
	ExitUnhealthy = 1
	ExitUnknown   = 2
)

// probeTimeout bounds the whole probe, connect included.
const probeTimeout = 5 * time.Second

// ProbeOps queries the operations endpoint of a running bot, prints a
// short per-component report to out, and returns the process exit code:
// 0 when the bot reports healthy, 1 when it reports unhealthy, 2 when
// the endpoint is unreachable or the response cannot be interpreted.
func ProbeOps(ctx context.Context, addr string, out io.Writer) int {
	if addr == "" {
		addr = metrics.DefaultOpsAddr
	}

	checker := NewHTTPChecker("http://" + addr + "/health").WithTimeout(probeTimeout)
	// 503 carries a valid unhealthy report; only classify on the body.
	checker.WithStatusRange(http.StatusOK, http.StatusServiceUnavailable)

	result := checker.Check(ctx)
	if result.StatusCode == 0 {
		fmt.Fprintf(out, "status: unknown (%s)\n", result.Message)
		return ExitUnknown
	}

	var status metrics.HealthStatus
	if err := json.Unmarshal(result.Body, &status); err != nil {
		fmt.Fprintf(out, "status: unknown (unreadable response, %s)\n", result.Message)
		return ExitUnknown
	}

	printReport(out, status)

	switch status.Status {
	case "healthy":
		return ExitHealthy
	case "unhealthy":
		return ExitUnhealthy
	default:
		return ExitUnknown
	}
}

func printReport(out io.Writer, status metrics.HealthStatus) {
	header := "status: " + status.Status
	if status.Version != "" {
		header += " (version " + status.Version
		if status.Uptime != "" {
			header += ", uptime " + status.Uptime
		}
		header += ")"
	}
	fmt.Fprintln(out, header)

	names := make([]string, 0, len(status.Components))
	for name := range status.Components {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		fmt.Fprintf(out, "  %s: %s\n", name, status.Components[name])
	}
}
