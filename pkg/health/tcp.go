package health

import (
	"context"
	"fmt"
	"net"
	"time"
)

const defaultDialTimeout = 5 * time.Second

// TCPChecker confirms something accepts connections on an address. The
// bot runtime points one at the local webhook listener so a dead TLS
// accept loop shows up in the component report.
type TCPChecker struct {
	addr    string
	timeout time.Duration
}

// NewTCPChecker builds a checker for addr ("127.0.0.1:8443").
func NewTCPChecker(addr string) *TCPChecker {
	return &TCPChecker{addr: addr, timeout: defaultDialTimeout}
}

// WithTimeout overrides the dial timeout.
func (t *TCPChecker) WithTimeout(timeout time.Duration) *TCPChecker {
	t.timeout = timeout
	return t
}

// Check dials the address once and closes the connection immediately;
// an accepted connection is the whole signal.
func (t *TCPChecker) Check(ctx context.Context) Result {
	start := time.Now()

	d := net.Dialer{Timeout: t.timeout}
	conn, err := d.DialContext(ctx, "tcp", t.addr)
	if err != nil {
		return Result{
			Healthy:   false,
			Message:   fmt.Sprintf("dial %s: %v", t.addr, err),
			CheckedAt: start,
			Duration:  time.Since(start),
		}
	}
	_ = conn.Close()

	return Result{
		Healthy:   true,
		Message:   t.addr + " accepting connections",
		CheckedAt: start,
		Duration:  time.Since(start),
	}
}
