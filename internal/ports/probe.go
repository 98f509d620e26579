package ports

import (
	"context"
	"errors"
	"io"
	"net"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// DefaultTimeout bounds each connect and banner read.
const DefaultTimeout = time.Second

const (
	bannerProbe   = "\r\n"
	bannerMaxSize = 1024
	// OpenPlaceholder is reported when a port accepts the connection but the
	// banner exchange fails.
	OpenPlaceholder = "open"
)

// State is the outcome class of a single connect probe.
type State int

const (
	Closed State = iota
	Open
	Error
)

func (s State) String() string {
	switch s {
	case Open:
		return "open"
	case Closed:
		return "closed"
	default:
		return "error"
	}
}

// Outcome is the result of probing one port.
type Outcome struct {
	Port   int
	State  State
	Banner string
	Err    error
}

// Probe attempts one TCP connection to host:port bounded by timeout and ctx.
// On success it sends a newline and reads a short banner.
func Probe(ctx context.Context, host string, port int, timeout time.Duration) Outcome {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	out := Outcome{Port: port}
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	dialer := &net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		out.State = classifyDialError(err)
		out.Err = err
		return out
	}
	defer conn.Close()

	out.State = Open
	out.Banner = grabBanner(conn, timeout)
	return out
}

func grabBanner(conn net.Conn, timeout time.Duration) string {
	_ = conn.SetDeadline(time.Now().Add(timeout))
	if _, err := conn.Write([]byte(bannerProbe)); err != nil {
		return OpenPlaceholder
	}
	buf := make([]byte, bannerMaxSize)
	n, err := conn.Read(buf)
	if n > 0 {
		return strings.TrimSpace(strings.ToValidUTF8(string(buf[:n]), ""))
	}
	if errors.Is(err, io.EOF) {
		// peer closed without sending anything
		return ""
	}
	return OpenPlaceholder
}

// classifyDialError separates "the port is not accepting" from "the probe
// could not run at all" (bad name, no route to resolver, local errors).
func classifyDialError(err error) State {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return Error
	}
	if errors.Is(err, context.Canceled) {
		return Error
	}
	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.ENETUNREACH) ||
		errors.Is(err, syscall.ECONNRESET) {
		return Closed
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return Closed
	}
	if strings.Contains(err.Error(), "refused") {
		return Closed
	}
	return Error
}
