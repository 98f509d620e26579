package ports

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultConcurrency is the worker count used when none is configured.
const DefaultConcurrency = 200

// ErrCanceled is returned when a scan stops on a caller signal. The report
// returned alongside it holds the probes that completed before the stop.
var ErrCanceled = errors.New("scan canceled")

// ScanReport maps each open port to its banner. Closed and failed ports are absent.
type ScanReport map[int]string

// ScanStats counts probe outcomes of one scan.
type ScanStats struct {
	Probed  int `json:"probed"`
	Open    int `json:"open"`
	Closed  int `json:"closed"`
	Errored int `json:"errored"`
	// Unresolved is set when the target name did not resolve and no probe ran.
	Unresolved bool `json:"unresolved,omitempty"`
}

// ProbeFunc probes a single port. Probe is used unless a test swaps it.
type ProbeFunc func(ctx context.Context, host string, port int, timeout time.Duration) Outcome

// Scanner runs connect probes across a port set with bounded concurrency.
type Scanner struct {
	timeout     time.Duration
	concurrency int
	logger      *zap.Logger
	probe       ProbeFunc
	resolve     func(ctx context.Context, host string) ([]string, error)

	mu    sync.Mutex
	stats ScanStats
}

// NewScanner creates a scanner. Non-positive values fall back to the defaults.
func NewScanner(timeout time.Duration, concurrency int, logger *zap.Logger) *Scanner {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scanner{
		timeout:     timeout,
		concurrency: concurrency,
		logger:      logger.With(zap.String("component", "portscan")),
		probe:       Probe,
		resolve:     net.DefaultResolver.LookupHost,
	}
}

// Scan probes every port of target and returns the open ones with their banners.
func Scan(ctx context.Context, target string, ports PortSet, timeout time.Duration, concurrency int) (ScanReport, error) {
	return NewScanner(timeout, concurrency, nil).Scan(ctx, target, ports)
}

// Stats returns the counters of the most recent Scan.
func (s *Scanner) Stats() ScanStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Scan probes ports on target. Per-port failures never abort the scan; only
// cancellation of ctx is reported, as ErrCanceled with the partial report.
func (s *Scanner) Scan(ctx context.Context, target string, ports PortSet) (ScanReport, error) {
	report := ScanReport{}
	s.setStats(ScanStats{})

	host := normalizeTargetHost(target)
	if host == "" {
		return nil, fmt.Errorf("empty target")
	}
	if len(ports) == 0 {
		return report, nil
	}

	addr, err := s.resolveOnce(ctx, host)
	if err != nil {
		if ctx.Err() != nil {
			return report, fmt.Errorf("%w: %w", ErrCanceled, context.Cause(ctx))
		}
		s.logger.Warn("target did not resolve, no ports probed",
			zap.String("target", host), zap.Error(err))
		s.setStats(ScanStats{Unresolved: true})
		return report, nil
	}

	workers := s.concurrency
	if workers > len(ports) {
		workers = len(ports)
	}

	start := time.Now()
	jobs := make(chan int)
	var (
		mu    sync.Mutex
		stats ScanStats
		wg    sync.WaitGroup
	)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for p := range jobs {
				res := s.probe(ctx, addr, p, s.timeout)
				mu.Lock()
				stats.Probed++
				switch res.State {
				case Open:
					stats.Open++
					report[p] = res.Banner
				case Closed:
					stats.Closed++
				default:
					stats.Errored++
				}
				mu.Unlock()
				if res.State == Error {
					s.logger.Debug("probe failed", zap.Int("port", p), zap.Error(res.Err))
				}
			}
		}()
	}

	// dispatcher: stop handing out ports once ctx is done
dispatch:
	for _, p := range ports {
		select {
		case <-ctx.Done():
			break dispatch
		case jobs <- p:
		}
	}
	close(jobs)
	wg.Wait()

	s.setStats(stats)
	s.logger.Debug("port scan complete",
		zap.String("target", host),
		zap.String("addr", addr),
		zap.Int("probed", stats.Probed),
		zap.Int("open", stats.Open),
		zap.Int("closed", stats.Closed),
		zap.Int("errored", stats.Errored),
		zap.Duration("duration", time.Since(start)),
	)

	if ctx.Err() != nil {
		// probes interrupted by the cancel count as errored and are not in report
		return report, fmt.Errorf("%w: %w", ErrCanceled, context.Cause(ctx))
	}
	return report, nil
}

func (s *Scanner) setStats(st ScanStats) {
	s.mu.Lock()
	s.stats = st
	s.mu.Unlock()
}

// resolveOnce turns a host name into one address so workers do not each
// query the resolver. IP literals pass through untouched.
func (s *Scanner) resolveOnce(ctx context.Context, host string) (string, error) {
	if ip := net.ParseIP(host); ip != nil {
		return host, nil
	}
	addrs, err := s.resolve(ctx, host)
	if err != nil {
		return "", err
	}
	for _, a := range addrs {
		if ip := net.ParseIP(a); ip != nil && ip.To4() != nil {
			return a, nil
		}
	}
	if len(addrs) == 0 {
		return "", fmt.Errorf("no addresses for %s", host)
	}
	return addrs[0], nil
}

// normalizeTargetHost strips scheme or port if present and returns host/ip only.
func normalizeTargetHost(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return raw
	}
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		if u, err := url.Parse(raw); err == nil {
			if h := u.Hostname(); h != "" {
				return h
			}
		}
	}
	if host, _, err := net.SplitHostPort(raw); err == nil {
		return host
	}
	return strings.Trim(raw, "[]")
}
