package recon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/shii9/reconprobe/internal/config"
	"github.com/shii9/reconprobe/internal/dns"
	"github.com/shii9/reconprobe/internal/metadata"
	"github.com/shii9/reconprobe/internal/ports"
	"github.com/shii9/reconprobe/internal/subdomain"
	urlcollector "github.com/shii9/reconprobe/internal/urls"
	"github.com/shii9/reconprobe/internal/whois"
)

// Runner executes the enabled modules for one target. Run must not be called
// concurrently on the same Runner.
type Runner struct {
	cfg    config.Config
	logger *zap.Logger

	scanner    *ports.Scanner
	enumerator *subdomain.Enumerator
	whois      *whois.Client
	resolver   *dns.Resolver
	crawler    *urlcollector.Crawler
	extractor  *metadata.Extractor

	mu     sync.Mutex
	report *Report
}

// NewRunner wires every module from cfg.
func NewRunner(cfg config.Config, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	server := cfg.DNSServer
	if server == "" {
		server = dns.DefaultServer()
	}
	return &Runner{
		cfg:     cfg,
		logger:  logger,
		scanner: ports.NewScanner(cfg.Timeout, cfg.Concurrency, logger),
		enumerator: subdomain.NewEnumerator(subdomain.Options{
			CrtShURL:  cfg.CrtShURL,
			Timeout:   2 * cfg.HTTPTimeout,
			UserAgent: cfg.UserAgent,
		}, logger),
		whois:    whois.NewClient(3*cfg.HTTPTimeout, logger),
		resolver: dns.NewResolver(server, cfg.HTTPTimeout, logger),
		crawler: urlcollector.New(urlcollector.Config{
			MaxPages:  cfg.MaxPages,
			Timeout:   cfg.HTTPTimeout,
			RateLimit: cfg.RateLimit,
			UserAgent: cfg.UserAgent,
		}, logger),
		extractor: metadata.NewExtractor(metadata.Options{
			MaxDocuments: cfg.MaxDocs,
			Timeout:      4 * cfg.HTTPTimeout,
			UserAgent:    cfg.UserAgent,
		}, logger),
	}
}

// Run parses the port spec, runs the modules concurrently and returns the
// merged report. A malformed port spec fails before any network I/O. Module
// failures are recorded in Report.Errors. When ctx is cancelled the partial
// report is returned together with the cancellation error.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	cfg := r.cfg
	scan := cfg.Scan || cfg.Services

	var portSet ports.PortSet
	if scan {
		ps, err := ports.ParseSpec(cfg.Ports)
		if err != nil {
			return nil, err
		}
		portSet = ps
	}

	r.report = &Report{Target: cfg.Target, StartedAt: time.Now().UTC()}
	host := hostOf(cfg.Target)
	isIP := net.ParseIP(host) != nil

	var g errgroup.Group

	if cfg.Subdomains {
		g.Go(func() error {
			if isIP {
				r.logger.Info("subdomain enumeration skipped for IP target", zap.String("target", host))
				return nil
			}
			r.logger.Info("enumerating subdomains", zap.String("domain", host))
			subs, err := r.enumerator.Enumerate(ctx, host)
			r.update(func(rep *Report) { rep.Subdomains = subs })
			r.fail("subdomains", err)
			r.logger.Info("subdomain enumeration done", zap.Int("found", len(subs)))
			return nil
		})
	}

	if scan {
		g.Go(func() error {
			r.logger.Info("scanning ports", zap.String("target", host), zap.Stringer("ports", portSet))
			res, err := r.scanner.Scan(ctx, cfg.Target, portSet)
			stats := r.scanner.Stats()
			r.update(func(rep *Report) {
				rep.Ports = res
				rep.ScanStats = &stats
				if cfg.Services && res != nil {
					rep.Services = ports.Classify(res)
				}
			})
			if errors.Is(err, ports.ErrCanceled) {
				return err
			}
			r.fail("ports", err)
			return nil
		})
	}

	if cfg.Whois {
		g.Go(func() error {
			r.logger.Info("performing whois lookup", zap.String("target", host))
			res, err := r.whois.Lookup(ctx, host)
			r.update(func(rep *Report) { rep.Whois = res })
			r.fail("whois", err)
			return nil
		})
	}

	if cfg.DNS {
		g.Go(func() error {
			r.logger.Info("looking up dns records", zap.String("domain", host))
			records := r.resolver.LookupRecords(ctx, host, cfg.DNSTypes...)
			r.update(func(rep *Report) { rep.DNS = records })
			if isIP {
				return nil
			}
			mail := r.resolver.LookupMail(ctx, host)
			r.update(func(rep *Report) { rep.Mail = &mail })
			return nil
		})
	}

	if cfg.Reverse {
		g.Go(func() error {
			ip := host
			if !isIP {
				ip = firstAddress(r.resolver.LookupRecords(ctx, host, "A"))
			}
			var name string
			if ip != "" {
				name = r.resolver.ReverseLookup(ctx, ip)
			}
			r.logger.Info("reverse lookup done", zap.String("ip", ip), zap.String("name", name))
			r.update(func(rep *Report) { rep.Reverse = &name })
			return nil
		})
	}

	if cfg.Crawl || cfg.Documents {
		g.Go(func() error {
			r.logger.Info("crawling website", zap.String("start", urlcollector.StartURL(cfg.Target)))
			res, err := r.crawler.Crawl(ctx, cfg.Target)
			r.update(func(rep *Report) { rep.Crawl = res })
			r.fail("crawl", err)
			if !cfg.Documents || res == nil || ctx.Err() != nil {
				return nil
			}
			docs, err := r.extractor.Extract(ctx, res.Documents)
			r.update(func(rep *Report) { rep.Documents = docs })
			r.fail("documents", err)
			return nil
		})
	}

	err := g.Wait()
	if err == nil && ctx.Err() != nil {
		err = fmt.Errorf("run canceled: %w", context.Cause(ctx))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	sort.Strings(r.report.Errors)
	r.report.FinishedAt = time.Now().UTC()
	r.logger.Info("recon finished",
		zap.String("target", cfg.Target),
		zap.Duration("elapsed", r.report.FinishedAt.Sub(r.report.StartedAt)),
		zap.Int("errors", len(r.report.Errors)))
	return r.report, err
}

func (r *Runner) update(fn func(*Report)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(r.report)
}

// fail records a module error as "module: message".
func (r *Runner) fail(module string, err error) {
	if err == nil {
		return
	}
	r.logger.Warn("module failed", zap.String("module", module), zap.Error(err))
	msg := strings.ReplaceAll(err.Error(), "\n", "; ")
	r.update(func(rep *Report) {
		rep.Errors = append(rep.Errors, module+": "+msg)
	})
}

// hostOf strips scheme, path and port from a target.
func hostOf(target string) string {
	target = strings.TrimSpace(target)
	if strings.Contains(target, "://") {
		if u, err := url.Parse(target); err == nil && u.Hostname() != "" {
			return u.Hostname()
		}
	}
	if h, _, err := net.SplitHostPort(target); err == nil {
		return h
	}
	return strings.TrimSuffix(target, "/")
}

func firstAddress(records dns.Records) string {
	for _, a := range records["A"] {
		if net.ParseIP(a) != nil {
			return a
		}
	}
	return ""
}
