package subdomain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	mdns "github.com/miekg/dns"
	"go.uber.org/zap"
)

// Options configures an Enumerator.
type Options struct {
	CrtShURL    string
	Timeout     time.Duration
	UserAgent   string
	DisableAXFR bool
}

// Enumerator discovers subdomains from certificate transparency and zone transfers.
type Enumerator struct {
	opts     Options
	client   *http.Client
	logger   *zap.Logger
	lookupNS func(ctx context.Context, domain string) ([]string, error)
}

// NewEnumerator creates an enumerator; crt.sh and a 10s timeout are the defaults.
func NewEnumerator(opts Options, logger *zap.Logger) *Enumerator {
	if opts.CrtShURL == "" {
		opts.CrtShURL = "https://crt.sh"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Enumerator{
		opts:     opts,
		client:   &http.Client{Timeout: opts.Timeout},
		logger:   logger.With(zap.String("component", "subdomain")),
		lookupNS: lookupNS,
	}
}

// Enumerate returns the sorted, unique subdomains of domain. Source failures
// are joined into the returned error; names found by other sources are still
// returned.
func (e *Enumerator) Enumerate(ctx context.Context, domain string) ([]string, error) {
	domain = strings.ToLower(strings.TrimSuffix(strings.TrimSpace(domain), "."))
	if domain == "" {
		return nil, errors.New("empty domain")
	}

	var all []string
	var errs []error

	subs, err := e.fromCrtSh(ctx, domain)
	if err != nil {
		e.logger.Warn("crt.sh lookup failed", zap.String("domain", domain), zap.Error(err))
		errs = append(errs, err)
	}
	all = append(all, subs...)

	if !e.opts.DisableAXFR {
		subs, err = e.zoneTransfer(ctx, domain)
		if err != nil {
			// most servers refuse AXFR; not worth a warning
			e.logger.Debug("zone transfer yielded nothing", zap.String("domain", domain), zap.Error(err))
		}
		all = append(all, subs...)
	}

	if ctx.Err() != nil {
		errs = append(errs, ctx.Err())
	}
	return unique(domain, all), errors.Join(errs...)
}

type crtShEntry struct {
	NameValue string `json:"name_value"`
}

func (e *Enumerator) fromCrtSh(ctx context.Context, domain string) ([]string, error) {
	u := fmt.Sprintf("%s/?q=%%25.%s&output=json", strings.TrimRight(e.opts.CrtShURL, "/"), url.QueryEscape(domain))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	if e.opts.UserAgent != "" {
		req.Header.Set("User-Agent", e.opts.UserAgent)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("crt.sh request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("crt.sh returned status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("crt.sh read failed: %w", err)
	}

	var entries []crtShEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("crt.sh decode failed: %w", err)
	}
	results := []string{}
	for _, entry := range entries {
		results = append(results, strings.Split(entry.NameValue, "\n")...)
	}
	return results, nil
}

// zoneTransfer tries AXFR against the NS records for domain.
func (e *Enumerator) zoneTransfer(ctx context.Context, domain string) ([]string, error) {
	servers, err := e.lookupNS(ctx, domain)
	if err != nil {
		return nil, fmt.Errorf("lookup NS failed: %w", err)
	}

	msg := new(mdns.Msg)
	msg.SetAxfr(mdns.Fqdn(domain))

	var found []string
	for _, ns := range servers {
		if ctx.Err() != nil {
			break
		}
		addr := ns
		if _, _, err := net.SplitHostPort(addr); err != nil {
			addr = net.JoinHostPort(strings.TrimSuffix(addr, "."), "53")
		}
		tr := &mdns.Transfer{DialTimeout: e.opts.Timeout, ReadTimeout: e.opts.Timeout}
		ch, err := tr.In(msg, addr)
		if err != nil {
			continue
		}
		for env := range ch {
			if env.Error != nil {
				continue
			}
			for _, rr := range env.RR {
				found = append(found, rr.Header().Name)
			}
		}
		if len(found) > 0 {
			break
		}
	}
	if len(found) == 0 {
		return nil, errors.New("zone transfer not allowed or returned no useful data")
	}
	return found, nil
}

func lookupNS(ctx context.Context, domain string) ([]string, error) {
	records, err := net.DefaultResolver.LookupNS(ctx, domain)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(records))
	for _, ns := range records {
		out = append(out, ns.Host)
	}
	return out, nil
}

// unique normalizes names and keeps those inside domain.
func unique(domain string, names []string) []string {
	seen := make(map[string]struct{})
	out := []string{}
	for _, name := range names {
		name = strings.ToLower(strings.TrimSpace(name))
		name = strings.TrimSuffix(strings.TrimPrefix(name, "*."), ".")
		if name == "" {
			continue
		}
		if name != domain && !strings.HasSuffix(name, "."+domain) {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
