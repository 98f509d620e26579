package dns

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	mdns "github.com/miekg/dns"
	"go.uber.org/zap"
)

// DefaultTypes are queried when the caller names none.
var DefaultTypes = []string{"A", "MX", "TXT", "NS"}

const fallbackServer = "8.8.8.8:53"

// Records maps a record type to the textual rdata of each answer.
// A type whose lookup failed maps to an empty list.
type Records map[string][]string

// Resolver sends queries straight to one DNS server.
type Resolver struct {
	server string
	client *mdns.Client
	logger *zap.Logger
}

// DefaultServer returns the first nameserver from /etc/resolv.conf, or a
// public resolver when the file is unusable.
func DefaultServer() string {
	cc, err := mdns.ClientConfigFromFile("/etc/resolv.conf")
	if err != nil || len(cc.Servers) == 0 {
		return fallbackServer
	}
	return net.JoinHostPort(cc.Servers[0], cc.Port)
}

// NewResolver creates a resolver for server ("host:port"; empty means DefaultServer).
func NewResolver(server string, timeout time.Duration, logger *zap.Logger) *Resolver {
	if server == "" {
		server = DefaultServer()
	} else if _, _, err := net.SplitHostPort(server); err != nil {
		server = net.JoinHostPort(server, "53")
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		server: server,
		client: &mdns.Client{Timeout: timeout},
		logger: logger.With(zap.String("component", "dns")),
	}
}

// LookupRecords queries each record type for domain.
func (r *Resolver) LookupRecords(ctx context.Context, domain string, types ...string) Records {
	if len(types) == 0 {
		types = DefaultTypes
	}
	results := make(Records, len(types))
	for _, t := range types {
		t = strings.ToUpper(strings.TrimSpace(t))
		values, err := r.lookup(ctx, domain, t)
		if err != nil {
			r.logger.Debug("record lookup failed",
				zap.String("domain", domain), zap.String("type", t), zap.Error(err))
			values = []string{}
		}
		results[t] = values
	}
	return results
}

// ReverseLookup returns the first PTR name for ip without the trailing dot,
// or "" when there is none.
func (r *Resolver) ReverseLookup(ctx context.Context, ip string) string {
	arpa, err := mdns.ReverseAddr(ip)
	if err != nil {
		r.logger.Debug("reverse lookup skipped", zap.String("ip", ip), zap.Error(err))
		return ""
	}
	resp, err := r.exchange(ctx, arpa, mdns.TypePTR)
	if err != nil {
		r.logger.Debug("reverse lookup failed", zap.String("ip", ip), zap.Error(err))
		return ""
	}
	for _, rr := range resp.Answer {
		if ptr, ok := rr.(*mdns.PTR); ok {
			return strings.TrimSuffix(ptr.Ptr, ".")
		}
	}
	return ""
}

func (r *Resolver) lookup(ctx context.Context, domain, typ string) ([]string, error) {
	qtype, ok := mdns.StringToType[typ]
	if !ok {
		return nil, fmt.Errorf("unknown record type %q", typ)
	}
	resp, err := r.exchange(ctx, mdns.Fqdn(domain), qtype)
	if err != nil {
		return nil, err
	}
	out := []string{}
	for _, rr := range resp.Answer {
		if rr.Header().Rrtype != qtype {
			continue
		}
		out = append(out, rdataText(rr))
	}
	return out, nil
}

func (r *Resolver) exchange(ctx context.Context, name string, qtype uint16) (*mdns.Msg, error) {
	msg := new(mdns.Msg)
	msg.SetQuestion(name, qtype)
	msg.RecursionDesired = true

	resp, _, err := r.client.ExchangeContext(ctx, msg, r.server)
	if err != nil {
		return nil, err
	}
	if resp.Truncated {
		tcp := &mdns.Client{Net: "tcp", Timeout: r.client.Timeout}
		if resp, _, err = tcp.ExchangeContext(ctx, msg, r.server); err != nil {
			return nil, err
		}
	}
	if resp.Rcode != mdns.RcodeSuccess {
		return nil, fmt.Errorf("%s %s: %s", name, mdns.TypeToString[qtype], mdns.RcodeToString[resp.Rcode])
	}
	return resp, nil
}

// rdataText drops the owner/TTL/class/type header from the presentation format.
func rdataText(rr mdns.RR) string {
	return strings.TrimSpace(strings.TrimPrefix(rr.String(), rr.Header().String()))
}
