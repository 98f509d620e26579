package whois

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	whois "github.com/likexian/whois"
	whoisparser "github.com/likexian/whois-parser"
	"go.uber.org/zap"
)

// Querier fetches raw WHOIS text. *whois.Client satisfies it.
type Querier interface {
	Whois(domain string, servers ...string) (string, error)
}

// Result is a WHOIS answer. Parsed is nil for IPs and for text the parser
// does not understand.
type Result struct {
	Raw    string                 `json:"raw"`
	Parsed *whoisparser.WhoisInfo `json:"parsed,omitempty"`
}

// Client performs WHOIS lookups.
type Client struct {
	querier Querier
	logger  *zap.Logger
}

// NewClient returns a client backed by likexian/whois with the given timeout.
func NewClient(timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return NewClientWith(whois.NewClient().SetTimeout(timeout), logger)
}

// NewClientWith wraps any Querier.
func NewClientWith(q Querier, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{querier: q, logger: logger.With(zap.String("component", "whois"))}
}

// Lookup queries WHOIS for target (domain or IP).
func (c *Client) Lookup(ctx context.Context, target string) (*Result, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return nil, errors.New("empty whois target")
	}

	type answer struct {
		raw string
		err error
	}
	done := make(chan answer, 1)
	go func() {
		raw, err := c.querier.Whois(target)
		done <- answer{raw, err}
	}()

	var raw string
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case a := <-done:
		if a.err != nil {
			return nil, fmt.Errorf("whois %s: %w", target, a.err)
		}
		raw = a.raw
	}

	res := &Result{Raw: strings.ReplaceAll(raw, "\r\n", "\n")}
	if net.ParseIP(target) != nil {
		return res, nil
	}
	info, err := whoisparser.Parse(res.Raw)
	if err != nil {
		c.logger.Debug("whois text not parsed", zap.String("target", target), zap.Error(err))
		return res, nil
	}
	res.Parsed = &info
	return res, nil
}
