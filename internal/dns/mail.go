package dns

import (
	"context"
	"sort"
	"strings"

	mdns "github.com/miekg/dns"
	"go.uber.org/zap"
)

// MailPolicy summarizes the mail setup a domain publishes in DNS.
type MailPolicy struct {
	MX        []string          `json:"mx"`
	SPF       *SPF              `json:"spf,omitempty"`
	DMARC     string            `json:"dmarc,omitempty"`
	DMARCTags map[string]string `json:"dmarc_tags,omitempty"`
	Providers []string          `json:"providers,omitempty"`
}

// SPF holds the mechanisms of a v=spf1 record.
type SPF struct {
	Raw      string   `json:"raw"`
	Includes []string `json:"includes,omitempty"`
	IP4      []string `json:"ip4,omitempty"`
	IP6      []string `json:"ip6,omitempty"`
	All      string   `json:"all,omitempty"`
}

// DMARCPolicy returns the p= tag, or "" when no DMARC record exists.
func (m MailPolicy) DMARCPolicy() string {
	return m.DMARCTags["p"]
}

var mxProviders = []struct{ suffix, name string }{
	{"google.com", "Google Workspace"},
	{"googlemail.com", "Google Workspace"},
	{"outlook.com", "Microsoft 365"},
	{"pphosted.com", "Proofpoint"},
	{"mimecast.com", "Mimecast"},
	{"zoho.com", "Zoho"},
	{"protonmail.ch", "Proton"},
	{"amazonaws.com", "Amazon SES"},
}

// LookupMail fetches MX hosts, the SPF record and the DMARC record of domain.
// Missing records leave the matching fields empty.
func (r *Resolver) LookupMail(ctx context.Context, domain string) MailPolicy {
	domain = strings.TrimSuffix(strings.TrimSpace(domain), ".")
	policy := MailPolicy{MX: []string{}}

	if resp, err := r.exchange(ctx, mdns.Fqdn(domain), mdns.TypeMX); err == nil {
		var mxs []*mdns.MX
		for _, rr := range resp.Answer {
			if mx, ok := rr.(*mdns.MX); ok {
				mxs = append(mxs, mx)
			}
		}
		sort.SliceStable(mxs, func(i, j int) bool { return mxs[i].Preference < mxs[j].Preference })
		for _, mx := range mxs {
			policy.MX = append(policy.MX, strings.ToLower(strings.TrimSuffix(mx.Mx, ".")))
		}
	} else {
		r.logger.Debug("mx lookup failed", zap.String("domain", domain), zap.Error(err))
	}
	policy.Providers = inferProviders(policy.MX)

	if spf := r.txtWithPrefix(ctx, domain, "v=spf1"); spf != "" {
		parsed := parseSPF(spf)
		policy.SPF = &parsed
	}
	if dmarc := r.txtWithPrefix(ctx, "_dmarc."+domain, "v=DMARC1"); dmarc != "" {
		policy.DMARC = dmarc
		policy.DMARCTags = parseTagList(dmarc)
	}
	return policy
}

// txtWithPrefix returns the first TXT record of name starting with prefix,
// with its character strings joined.
func (r *Resolver) txtWithPrefix(ctx context.Context, name, prefix string) string {
	resp, err := r.exchange(ctx, mdns.Fqdn(name), mdns.TypeTXT)
	if err != nil {
		r.logger.Debug("txt lookup failed", zap.String("name", name), zap.Error(err))
		return ""
	}
	for _, rr := range resp.Answer {
		txt, ok := rr.(*mdns.TXT)
		if !ok {
			continue
		}
		value := strings.TrimSpace(strings.Join(txt.Txt, ""))
		if strings.HasPrefix(strings.ToLower(value), strings.ToLower(prefix)) {
			return value
		}
	}
	return ""
}

// parseSPF extracts include/ip4/ip6/all directives.
func parseSPF(spf string) SPF {
	out := SPF{Raw: spf}
	for _, p := range strings.Fields(spf) {
		switch {
		case strings.HasPrefix(p, "include:"):
			out.Includes = appendUnique(out.Includes, strings.TrimPrefix(p, "include:"))
		case strings.HasPrefix(p, "ip4:"):
			out.IP4 = appendUnique(out.IP4, strings.TrimPrefix(p, "ip4:"))
		case strings.HasPrefix(p, "ip6:"):
			out.IP6 = appendUnique(out.IP6, strings.TrimPrefix(p, "ip6:"))
		case p == "-all" || p == "~all" || p == "?all" || p == "+all" || p == "all":
			out.All = p
		}
	}
	return out
}

// parseTagList parses "k=v; k2=v2" lists; keys are lowercased.
func parseTagList(s string) map[string]string {
	out := map[string]string{}
	for _, p := range strings.Split(s, ";") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		k, v, found := strings.Cut(p, "=")
		k = strings.ToLower(strings.TrimSpace(k))
		if !found {
			out[k] = ""
			continue
		}
		out[k] = strings.TrimSpace(v)
	}
	return out
}

func inferProviders(mxs []string) []string {
	var out []string
	for _, mx := range mxs {
		for _, p := range mxProviders {
			if mx == p.suffix || strings.HasSuffix(mx, "."+p.suffix) {
				out = appendUnique(out, p.name)
			}
		}
	}
	return out
}

func appendUnique(list []string, v string) []string {
	if v == "" {
		return list
	}
	for _, s := range list {
		if s == v {
			return list
		}
	}
	return append(list, v)
}
