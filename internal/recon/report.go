package recon

import (
	"time"

	"github.com/shii9/reconprobe/internal/dns"
	"github.com/shii9/reconprobe/internal/metadata"
	"github.com/shii9/reconprobe/internal/ports"
	urlcollector "github.com/shii9/reconprobe/internal/urls"
	"github.com/shii9/reconprobe/internal/whois"
)

// Report is the merged result of one run. Sections of modules that did not
// run are nil and left out of the JSON; a module that ran and found nothing
// still shows up empty.
type Report struct {
	Target     string               `json:"target"`
	Subdomains []string             `json:"subdomains,omitzero"`
	Ports      ports.ScanReport     `json:"ports,omitzero"`
	Services   ports.ServiceMap     `json:"services,omitzero"`
	ScanStats  *ports.ScanStats     `json:"scan_stats,omitempty"`
	Whois      *whois.Result        `json:"whois,omitempty"`
	DNS        dns.Records          `json:"dns,omitzero"`
	Mail       *dns.MailPolicy      `json:"mail,omitempty"`
	Reverse    *string              `json:"reverse,omitempty"`
	Crawl      *urlcollector.Result `json:"crawl,omitempty"`
	Documents  []metadata.Document  `json:"documents,omitzero"`
	Errors     []string             `json:"errors,omitempty"`
	StartedAt  time.Time            `json:"started_at"`
	FinishedAt time.Time            `json:"finished_at"`
}

// Section is one top level entry of a report.
type Section struct {
	Key   string
	Value any
}

// Sections lists the present sections in a fixed order, for flat summaries.
func (r *Report) Sections() []Section {
	var out []Section
	add := func(key string, present bool, v any) {
		if present {
			out = append(out, Section{Key: key, Value: v})
		}
	}
	add("subdomains", r.Subdomains != nil, r.Subdomains)
	add("ports", r.Ports != nil, r.Ports)
	add("services", r.Services != nil, r.Services)
	add("scan_stats", r.ScanStats != nil, r.ScanStats)
	if r.Whois != nil {
		add("whois", true, r.Whois.Raw)
	}
	add("dns", r.DNS != nil, r.DNS)
	add("mail", r.Mail != nil, r.Mail)
	if r.Reverse != nil {
		add("reverse", true, *r.Reverse)
	}
	add("crawl", r.Crawl != nil, r.Crawl)
	add("documents", r.Documents != nil, r.Documents)
	add("errors", len(r.Errors) > 0, r.Errors)
	return out
}
