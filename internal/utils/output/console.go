package output

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/shii9/reconprobe/internal/ports"
	"github.com/shii9/reconprobe/internal/recon"
)

const maxBannerWidth = 60

// PrintSummary prints a short colored overview of the report to w.
func PrintSummary(w io.Writer, rep *recon.Report) {
	cyan := color.New(color.FgCyan, color.Bold)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	red := color.New(color.FgRed, color.Bold)

	cyan.Fprintf(w, "\nRecon report for %s\n", rep.Target)

	if rep.Subdomains != nil {
		green.Fprintf(w, "  Subdomains: %d\n", len(rep.Subdomains))
		for _, s := range rep.Subdomains {
			fmt.Fprintf(w, "    %s\n", s)
		}
	}

	if rep.Ports != nil {
		green.Fprintf(w, "  Open ports: %d", len(rep.Ports))
		if st := rep.ScanStats; st != nil {
			fmt.Fprintf(w, " (probed %d, closed %d, errored %d)", st.Probed, st.Closed, st.Errored)
			if st.Unresolved {
				yellow.Fprint(w, " target did not resolve")
			}
		}
		fmt.Fprintln(w)
		if len(rep.Ports) > 0 {
			printPortTable(w, rep.Ports, rep.Services)
		}
	}

	if rep.Whois != nil {
		registrar := "-"
		if p := rep.Whois.Parsed; p != nil && p.Registrar != nil && p.Registrar.Name != "" {
			registrar = p.Registrar.Name
		}
		green.Fprintf(w, "  WHOIS: %d bytes, registrar %s\n", len(rep.Whois.Raw), registrar)
	}

	if rep.DNS != nil {
		types := make([]string, 0, len(rep.DNS))
		for t := range rep.DNS {
			types = append(types, t)
		}
		sort.Strings(types)
		green.Fprintln(w, "  DNS records:")
		for _, t := range types {
			fmt.Fprintf(w, "    %-5s %s\n", t, strings.Join(rep.DNS[t], ", "))
		}
	}

	if m := rep.Mail; m != nil {
		green.Fprintf(w, "  Mail: MX %s\n", strings.Join(m.MX, ", "))
		if len(m.Providers) > 0 {
			fmt.Fprintf(w, "    provider: %s\n", strings.Join(m.Providers, ", "))
		}
		if m.SPF != nil {
			fmt.Fprintf(w, "    spf: %s\n", m.SPF.Raw)
		} else {
			yellow.Fprintln(w, "    spf: missing")
		}
		if p := m.DMARCPolicy(); p != "" {
			fmt.Fprintf(w, "    dmarc: p=%s\n", p)
		} else {
			yellow.Fprintln(w, "    dmarc: missing")
		}
	}

	if rep.Reverse != nil {
		name := *rep.Reverse
		if name == "" {
			name = "-"
		}
		green.Fprintf(w, "  Reverse: %s\n", name)
	}

	if rep.Crawl != nil {
		green.Fprintf(w, "  Crawl: %d pages, %d documents\n", len(rep.Crawl.Pages), len(rep.Crawl.Documents))
		for _, p := range rep.Crawl.Pages {
			fmt.Fprintf(w, "    %s  %s\n", p.URL, p.Title)
		}
	}

	if rep.Documents != nil {
		green.Fprintf(w, "  Documents: %d\n", len(rep.Documents))
		for _, d := range rep.Documents {
			if d.Error != "" {
				yellow.Fprintf(w, "    %s  error: %s\n", d.URL, d.Error)
				continue
			}
			fmt.Fprintf(w, "    %s  author=%q producer=%q pages=%d\n", d.URL, d.Author, d.Producer, d.Pages)
		}
	}

	if len(rep.Errors) > 0 {
		red.Fprintf(w, "  Errors: %d\n", len(rep.Errors))
		for _, e := range rep.Errors {
			fmt.Fprintf(w, "    %s\n", e)
		}
	}
}

func printPortTable(w io.Writer, report ports.ScanReport, services ports.ServiceMap) {
	nums := make([]int, 0, len(report))
	for p := range report {
		nums = append(nums, p)
	}
	sort.Ints(nums)

	tw := tabwriter.NewWriter(w, 0, 2, 2, ' ', 0)
	fmt.Fprintln(tw, "    PORT\tSERVICE\tBANNER")
	for _, p := range nums {
		svc := services[p]
		if svc == "" {
			svc = ports.WellKnownService(p)
		}
		fmt.Fprintf(tw, "    %d/tcp\t%s\t%s\n", p, svc, shorten(report[p]))
	}
	_ = tw.Flush()
}

// shorten keeps the first line of a banner, cut to maxBannerWidth runes.
func shorten(banner string) string {
	if i := strings.IndexAny(banner, "\r\n"); i >= 0 {
		banner = banner[:i]
	}
	r := []rune(banner)
	if len(r) > maxBannerWidth {
		return string(r[:maxBannerWidth-3]) + "..."
	}
	return banner
}
