package output

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"

	"github.com/shii9/reconprobe/internal/ports"
	"github.com/shii9/reconprobe/internal/recon"
	urlcollector "github.com/shii9/reconprobe/internal/urls"
	"github.com/shii9/reconprobe/internal/whois"
)

func sampleReport() *recon.Report {
	reverse := "host.example.com"
	return &recon.Report{
		Target:     "example.com",
		Subdomains: []string{"api.example.com", "www.example.com"},
		Ports:      ports.ScanReport{22: "SSH-2.0-OpenSSH_9.6", 80: "open"},
		Services:   ports.ServiceMap{22: "ssh", 80: "http"},
		ScanStats:  &ports.ScanStats{Probed: 3, Open: 2, Closed: 1},
		Whois:      &whois.Result{Raw: "Domain Name: EXAMPLE.COM\nRegistrar: IANA\n"},
		Reverse:    &reverse,
		Crawl:      &urlcollector.Result{Pages: []urlcollector.Page{{URL: "http://example.com/", Title: "Example"}}},
		Errors:     []string{"dns: timeout"},
	}
}

func TestMarshalText(t *testing.T) {
	data, err := MarshalText(sampleReport())
	if err != nil {
		t.Fatalf("MarshalText: %v", err)
	}
	want := strings.Join([]string{
		`subdomains: ["api.example.com","www.example.com"]`,
		`ports: {"22":"SSH-2.0-OpenSSH_9.6","80":"open"}`,
		`services: {"22":"ssh","80":"http"}`,
		`scan_stats: {"probed":3,"open":2,"closed":1,"errored":0}`,
		`whois: "Domain Name: EXAMPLE.COM\nRegistrar: IANA\n"`,
		`reverse: host.example.com`,
		`crawl: {"pages":[{"url":"http://example.com/","title":"Example"}]}`,
		`errors: ["dns: timeout"]`,
	}, "\n") + "\n"
	if string(data) != want {
		t.Fatalf("text summary mismatch\ngot:\n%s\nwant:\n%s", data, want)
	}
}

func TestWriteJSONAndText(t *testing.T) {
	dir := t.TempDir()
	prefix := filepath.Join(dir, "nested", "output")
	rep := sampleReport()

	if err := WriteJSON(prefix+".json", rep); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	if err := WriteText(prefix+".txt", rep); err != nil {
		t.Fatalf("WriteText: %v", err)
	}

	raw, err := os.ReadFile(prefix + ".json")
	if err != nil {
		t.Fatalf("read json: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("json output invalid: %v", err)
	}
	if decoded["target"] != "example.com" {
		t.Fatalf("target = %v", decoded["target"])
	}
	if _, ok := decoded["dns"]; ok {
		t.Fatalf("dns did not run and should be absent")
	}

	txt, err := os.ReadFile(prefix + ".txt")
	if err != nil {
		t.Fatalf("read text: %v", err)
	}
	if !strings.HasPrefix(string(txt), "subdomains: ") {
		t.Fatalf("text output = %q", txt)
	}
	if err := WriteToFile(rep, "xml", prefix+".xml"); err == nil {
		t.Fatalf("expected error for unknown format")
	}
}

func TestWriteAtomic_OverwriteAndPreserve(t *testing.T) {
	dir := t.TempDir()
	final := filepath.Join(dir, "out.txt")

	if err := os.WriteFile(final, []byte("original"), 0o644); err != nil {
		t.Fatalf("setup write original: %v", err)
	}
	if err := WriteAtomic(final, []byte("newcontent")); err != nil {
		t.Fatalf("WriteAtomic failed: %v", err)
	}
	got, err := os.ReadFile(final)
	if err != nil {
		t.Fatalf("read final: %v", err)
	}
	if string(got) != "newcontent" {
		t.Fatalf("content mismatch: %q", string(got))
	}
}

func TestWriteAtomic_FailPreserveOriginal(t *testing.T) {
	dir := t.TempDir()
	// the destination is a non-empty directory, so the final rename fails
	final := filepath.Join(dir, "out.json")
	if err := os.Mkdir(final, 0o755); err != nil {
		t.Fatalf("setup mkdir: %v", err)
	}
	keep := filepath.Join(final, "keep")
	if err := os.WriteFile(keep, []byte("original"), 0o644); err != nil {
		t.Fatalf("setup write original: %v", err)
	}

	if err := WriteAtomic(final, []byte("should-not-write")); err == nil {
		t.Fatalf("expected WriteAtomic to fail")
	}

	got, err := os.ReadFile(keep)
	if err != nil || string(got) != "original" {
		t.Fatalf("original content changed: %q, %v", got, err)
	}
	leftovers, _ := filepath.Glob(filepath.Join(dir, ".reconprobe-*.tmp"))
	if len(leftovers) != 0 {
		t.Fatalf("temp files left behind: %v", leftovers)
	}
}

func TestPrintSummary(t *testing.T) {
	color.NoColor = true
	var buf bytes.Buffer
	PrintSummary(&buf, sampleReport())
	out := buf.String()

	for _, want := range []string{
		"Recon report for example.com",
		"Open ports: 2 (probed 3, closed 1, errored 0)",
		"22/tcp",
		"SSH-2.0-OpenSSH_9.6",
		"Reverse: host.example.com",
		"Crawl: 1 pages, 0 documents",
		"Errors: 1",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q\n%s", want, out)
		}
	}
	if strings.Index(out, "22/tcp") > strings.Index(out, "80/tcp") {
		t.Errorf("ports not sorted:\n%s", out)
	}
}

func TestShorten(t *testing.T) {
	long := strings.Repeat("x", 100)
	if got := shorten(long); len(got) != maxBannerWidth || !strings.HasSuffix(got, "...") {
		t.Fatalf("shorten(long) = %q", got)
	}
	if got := shorten("220 mail ESMTP\r\n250 ok"); got != "220 mail ESMTP" {
		t.Fatalf("shorten multi-line = %q", got)
	}
}
