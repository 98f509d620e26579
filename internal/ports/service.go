package ports

import "strings"

// ServiceMap maps each open port to a service name.
type ServiceMap map[int]string

// UnknownService is reported for ports with neither a table entry nor a keyword hit.
const UnknownService = "unknown"

var serviceTable = map[int]string{
	21:  "ftp",
	22:  "ssh",
	23:  "telnet",
	25:  "smtp",
	53:  "dns",
	80:  "http",
	443: "https",
}

// Checked in order; the first keyword found in the lowercased banner wins.
var bannerKeywords = []struct {
	Substr  string
	Service string
}{
	{"http", "http"},
	{"ssh", "ssh"},
	{"smtp", "smtp"},
}

// WellKnownService returns the table entry for port, or UnknownService.
func WellKnownService(port int) string {
	if s, ok := serviceTable[port]; ok {
		return s
	}
	return UnknownService
}

// Classify guesses a service for every port in report. A keyword in the
// banner overrides the port table.
func Classify(report ScanReport) ServiceMap {
	out := make(ServiceMap, len(report))
	for port, banner := range report {
		out[port] = classifyOne(port, banner)
	}
	return out
}

func classifyOne(port int, banner string) string {
	lb := strings.ToLower(banner)
	for _, k := range bannerKeywords {
		if strings.Contains(lb, k.Substr) {
			return k.Service
		}
	}
	return WellKnownService(port)
}
