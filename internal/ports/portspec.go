package ports

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// DefaultSpec is scanned when no port specification is given.
const DefaultSpec = "1-1024"

const (
	minPort = 1
	maxPort = 65535
)

// PortSet is an ordered sequence of distinct ports in [1, 65535].
type PortSet []int

// ParseError reports a malformed token in a port specification.
type ParseError struct {
	Token  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid port spec token %q: %s", e.Token, e.Reason)
}

// ParseSpec parses a port specification and returns the deduplicated set of ports.
// Supported forms:
//   - single: "22"
//   - list: "22,80,443"
//   - range: "1-1024"
//   - mixed: "22,80,8000-8100"
//
// Ports keep first-seen order, ascending within a range.
func ParseSpec(spec string) (PortSet, error) {
	seen := make(map[int]struct{})
	out := PortSet{}
	add := func(p int) {
		if _, ok := seen[p]; ok {
			return
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}

	for _, raw := range strings.Split(spec, ",") {
		tok := strings.TrimSpace(raw)
		if tok == "" {
			return nil, &ParseError{Token: raw, Reason: "empty token"}
		}
		if !strings.Contains(tok, "-") {
			p, err := parsePort(tok)
			if err != nil {
				return nil, &ParseError{Token: tok, Reason: err.Error()}
			}
			add(p)
			continue
		}

		bounds := strings.SplitN(tok, "-", 2)
		start, err := parsePort(strings.TrimSpace(bounds[0]))
		if err != nil {
			return nil, &ParseError{Token: tok, Reason: "range start: " + err.Error()}
		}
		end, err := parsePort(strings.TrimSpace(bounds[1]))
		if err != nil {
			return nil, &ParseError{Token: tok, Reason: "range end: " + err.Error()}
		}
		if start > end {
			return nil, &ParseError{Token: tok, Reason: "range start greater than end"}
		}
		for p := start; p <= end; p++ {
			add(p)
		}
	}
	return out, nil
}

// parsePort accepts decimal digits only, so signs and blanks are rejected.
func parsePort(tok string) (int, error) {
	if tok == "" {
		return 0, errors.New("missing port number")
	}
	for _, r := range tok {
		if r < '0' || r > '9' {
			return 0, errors.New("not an integer")
		}
	}
	p, err := strconv.Atoi(tok)
	if err != nil || p < minPort || p > maxPort {
		return 0, errors.New("port numbers must be in 1..65535")
	}
	return p, nil
}

// String renders the set as a spec that parses back to the same set.
// Ascending runs of consecutive ports collapse into ranges.
func (s PortSet) String() string {
	var b strings.Builder
	for i := 0; i < len(s); {
		j := i
		for j+1 < len(s) && s[j+1] == s[j]+1 {
			j++
		}
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(s[i]))
		if j > i {
			b.WriteByte('-')
			b.WriteString(strconv.Itoa(s[j]))
		}
		i = j + 1
	}
	return b.String()
}
