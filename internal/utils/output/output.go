package output

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/shii9/reconprobe/internal/recon"
)

// WriteToFile writes the report in the given format ("json" or "text").
func WriteToFile(rep *recon.Report, format string, filename string) error {
	var content []byte
	var err error

	switch format {
	case "json":
		content, err = MarshalJSON(rep)
	case "text", "txt":
		content, err = MarshalText(rep)
	default:
		return fmt.Errorf("invalid format: %s", format)
	}
	if err != nil {
		return err
	}
	return WriteAtomic(filename, content)
}

// WriteJSON writes the indented JSON report to path.
func WriteJSON(path string, rep *recon.Report) error {
	return WriteToFile(rep, "json", path)
}

// WriteText writes the flat summary to path.
func WriteText(path string, rep *recon.Report) error {
	return WriteToFile(rep, "text", path)
}

// MarshalJSON renders the report as indented JSON with a trailing newline.
func MarshalJSON(rep *recon.Report) ([]byte, error) {
	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode report: %w", err)
	}
	return append(data, '\n'), nil
}

// MarshalText renders one "key: value" line per present section. Strings are
// written as is unless they span lines; everything else is compact JSON.
func MarshalText(rep *recon.Report) ([]byte, error) {
	var buf bytes.Buffer
	for _, s := range rep.Sections() {
		var value string
		switch v := s.Value.(type) {
		case string:
			value = v
			if strings.ContainsAny(v, "\r\n") {
				value = strconv.Quote(v)
			}
		default:
			data, err := json.Marshal(v)
			if err != nil {
				return nil, fmt.Errorf("encode %s: %w", s.Key, err)
			}
			value = string(data)
		}
		fmt.Fprintf(&buf, "%s: %s\n", s.Key, value)
	}
	return buf.Bytes(), nil
}

// WriteAtomic writes data to path atomically:
//   - create temp file in same directory
//   - write bytes, fsync, close
//   - rename to final path (overwrite)
//
// On failure the temp file is removed and the original file is left alone.
func WriteAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}

	tmpF, err := os.CreateTemp(dir, ".reconprobe-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmpF.Name()

	cleanup := func() {
		_ = tmpF.Close()
		_ = os.Remove(tmpPath)
	}

	if _, err := tmpF.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmpF.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmpF.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("chmod temp file: %w", err)
	}

	// rename is atomic on POSIX
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename temp -> final: %w", err)
	}
	return nil
}
