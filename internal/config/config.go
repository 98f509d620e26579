package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/shii9/reconprobe/internal/ports"
)

// Config holds everything a recon run needs. Zero values are filled from Default.
type Config struct {
	Target string `yaml:"target"`

	// module switches
	Subdomains bool `yaml:"subdomains"`
	Scan       bool `yaml:"scan"`
	Services   bool `yaml:"services"`
	Whois      bool `yaml:"whois"`
	DNS        bool `yaml:"dns"`
	Reverse    bool `yaml:"reverse"`
	Crawl      bool `yaml:"crawl"`
	Documents  bool `yaml:"documents"`

	Ports       string        `yaml:"ports"`
	Timeout     time.Duration `yaml:"timeout"`
	Concurrency int           `yaml:"concurrency"`

	DNSServer   string        `yaml:"dns_server"`
	DNSTypes    []string      `yaml:"dns_types"`
	CrtShURL    string        `yaml:"crtsh_url"`
	MaxPages    int           `yaml:"max_pages"`
	MaxDocs     int           `yaml:"max_documents"`
	RateLimit   float64       `yaml:"rate_limit"`
	UserAgent   string        `yaml:"user_agent"`
	HTTPTimeout time.Duration `yaml:"http_timeout"`

	Output   string `yaml:"output"`
	Database string `yaml:"database"`
	Verbose  bool   `yaml:"verbose"`
}

// Default returns the settings of a plain run.
func Default() Config {
	return Config{
		Ports:       ports.DefaultSpec,
		Timeout:     ports.DefaultTimeout,
		Concurrency: ports.DefaultConcurrency,
		DNSTypes:    []string{"A", "MX", "TXT", "NS"},
		CrtShURL:    "https://crt.sh",
		MaxPages:    5,
		MaxDocs:     5,
		RateLimit:   5,
		UserAgent:   "reconprobe/1.0",
		HTTPTimeout: 5 * time.Second,
		Output:      "output",
	}
}

// Load reads a YAML file over the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// AnyModule reports whether at least one module is switched on.
func (c Config) AnyModule() bool {
	return c.Subdomains || c.Scan || c.Services || c.Whois || c.DNS || c.Reverse || c.Crawl || c.Documents
}

// Validate checks values that would otherwise fail deep inside a module.
func (c Config) Validate() error {
	var errs []error
	if c.Target == "" {
		errs = append(errs, errors.New("target is required"))
	}
	if c.Timeout <= 0 {
		errs = append(errs, errors.New("timeout must be positive"))
	}
	if c.Concurrency <= 0 {
		errs = append(errs, errors.New("concurrency must be positive"))
	}
	if c.HTTPTimeout <= 0 {
		errs = append(errs, errors.New("http_timeout must be positive"))
	}
	if c.MaxPages <= 0 {
		errs = append(errs, errors.New("max_pages must be positive"))
	}
	if c.MaxDocs < 0 {
		errs = append(errs, errors.New("max_documents cannot be negative"))
	}
	if c.RateLimit < 0 {
		errs = append(errs, errors.New("rate_limit cannot be negative"))
	}
	if c.Output == "" {
		errs = append(errs, errors.New("output prefix is required"))
	}
	return errors.Join(errs...)
}
