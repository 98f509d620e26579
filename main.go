package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/shii9/reconprobe/internal/config"
	"github.com/shii9/reconprobe/internal/ports"
	"github.com/shii9/reconprobe/internal/recon"
	"github.com/shii9/reconprobe/internal/store"
	"github.com/shii9/reconprobe/internal/utils"
	"github.com/shii9/reconprobe/internal/utils/output"
)

var version = "dev"

// Exit codes.
const (
	exitOK       = 0
	exitFailure  = 1
	exitUsage    = 2
	exitCanceled = 130
)

// usageError marks errors caused by bad invocation rather than a failed run.
type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

// cli holds the parsed command line.
type cli struct {
	flags      config.Config
	configPath string
}

func newRootCmd() *cobra.Command {
	return newCLI().command()
}

func newCLI() *cli {
	return &cli{flags: config.Default()}
}

func (c *cli) command() *cobra.Command {
	flags := &c.flags
	cmd := &cobra.Command{
		Use:   "reconprobe <target>",
		Short: "reconprobe gathers subdomains, open ports, services, WHOIS, DNS and web data for a target.",
		Long: `reconprobe is a reconnaissance orchestrator. Given a domain or IP it runs the
selected modules concurrently and writes <output>.json, <output>.txt and
<output>.log.`,
		Example: `  reconprobe example.com --scan --services --ports 22,80,443
  reconprobe example.com --subdomains --dns --whois -v
  reconprobe 192.0.2.10 --scan --ports 1-65535 --concurrency 500 --timeout 750ms`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args: func(cmd *cobra.Command, args []string) error {
			if err := cobra.ExactArgs(1)(cmd, args); err != nil {
				return usageError{err}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.resolve(cmd, args[0])
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError{err}
	})

	f := cmd.Flags()
	f.StringVar(&c.configPath, "config", "", "YAML config file; flags given on the command line win")
	f.StringVar(&flags.Ports, "ports", flags.Ports, "Ports to scan, e.g. 22,80,1000-2000")
	f.BoolVar(&flags.Subdomains, "subdomains", false, "Enumerate subdomains (crt.sh, AXFR)")
	f.BoolVar(&flags.Scan, "scan", false, "Perform TCP connect port scan")
	f.BoolVar(&flags.Services, "services", false, "Detect services on open ports (implies --scan)")
	f.BoolVar(&flags.Whois, "whois", false, "Perform WHOIS lookup")
	f.BoolVar(&flags.DNS, "dns", false, "Lookup DNS records")
	f.BoolVar(&flags.Reverse, "reverse", false, "Reverse DNS lookup")
	f.BoolVar(&flags.Crawl, "crawl", false, "Crawl the target website")
	f.BoolVar(&flags.Documents, "documents", false, "Read metadata of PDF documents found while crawling (implies --crawl)")
	f.StringVarP(&flags.Output, "output", "o", flags.Output, "Output prefix for .json, .txt and .log files")
	f.DurationVar(&flags.Timeout, "timeout", flags.Timeout, "Per-port connect timeout")
	f.IntVar(&flags.Concurrency, "concurrency", flags.Concurrency, "Concurrent port probes")
	f.IntVar(&flags.MaxPages, "max-pages", flags.MaxPages, "Maximum pages to crawl")
	f.IntVar(&flags.MaxDocs, "max-documents", flags.MaxDocs, "Maximum documents to inspect")
	f.Float64Var(&flags.RateLimit, "rate-limit", flags.RateLimit, "Crawler requests per second, 0 = unlimited")
	f.DurationVar(&flags.HTTPTimeout, "http-timeout", flags.HTTPTimeout, "Timeout for HTTP, DNS and WHOIS requests")
	f.StringVar(&flags.DNSServer, "dns-server", "", "DNS server host[:port] (default from /etc/resolv.conf)")
	f.StringSliceVar(&flags.DNSTypes, "dns-types", flags.DNSTypes, "DNS record types to query")
	f.StringVar(&flags.UserAgent, "user-agent", flags.UserAgent, "User-Agent for HTTP requests")
	f.StringVar(&flags.Database, "db", "", "Postgres DSN; when set the report is stored")
	f.BoolVarP(&flags.Verbose, "verbose", "v", false, "Verbose logging")
	return cmd
}

// flagFields maps flag names to the config fields they set.
var flagFields = map[string]func(dst *config.Config, src config.Config){
	"ports":         func(d *config.Config, s config.Config) { d.Ports = s.Ports },
	"subdomains":    func(d *config.Config, s config.Config) { d.Subdomains = s.Subdomains },
	"scan":          func(d *config.Config, s config.Config) { d.Scan = s.Scan },
	"services":      func(d *config.Config, s config.Config) { d.Services = s.Services },
	"whois":         func(d *config.Config, s config.Config) { d.Whois = s.Whois },
	"dns":           func(d *config.Config, s config.Config) { d.DNS = s.DNS },
	"reverse":       func(d *config.Config, s config.Config) { d.Reverse = s.Reverse },
	"crawl":         func(d *config.Config, s config.Config) { d.Crawl = s.Crawl },
	"documents":     func(d *config.Config, s config.Config) { d.Documents = s.Documents },
	"output":        func(d *config.Config, s config.Config) { d.Output = s.Output },
	"timeout":       func(d *config.Config, s config.Config) { d.Timeout = s.Timeout },
	"concurrency":   func(d *config.Config, s config.Config) { d.Concurrency = s.Concurrency },
	"max-pages":     func(d *config.Config, s config.Config) { d.MaxPages = s.MaxPages },
	"max-documents": func(d *config.Config, s config.Config) { d.MaxDocs = s.MaxDocs },
	"rate-limit":    func(d *config.Config, s config.Config) { d.RateLimit = s.RateLimit },
	"http-timeout":  func(d *config.Config, s config.Config) { d.HTTPTimeout = s.HTTPTimeout },
	"dns-server":    func(d *config.Config, s config.Config) { d.DNSServer = s.DNSServer },
	"dns-types":     func(d *config.Config, s config.Config) { d.DNSTypes = s.DNSTypes },
	"user-agent":    func(d *config.Config, s config.Config) { d.UserAgent = s.UserAgent },
	"db":            func(d *config.Config, s config.Config) { d.Database = s.Database },
	"verbose":       func(d *config.Config, s config.Config) { d.Verbose = s.Verbose },
}

// resolve layers explicitly set flags over the config file (or the defaults)
// and validates the result.
func (c *cli) resolve(cmd *cobra.Command, target string) (config.Config, error) {
	cfg := c.flags
	if c.configPath != "" {
		fileCfg, err := config.Load(c.configPath)
		if err != nil {
			return cfg, usageError{err}
		}
		for name, apply := range flagFields {
			if cmd.Flags().Changed(name) {
				apply(&fileCfg, c.flags)
			}
		}
		cfg = fileCfg
	}
	cfg.Target = target

	if err := cfg.Validate(); err != nil {
		return cfg, usageError{err}
	}
	if !cfg.AnyModule() {
		return cfg, usageError{errors.New("no module selected; use --scan, --services, --subdomains, --whois, --dns, --reverse, --crawl or --documents")}
	}
	if cfg.Scan || cfg.Services {
		if _, err := ports.ParseSpec(cfg.Ports); err != nil {
			return cfg, usageError{err}
		}
	}
	return cfg, nil
}

// run executes one recon and writes its outputs. A cancelled run still writes
// the partial report.
func run(ctx context.Context, cfg config.Config, stdout, stderr io.Writer) error {
	logger, err := utils.NewLogger(cfg.Output+".log", cfg.Verbose)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	rep, runErr := recon.NewRunner(cfg, logger).Run(ctx)
	if rep == nil {
		return runErr
	}

	jsonPath, textPath := cfg.Output+".json", cfg.Output+".txt"
	if err := output.WriteJSON(jsonPath, rep); err != nil {
		return errors.Join(runErr, err)
	}
	if err := output.WriteText(textPath, rep); err != nil {
		return errors.Join(runErr, err)
	}
	logger.Info("results saved", zap.String("json", jsonPath), zap.String("text", textPath))
	output.PrintSummary(stdout, rep)

	if cfg.Database != "" && runErr == nil {
		if err := persist(ctx, cfg.Database, rep, logger); err != nil {
			return err
		}
	}
	if runErr != nil {
		fmt.Fprintln(stderr, "run interrupted, partial results saved")
	}
	return runErr
}

func persist(ctx context.Context, dsn string, rep *recon.Report, logger *zap.Logger) error {
	s, err := store.Open(ctx, dsn, logger)
	if err != nil {
		return err
	}
	defer s.Close()
	_, err = s.Save(ctx, rep)
	return err
}

func exitCode(err error) int {
	var ue usageError
	var pe *ports.ParseError
	switch {
	case err == nil:
		return exitOK
	case errors.As(err, &ue), errors.As(err, &pe):
		return exitUsage
	case errors.Is(err, ports.ErrCanceled), errors.Is(err, context.Canceled):
		return exitCanceled
	default:
		return exitFailure
	}
}

func main() {
	err := newRootCmd().Execute()
	if err != nil {
		color.New(color.FgRed, color.Bold).Fprintln(os.Stderr, "error:", err)
		var ue usageError
		if errors.As(err, &ue) {
			fmt.Fprintln(os.Stderr, "run 'reconprobe --help' for usage")
		}
	}
	os.Exit(exitCode(err))
}
