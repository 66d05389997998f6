package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/aluiziolira/go-xray/config"
)

// flags holds the raw command line values. Only flags the user set override
// the config file and environment.
type flags struct {
	configFile  string
	definition  string
	selector    string
	concurrency int
	throttleN   int
	throttlePer time.Duration
	delayMin    time.Duration
	delayMax    time.Duration
	timeout     time.Duration
	jobLimit    int
	paginate    string
	limit       int
	output      string
	format      string
	metricsAddr string
	userAgent   string
	parallelism int
	verbose     bool
}

// NewRootCmd creates the xray command.
func NewRootCmd() *cobra.Command {
	return newRootCmd(&flags{})
}

func newRootCmd(f *flags) *cobra.Command {
	defaults := envConfig(config.DefaultConfig())

	cmd := &cobra.Command{
		Use:   "xray <source> [scope]",
		Short: "Extract structured data from web pages",
		Long: `xray fetches a page, or reads markup, and extracts the values described by a
selector definition into JSON.

The source is a URL, a path to an HTML file, or "-" for standard input. The
optional scope narrows extraction to the elements it matches; a scope with
an attribute, such as "a@href", is followed as a link first.

Examples:
  # Titles of every article
  xray https://example.com/blog -s '[".post h2 | trim"]'

  # A definition file, following the next link for up to 5 pages
  xray https://example.com/blog .post -d post.yaml --paginate '.next@href' --limit 5

Definition file example:
  title: h2 | trim
  link: a@href
  tags:
    - .tag`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, args, f)
		},
	}

	fs := cmd.Flags()
	fs.StringVarP(&f.configFile, "config", "c", "", "YAML config file")
	fs.StringVarP(&f.definition, "definition", "d", "", "YAML selector definition file")
	fs.StringVarP(&f.selector, "selector", "s", "", "Selector definition given inline as YAML")
	fs.IntVar(&f.concurrency, "concurrency", defaults.Concurrency, "Maximum requests in flight")
	fs.IntVar(&f.throttleN, "throttle-requests", defaults.ThrottleRequests, "Requests allowed per throttle period (0 disables)")
	fs.DurationVar(&f.throttlePer, "throttle-per", defaults.ThrottlePer, "Throttle period")
	fs.DurationVar(&f.delayMin, "delay-min", defaults.DelayMin, "Minimum random delay before each request")
	fs.DurationVar(&f.delayMax, "delay-max", defaults.DelayMax, "Maximum random delay before each request")
	fs.DurationVarP(&f.timeout, "timeout", "t", defaults.Timeout, "Per-request timeout (0 disables)")
	fs.IntVar(&f.jobLimit, "job-limit", defaults.JobLimit, "Maximum requests for the whole run (0 is unlimited)")
	fs.StringVarP(&f.paginate, "paginate", "p", defaults.Paginate, "Selector yielding the next page URL, e.g. '.next@href'")
	fs.IntVarP(&f.limit, "limit", "l", defaults.PageLimit, "Maximum pages to crawl (0 is unlimited)")
	fs.StringVarP(&f.output, "output", "o", defaults.OutputFile, "Output file (default standard output)")
	fs.StringVarP(&f.format, "format", "f", defaults.OutputFormat, "Output format: json or jsonl")
	fs.StringVar(&f.metricsAddr, "metrics-addr", defaults.MetricsAddr, "Prometheus metrics listen address (e.g. :9090)")
	fs.StringVar(&f.userAgent, "user-agent", defaults.UserAgent, "User-Agent header")
	fs.IntVar(&f.parallelism, "parallelism", defaults.Parallelism, "Elements resolved in parallel per list (0 is unbounded)")
	fs.BoolVarP(&f.verbose, "verbose", "v", defaults.Verbose, "Enable verbose logging")

	return cmd
}

// envConfig applies XRAY_* environment overrides on cfg.
func envConfig(cfg *config.Config) *config.Config {
	cfg.Concurrency = config.EnvInt("CONCURRENCY", cfg.Concurrency)
	cfg.ThrottleRequests = config.EnvInt("THROTTLE_REQUESTS", cfg.ThrottleRequests)
	cfg.ThrottlePer = config.EnvDuration("THROTTLE_PER", cfg.ThrottlePer)
	cfg.DelayMin = config.EnvDuration("DELAY_MIN", cfg.DelayMin)
	cfg.DelayMax = config.EnvDuration("DELAY_MAX", cfg.DelayMax)
	cfg.Timeout = config.EnvDuration("TIMEOUT", cfg.Timeout)
	cfg.JobLimit = config.EnvInt("JOB_LIMIT", cfg.JobLimit)
	cfg.PageLimit = config.EnvInt("PAGE_LIMIT", cfg.PageLimit)
	cfg.Paginate = config.EnvString("PAGINATE", cfg.Paginate)
	cfg.UserAgent = config.EnvString("USER_AGENT", cfg.UserAgent)
	cfg.OutputFile = config.EnvString("OUTPUT", cfg.OutputFile)
	cfg.OutputFormat = config.EnvString("FORMAT", cfg.OutputFormat)
	cfg.MetricsAddr = config.EnvString("METRICS_ADDR", cfg.MetricsAddr)
	return cfg
}

// buildConfig layers the config file, the environment and explicitly set
// flags, in that order.
func buildConfig(cmd *cobra.Command, f *flags) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if f.configFile != "" {
		loaded, err := config.LoadFile(f.configFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	cfg = envConfig(cfg)

	changed := cmd.Flags().Changed
	if changed("concurrency") {
		cfg.Concurrency = f.concurrency
	}
	if changed("throttle-requests") {
		cfg.ThrottleRequests = f.throttleN
	}
	if changed("throttle-per") {
		cfg.ThrottlePer = f.throttlePer
	}
	if changed("delay-min") {
		cfg.DelayMin = f.delayMin
	}
	if changed("delay-max") {
		cfg.DelayMax = f.delayMax
	}
	if changed("timeout") {
		cfg.Timeout = f.timeout
	}
	if changed("job-limit") {
		cfg.JobLimit = f.jobLimit
	}
	if changed("paginate") {
		cfg.Paginate = f.paginate
	}
	if changed("limit") {
		cfg.PageLimit = f.limit
	}
	if changed("output") {
		cfg.OutputFile = f.output
	}
	if changed("format") {
		cfg.OutputFormat = f.format
	}
	if changed("metrics-addr") {
		cfg.MetricsAddr = f.metricsAddr
	}
	if changed("user-agent") {
		cfg.UserAgent = f.userAgent
	}
	if changed("parallelism") {
		cfg.Parallelism = f.parallelism
	}
	if changed("verbose") {
		cfg.Verbose = f.verbose
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
