package main

import (
	"cacheprobe/internal/config"
	"cacheprobe/internal/runner"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	configFlag      string
	outputFlag      string
	methodFlag      string
	timeoutFlag     uint
	retriesFlag     uint
	concurrencyFlag uint
	headersFlag     string
	verboseFlag     bool
	traceFlag       bool
	forceHTTPFlag   bool
	gracefulFlag    bool
	storeDriverFlag string
	storePathFlag   string
	statusHTTPFlag  string
	statusGRPCFlag  string
	logFileFlag     string
)

func init() {
	defaults := config.Default()

	flag.StringVar(&configFlag, "config", "", "Path to a YAML config file (flags override it)")
	flag.StringVar(&outputFlag, "o", "", "The file to save results to")
	flag.StringVar(&outputFlag, "output", "", "The file to save results to")
	flag.StringVar(&methodFlag, "m", defaults.Method, "HTTP method to use (GET or POST)")
	flag.StringVar(&methodFlag, "method", defaults.Method, "HTTP method to use (GET or POST)")
	flag.UintVar(&timeoutFlag, "t", defaults.Timeout, "Request timeout in seconds")
	flag.UintVar(&timeoutFlag, "timeout", defaults.Timeout, "Request timeout in seconds")
	flag.UintVar(&retriesFlag, "r", defaults.Retries, "Number of retries for failed requests")
	flag.UintVar(&retriesFlag, "retries", defaults.Retries, "Number of retries for failed requests")
	flag.UintVar(&concurrencyFlag, "concurrency", defaults.Concurrency, "Maximum number of concurrent probes")
	flag.StringVar(&headersFlag, "H", "", "Comma-separated list of headers to check or path to a file containing headers")
	flag.StringVar(&headersFlag, "headers", "", "Comma-separated list of headers to check or path to a file containing headers")
	flag.BoolVar(&verboseFlag, "v", false, "Enable verbose output")
	flag.BoolVar(&verboseFlag, "verbose", false, "Enable verbose output")
	flag.BoolVar(&traceFlag, "vv", false, "Verbosity: trace logging")
	flag.BoolVar(&forceHTTPFlag, "force-http", false, "Force HTTP instead of HTTPS")
	flag.BoolVar(&gracefulFlag, "graceful", false, "On interrupt, cancel in-flight probes and finish normally instead of exiting at once")
	flag.StringVar(&storeDriverFlag, "store", "", "Findings history store: sqlite or leveldb")
	flag.StringVar(&storePathFlag, "store-path", "", "Findings history store location")
	flag.StringVar(&statusHTTPFlag, "status-http", "", "Serve /metrics and /healthz on this address")
	flag.StringVar(&statusGRPCFlag, "status-grpc", "", "Serve the gRPC health service on this address")
	flag.StringVar(&logFileFlag, "log-file", "", "Log file to use (in addition to stderr)")

	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] <url-file>\n\nProbes URLs for cache headers.\n\n", os.Args[0])
		flag.PrintDefaults()
	}
}

func main() {
	flag.Parse()

	setupLogging()

	cfg, err := loadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	if cfg.Verbose && !traceFlag {
		log.Logger = log.Logger.Level(zerolog.DebugLevel)
	}

	runID := uuid.New().String()
	log.Logger = log.With().Str("run", runID).Logger()

	ctx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGINT, syscall.SIGTERM,
	)
	defer cancel()

	r := &runner.Runner{
		Config:    cfg,
		RunID:     runID,
		Interrupt: ctx,
		Registry:  prometheus.DefaultRegisterer.(*prometheus.Registry),
	}

	if err := r.Run(context.Background()); err != nil {
		log.Error().Err(err).Msg("run failed")
		os.Exit(1)
	}

	if cfg.Verbose {
		log.Info().Str("output", cfg.Output).Msg("results saved")
	}
}

func setupLogging() {
	logLevel := zerolog.InfoLevel
	if verboseFlag {
		logLevel = zerolog.DebugLevel
	}
	if traceFlag {
		logLevel = zerolog.TraceLevel
	}

	// log to stderr, also to a logfile if specified
	logOutputs := make([]io.Writer, 0)
	logOutputs = append(logOutputs, zerolog.ConsoleWriter{Out: os.Stderr})
	if logFileFlag != "" {
		if logFileOutput, err := os.OpenFile(logFileFlag, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0644); err != nil {
			log.Fatal().Err(err).Msg("Cannot open log file")
		} else {
			logOutputs = append(logOutputs, logFileOutput)
		}
	}
	multiWriter := zerolog.MultiLevelWriter(logOutputs...)
	log.Logger = log.Level(logLevel).Output(multiWriter)
}

// loadConfig merges the optional config file, the url file argument and every
// explicitly set flag, then validates.
func loadConfig() (config.Config, error) {
	cfg := config.Default()
	if configFlag != "" {
		var err error
		if cfg, err = config.LoadFile(configFlag); err != nil {
			return cfg, err
		}
	}

	if flag.NArg() > 1 {
		return cfg, fmt.Errorf("expected one url file, got %d arguments", flag.NArg())
	}
	if flag.NArg() == 1 {
		urls, err := config.ReadURLs(flag.Arg(0))
		if err != nil {
			return cfg, err
		}
		cfg.URLs = urls
	}

	var headersErr error
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "o", "output":
			cfg.Output = outputFlag
		case "m", "method":
			cfg.Method = methodFlag
		case "t", "timeout":
			cfg.Timeout = timeoutFlag
		case "r", "retries":
			cfg.Retries = retriesFlag
		case "concurrency":
			cfg.Concurrency = concurrencyFlag
		case "H", "headers":
			cfg.Headers, headersErr = config.ReadHeaders(headersFlag)
		case "v", "verbose":
			cfg.Verbose = verboseFlag
		case "force-http":
			cfg.ForceHTTP = forceHTTPFlag
		case "graceful":
			cfg.Graceful = gracefulFlag
		case "store":
			cfg.Store.Driver = storeDriverFlag
		case "store-path":
			cfg.Store.Path = storePathFlag
		case "status-http":
			cfg.Status.HTTP = statusHTTPFlag
		case "status-grpc":
			cfg.Status.GRPC = statusGRPCFlag
		}
	})
	if headersErr != nil {
		return cfg, headersErr
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
