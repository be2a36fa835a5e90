package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/brunokim/counters/config"
	"github.com/brunokim/counters/replica"
	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	configFile  = flag.String("config", "", "TOML file with the simulation config. Defaults are used if empty")
	envFile     = flag.String("env", ".env", "optional .env file with COUNTERS_* overrides")
	loglevel    = flag.String("loglevel", "", "overrides the log level from config: debug, info, warn or error")
	metricsFile = flag.String("metrics_file", "", "file to write prometheus metrics in text format after the run")
)

// initLogger initializes a logfmt gokit-logger set
// to the according log level.
func initLogger(loglevel string) log.Logger {
	logger := log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	logger = log.With(logger,
		"ts", log.DefaultTimestampUTC,
		"caller", log.DefaultCaller,
	)

	switch strings.ToLower(loglevel) {
	case "info":
		logger = level.NewFilter(logger, level.AllowInfo())
	case "warn":
		logger = level.NewFilter(logger, level.AllowWarn())
	case "error":
		logger = level.NewFilter(logger, level.AllowError())
	default:
		logger = level.NewFilter(logger, level.AllowDebug())
	}
	return logger
}

func loadConfig() (*config.Config, error) {
	conf := config.Default()
	if *configFile != "" {
		var err error
		if conf, err = config.LoadConfig(*configFile); err != nil {
			return nil, err
		}
	}
	if err := conf.LoadEnv(*envFile); err != nil {
		return nil, err
	}
	if *loglevel != "" {
		conf.LogLevel = *loglevel
	}
	return conf, conf.Validate()
}

func siteNames(n int) []string {
	names := make([]string, n)
	for i := range names {
		names[i] = fmt.Sprintf("site-%02d", i)
	}
	return names
}

func main() {
	flag.Parse()

	conf, err := loadConfig()
	if err != nil {
		logger := initLogger("error")
		level.Error(logger).Log("msg", "failed to load the config", "err", err)
		os.Exit(1)
	}
	logger := initLogger(conf.LogLevel)

	m := replica.NewDiscardMetrics()
	if *metricsFile != "" {
		m = replica.NewPrometheusMetrics()
	}

	sim := conf.Simulation
	cluster, err := replica.NewCluster(siteNames(sim.Replicas), replica.Options{
		DuplicateRate: sim.DuplicateRate,
		Seed:          sim.Seed,
		Metrics:       m,
	}, logger)
	if err != nil {
		level.Error(logger).Log("msg", "failed to create cluster", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	level.Info(logger).Log("msg", "starting simulation", "replicas", sim.Replicas, "steps", sim.Steps, "seed", sim.Seed)
	res, err := replica.Simulate(ctx, cluster, replica.SimOptions{
		Steps:         sim.Steps,
		FlushEvery:    sim.FlushEvery,
		GossipEvery:   sim.GossipEvery,
		DecrementRate: sim.DecrementRate,
		Seed:          sim.Seed,
	})
	if err != nil {
		level.Error(logger).Log("msg", "simulation failed", "err", err)
		os.Exit(2)
	}

	for _, r := range cluster.Replicas {
		level.Info(logger).Log("msg", "final state", "replica", r.ID, "value", r.Value(), "counter", r.Counter())
	}

	if *metricsFile != "" {
		if err := prometheus.WriteToTextfile(*metricsFile, prometheus.DefaultGatherer); err != nil {
			level.Warn(logger).Log("msg", "failed to write metrics", "file", *metricsFile, "err", err)
		}
	}

	if !res.Converged {
		level.Error(logger).Log("msg", "replicas did not converge", "value", res.Value, "want", res.Want())
		os.Exit(3)
	}
	fmt.Println(res.Value)
}
