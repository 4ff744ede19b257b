package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ipshipyard/adguard-blocklist/config"
	"github.com/ipshipyard/adguard-blocklist/denylist"
	"github.com/ipshipyard/adguard-blocklist/schedule"
	"github.com/ipshipyard/adguard-blocklist/updater"
)

var log = logging.Logger("blocklist")

// ReasonManualChange is the cycle reason used when the manual list is edited.
const ReasonManualChange = "manual-change"

// checkDocument verifies that the AdGuard Home configuration is present. The
// updater never creates it.
func checkDocument(path string) error {
	fi, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%s not found, is the AdGuard Home configuration mounted?", path)
		}
		return err
	}
	if fi.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}
	return nil
}

func setLogLevel(level string) {
	if err := logging.SetLogLevel("*", level); err != nil {
		log.Warnf("invalid log level %q, keeping default: %s", level, err)
	}
}

func main() {
	fmt.Printf("%s %s\n", name, version) // always print version
	registerVersionMetric()
	err := godotenv.Load()
	if err == nil {
		fmt.Println(".env found and loaded")
	}

	cfg := config.Load(os.Getenv)
	setLogLevel(cfg.LogLevel)

	if err := checkDocument(cfg.DocumentPath); err != nil {
		fmt.Fprintf(os.Stderr, "\nError: %s\n\n", err)
		fmt.Fprintf(os.Stderr, "Set ADGUARD_CONFIG_PATH to the AdGuardHome.yaml shared with the AdGuard Home container.\n")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.Errorf("exiting: %s", err)
		os.Exit(1)
	}
	log.Info("shut down")
}

// run wires the components and blocks in the control loop until ctx is done.
func run(ctx context.Context, cfg config.Config) error {
	o, cache, err := updater.Setup(cfg)
	if err != nil {
		return err
	}
	defer cache.Close()

	sched := schedule.New(cfg.ScheduleFrequency, cfg.ScheduleTime, cfg.ScheduleDay)
	log.Infof("updating %s, checking every %s", sched, cfg.PollInterval)

	runner := schedule.NewRunner(sched, cfg.PollInterval, func(ctx context.Context, reason string) {
		// Errors are logged and recorded by the orchestrator; the next
		// trigger retries.
		_, _ = o.RunCycle(ctx, reason)
	})

	if cfg.WatchManual {
		mw, err := denylist.WatchManual(cfg.ManualIPsPath, func() {
			runner.Request(ReasonManualChange)
		})
		if err != nil {
			log.Warnf("not watching manual list %s: %s", cfg.ManualIPsPath, err)
		} else {
			defer mw.Close()
		}
	}

	if cfg.MetricsAddr != "" {
		srv, err := updater.StartStatusServer(cfg.MetricsAddr, updater.NewRouter(o, runner.Request))
		if err != nil {
			return fmt.Errorf("status server: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	return runner.Run(ctx)
}

func registerVersionMetric() {
	m := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   "blocklist",
		Name:        "info",
		Help:        "Information about the blocklist updater instance.",
		ConstLabels: prometheus.Labels{"version": version},
	})
	prometheus.MustRegister(m)
	m.Set(1)
}
