// Command adguard-blocklist-once runs a single update cycle and exits. It is
// meant for cron jobs and manual runs next to, or instead of, the daemon.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	logging "github.com/ipfs/go-log/v2"
	"github.com/joho/godotenv"

	"github.com/ipshipyard/adguard-blocklist/config"
	"github.com/ipshipyard/adguard-blocklist/updater"
)

var log = logging.Logger("blocklist/once")

func main() {
	if err := godotenv.Load(); err == nil {
		fmt.Println(".env found and loaded")
	}

	cfg := config.Load(os.Getenv)
	if err := logging.SetLogLevel("*", cfg.LogLevel); err != nil {
		log.Warnf("invalid log level %q: %s", cfg.LogLevel, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(runOnce(ctx, cfg))
}

// runOnce performs one cycle and returns the process exit code.
func runOnce(ctx context.Context, cfg config.Config) int {
	o, cache, err := updater.Setup(cfg)
	if err != nil {
		log.Errorf("setup: %s", err)
		return 1
	}
	defer cache.Close()

	res, err := o.RunCycle(ctx, "once")
	if err != nil {
		return 1
	}
	if !res.Reloaded {
		log.Warnf("document updated, restart %s manually to apply it", cfg.ServiceName)
	}
	return 0
}
