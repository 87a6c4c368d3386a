package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"agentsched/internal/app"
	"agentsched/internal/task"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./config.yaml", "path to config file (yaml or json)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.NewApp(cfgPath, app.Options{})
	if err != nil {
		fmt.Println("fatal:", err)
		os.Exit(1)
	}

	registerBuiltinHandlers(a)

	if err := a.Start(ctx); err != nil {
		fmt.Println("fatal start:", err)
		os.Exit(1)
	}

	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
	stopWatchdog := startWatchdog(ctx)

	select {
	case <-ctx.Done():
	case <-a.Done():
	}

	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	stopWatchdog()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	if err := a.Stop(stopCtx); err != nil {
		fmt.Println("stop:", err)
	}
	if err := a.Err(); err != nil && err != context.Canceled {
		fmt.Println("fatal:", err)
		os.Exit(1)
	}
}

// startWatchdog pings the systemd watchdog at half its timeout when
// WatchdogSec is configured. Returns a func that stops the pinger.
func startWatchdog(ctx context.Context) func() {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval == 0 {
		return func() {}
	}

	done := make(chan struct{})
	go func() {
		t := time.NewTicker(interval / 2)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
			case <-ctx.Done():
				return
			case <-done:
				return
			}
		}
	}()
	return func() { close(done) }
}

// registerBuiltinHandlers installs the handler kinds that ship with the
// daemon. Embedders register their own kinds the same way.
func registerBuiltinHandlers(a *app.App) {
	h := a.Handlers()

	// echo returns the task's "message" metadata verbatim. Useful for
	// smoke-testing schedules end to end.
	h.Register("echo", func(ctx context.Context, t task.Task) (any, error) {
		if msg, ok := t.Metadata["message"].(string); ok {
			return msg, nil
		}
		return t.Name, nil
	})

	// sleep blocks for the duration in the "duration" metadata field,
	// honoring cancellation. Handy for exercising timeouts and retries.
	h.Register("sleep", func(ctx context.Context, t task.Task) (any, error) {
		raw, _ := t.Metadata["duration"].(string)
		d, err := time.ParseDuration(raw)
		if err != nil {
			return nil, task.NewExecutionError(task.CodeHandlerFailed, "bad sleep duration", err)
		}
		select {
		case <-time.After(d):
			return raw, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
}
