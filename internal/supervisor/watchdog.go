package supervisor

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

// WatchdogInterval returns the watchdog interval requested through
// WATCHDOG_USEC, or 0 when the watchdog is not enabled for this process.
// An unset variable is not an error.
func WatchdogInterval() (time.Duration, error) {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		return 0, fmt.Errorf("invalid watchdog configuration: %w", err)
	}
	return interval, nil
}

// StartWatchdog pings n at half of interval for the rest of the process
// lifetime. It does nothing when interval is not positive.
func StartWatchdog(n Notifier, interval time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		return
	}
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("watchdog enabled", "interval", interval, "ping_every", interval/2)
	go runWatchdog(n, interval, realClock{}, logger, 0)
}

type clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }
func (realClock) Sleep(d time.Duration) { time.Sleep(d) }

// runWatchdog pings every interval/2, subtracting the time each ping took
// so the spacing between pings does not drift past the period. A positive
// limit bounds the number of pings.
func runWatchdog(n Notifier, interval time.Duration, c clock, logger *slog.Logger, limit int) {
	period := interval / 2

	for i := 0; limit <= 0 || i < limit; i++ {
		start := c.Now()
		if err := n.Watchdog(); err != nil {
			logger.Warn("watchdog ping failed", "error", err)
		}

		if elapsed := c.Now().Sub(start); elapsed < period {
			c.Sleep(period - elapsed)
		}
	}
}
