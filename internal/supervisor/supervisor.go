// Package supervisor speaks the systemd notification protocol: readiness,
// free-text status, stopping, and periodic watchdog pings.
package supervisor

import (
	"log/slog"

	"github.com/coreos/go-systemd/v22/daemon"
)

// Notifier emits supervisor signals. All signals are best effort.
type Notifier interface {
	Ready() error
	Status(status string) error
	Stopping() error
	Watchdog() error
}

// New returns a systemd notifier when enabled, otherwise a no-op.
func New(enabled bool, logger *slog.Logger) Notifier {
	if !enabled {
		return Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Systemd{logger: logger}
}

// Systemd sends notifications to $NOTIFY_SOCKET.
type Systemd struct {
	logger *slog.Logger
}

var _ Notifier = (*Systemd)(nil)

func (s *Systemd) Ready() error {
	return s.notify(daemon.SdNotifyReady)
}

func (s *Systemd) Status(status string) error {
	return s.notify("STATUS=" + status)
}

func (s *Systemd) Stopping() error {
	return s.notify(daemon.SdNotifyStopping)
}

func (s *Systemd) Watchdog() error {
	return s.notify(daemon.SdNotifyWatchdog)
}

func (s *Systemd) notify(state string) error {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		return err
	}
	if !sent {
		s.logger.Debug("supervisor notification not sent, NOTIFY_SOCKET unset", "state", state)
	}
	return nil
}

// Nop discards all notifications.
type Nop struct{}

var _ Notifier = Nop{}

func (Nop) Ready() error { return nil }
func (Nop) Status(string) error { return nil }
func (Nop) Stopping() error { return nil }
func (Nop) Watchdog() error { return nil }
