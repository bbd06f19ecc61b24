package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/dotmirror/internal/config"
	"github.com/mschirtzinger/dotmirror/internal/daemon"
	"github.com/mschirtzinger/dotmirror/internal/mirror"
	"github.com/mschirtzinger/dotmirror/internal/supervisor"
	"github.com/mschirtzinger/dotmirror/internal/ui"
	"github.com/mschirtzinger/dotmirror/internal/vcs"
	"github.com/mschirtzinger/dotmirror/internal/vcs/git"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Mirror and snapshot watched directories (foreground)",
	Long: `Run the mirror daemon in the foreground.

The daemon will:
  1. Open or initialize the git repository at the mirror root
  2. Copy every file under each target into the mirror tree
  3. Take a snapshot if the tree differs from HEAD
  4. Watch all targets recursively and, for each content change, copy the
     file and take a snapshot

With --systemd the daemon reports readiness and status to systemd and
pings the watchdog when WATCHDOG_USEC is set. Stop it with Ctrl+C or
SIGTERM.`,
	Annotations: map[string]string{annotationLogFile: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		targets, err := config.LoadTargets(settings.TargetsFile, logger)
		if err != nil {
			return err
		}
		config.VerifyTargets(targets, logger)

		notifier := supervisor.New(settings.Systemd, logger)
		var interval time.Duration
		if settings.Systemd {
			interval, err = supervisor.WatchdogInterval()
			if err != nil {
				logger.Warn("watchdog disabled", "error", err)
			}
		}

		d, err := newDaemon(targets, notifier, interval)
		if err != nil {
			return err
		}

		if !settings.Systemd {
			fmt.Printf("%s Starting dotmirror...\n", ui.RenderAccent("🚀"))
			fmt.Printf("   Targets: %s (%s)\n", ui.Plural(len(targets), "target"), settings.TargetsFile)
			fmt.Printf("   Mirror root: %s\n", settings.MirrorRoot)
			fmt.Printf("\nPress Ctrl+C to stop\n\n")
		}

		return d.Start(cmd.Context())
	},
}

// newDaemon builds a daemon from the loaded settings.
func newDaemon(targets []string, notifier supervisor.Notifier, watchdog time.Duration) (*daemon.Daemon, error) {
	cfg := daemon.DefaultConfig()
	cfg.Targets = targets
	cfg.MirrorRoot = settings.MirrorRoot
	cfg.Ignore = settings.Ignore
	cfg.InitialSnapshot = settings.InitialSnapshot
	cfg.Git = gitOptions()
	cfg.Notifier = notifier
	cfg.WatchdogInterval = watchdog
	cfg.Logger = logger
	return daemon.New(cfg)
}

func gitOptions() git.Options {
	opts := git.DefaultOptions()
	if settings.Snapshot.Message != "" {
		opts.Message = settings.Snapshot.Message
	}
	id := vcs.Identity{Name: settings.Snapshot.AuthorName, Email: settings.Snapshot.AuthorEmail}
	if !id.IsZero() {
		opts.Identity = id
	}
	// Validated when settings were loaded
	opts.Timeout, _ = settings.Snapshot.TimeoutDuration()
	opts.Exclude = []string{mirror.TempGlob}
	return opts
}

func init() {
	rootCmd.AddCommand(runCmd)
}
