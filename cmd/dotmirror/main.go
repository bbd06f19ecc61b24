package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mschirtzinger/dotmirror/internal/config"
	"github.com/mschirtzinger/dotmirror/internal/logging"
)

// annotationLogFile marks commands whose logs also go to the log file.
const annotationLogFile = "log-file"

var (
	configFile string
	verbose    bool

	v         *viper.Viper
	settings  config.Settings
	logger    *slog.Logger
	logCloser io.Closer
)

var rootCmd = &cobra.Command{
	Use:   "dotmirror",
	Short: "Mirror dotfile directories into a versioned git tree",
	Long: `dotmirror watches a list of directories and copies every changed file
into a single mirror tree, one subdirectory per watched directory. The
mirror is a git repository: each change that alters the tree becomes a
snapshot commit.

Watched directories are listed one per line in the targets file
(default ~/.config/dotmirror/targets).`,
	SilenceUsage: true,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logCloser != nil {
			logCloser.Close()
		}
	},
}

func init() {
	// Assigned here rather than in the literal: setup refers to rootCmd.
	rootCmd.PersistentPreRunE = setup

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configFile, "config", "c", "", "config file (default ~/.config/dotmirror/config.yaml)")
	flags.StringP("targets", "t", "", "targets file, one absolute directory per line")
	flags.StringP("mirror-root", "m", "", "mirror root directory (default ~/dotfiles)")
	flags.Bool("systemd", false, "run under systemd: notify readiness and watchdog, log to stderr only")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// setup loads settings and configures logging for every command.
func setup(cmd *cobra.Command, args []string) error {
	var err error
	v, err = config.NewViper(configFile)
	if err != nil {
		return err
	}

	flags := rootCmd.PersistentFlags()
	for key, flag := range map[string]string{
		config.KeyTargetsFile: "targets",
		config.KeyMirrorRoot:  "mirror-root",
		config.KeySystemd:     "systemd",
		config.KeyLogLevel:    "log-level",
	} {
		if err := v.BindPFlag(key, flags.Lookup(flag)); err != nil {
			return err
		}
	}

	settings, err = config.Load(v)
	if err != nil {
		return err
	}

	level, err := config.ParseLevel(settings.Log.Level)
	if err != nil {
		return err
	}
	if verbose {
		level = slog.LevelDebug
	}

	opts := logging.Options{
		Level:   level,
		Systemd: settings.Systemd,
	}
	if cmd.Annotations[annotationLogFile] == "true" {
		opts.File = settings.Log.File
		opts.MaxSizeMB = settings.Log.MaxSizeMB
		opts.MaxBackups = settings.Log.MaxBackups
	}

	logger, logCloser, err = logging.Setup(opts)
	if err != nil {
		return err
	}
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
