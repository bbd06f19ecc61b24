// Package logging configures dotmirror's slog output: a tint console
// handler on stderr plus a rotating log file.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/lmittmann/tint"
	"golang.org/x/term"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures Setup.
type Options struct {
	Level slog.Level

	// File is the rotating log file. Empty disables file logging.
	File       string
	MaxSizeMB  int
	MaxBackups int

	// Systemd logs to the console only and without timestamps, since
	// journald records its own.
	Systemd bool

	// Console defaults to os.Stderr.
	Console io.Writer
}

// Setup builds the logger described by opts and installs it as the slog
// default. The returned closer flushes and closes the log file.
func Setup(opts Options) (*slog.Logger, io.Closer, error) {
	console := opts.Console
	if console == nil {
		console = os.Stderr
	}

	consoleHandler := tint.NewHandler(console, &tint.Options{
		Level:       opts.Level,
		TimeFormat:  time.DateTime,
		NoColor:     !isTerminal(console),
		ReplaceAttr: dropTimeIf(opts.Systemd),
	})

	if opts.Systemd || opts.File == "" {
		logger := slog.New(consoleHandler)
		slog.SetDefault(logger)
		return logger, nopCloser{}, nil
	}

	file, err := openRotating(opts)
	if err != nil {
		return nil, nil, err
	}

	fileHandler := slog.NewTextHandler(file, &slog.HandlerOptions{Level: opts.Level})

	logger := slog.New(NewFanout(consoleHandler, fileHandler))
	slog.SetDefault(logger)
	return logger, file, nil
}

// openRotating checks the log file can be created before handing it to
// lumberjack, which otherwise only fails on the first write.
func openRotating(opts Options) (*lumberjack.Logger, error) {
	if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	f.Close()

	return &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		Compress:   true,
	}, nil
}

func dropTimeIf(drop bool) func([]string, slog.Attr) slog.Attr {
	if !drop {
		return nil
	}
	return func(groups []string, a slog.Attr) slog.Attr {
		if a.Key == slog.TimeKey && len(groups) == 0 {
			return slog.Attr{}
		}
		return a
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
