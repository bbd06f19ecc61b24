package config

import (
	"log/slog"
	"os"
)

// TargetStatus describes a watch target as found on disk.
type TargetStatus struct {
	Path     string
	Exists   bool
	IsDir    bool
	Readable bool
}

// OK reports whether the target can be watched.
func (s TargetStatus) OK() bool {
	return s.Exists && s.IsDir && s.Readable
}

// Problem describes what is wrong with the target, or "" when OK.
func (s TargetStatus) Problem() string {
	switch {
	case !s.Exists:
		return "does not exist"
	case !s.IsDir:
		return "is not a directory"
	case !s.Readable:
		return "is not readable"
	default:
		return ""
	}
}

// VerifyTargets checks each target and logs problems. Problems are not
// fatal: a missing target simply never produces events.
func VerifyTargets(targets []string, logger *slog.Logger) []TargetStatus {
	if logger == nil {
		logger = slog.Default()
	}

	statuses := make([]TargetStatus, 0, len(targets))
	for _, target := range targets {
		status := CheckTarget(target)
		if !status.OK() {
			logger.Error("watch target unavailable", "target", target, "problem", status.Problem())
		}
		statuses = append(statuses, status)
	}
	return statuses
}

// CheckTarget stats a single target.
func CheckTarget(target string) TargetStatus {
	status := TargetStatus{Path: target}

	info, err := os.Stat(target)
	if err != nil {
		return status
	}
	status.Exists = true
	status.IsDir = info.IsDir()
	status.Readable = readable(target)
	return status
}
