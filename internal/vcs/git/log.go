package git

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mschirtzinger/dotmirror/internal/vcs"
)

// logFormat separates fields with the ASCII unit separator; records are
// NUL-terminated by -z.
const logFormat = "%H%x1f%P%x1f%an%x1f%ae%x1f%ct%x1f%s"

// Log returns snapshots reachable from HEAD, newest first.
// An unborn HEAD yields an empty history rather than an error.
func (g *Git) Log(ctx context.Context, since time.Time, limit int) ([]vcs.CommitInfo, error) {
	head, err := g.Head(ctx)
	if err != nil {
		return nil, err
	}
	if head == "" {
		return nil, nil
	}

	args := []string{"log", "-z", "--format=" + logFormat}
	if limit > 0 {
		args = append(args, "-n", strconv.Itoa(limit))
	}
	if !since.IsZero() {
		args = append(args, fmt.Sprintf("--since=@%d", since.Unix()))
	}
	args = append(args, head)

	output, err := g.run(ctx, nil, args...)
	if err != nil {
		return nil, err
	}

	return parseLog(output)
}

func parseLog(output []byte) ([]vcs.CommitInfo, error) {
	var commits []vcs.CommitInfo

	for _, record := range vcs.ParseNullSeparated(output) {
		record = strings.TrimPrefix(record, "\n")
		fields := strings.SplitN(record, "\x1f", 6)
		if len(fields) < 6 {
			return nil, fmt.Errorf("unexpected git log record: %q", record)
		}

		ts, err := strconv.ParseInt(fields[4], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid commit time %q: %w", fields[4], err)
		}

		commits = append(commits, vcs.CommitInfo{
			Hash:    fields[0],
			Parents: strings.Fields(fields[1]),
			Author:  vcs.Identity{Name: fields[2], Email: fields[3]},
			Time:    time.Unix(ts, 0),
			Subject: fields[5],
		})
	}

	return commits, nil
}
