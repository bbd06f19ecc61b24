package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"

	"github.com/mschirtzinger/dotmirror/internal/ui"
	"github.com/mschirtzinger/dotmirror/internal/vcs"
	"github.com/mschirtzinger/dotmirror/internal/vcs/git"
)

var (
	historySince string
	historyLimit int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List snapshots of the mirror tree",
	Long: `List snapshot commits, newest first.

--since accepts a date (2024-05-01) or natural language such as
"2 days ago", "last week" or "yesterday".`,
	Example: `  dotmirror history --limit 5
  dotmirror history --since "3 days ago"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		since, err := parseSince(historySince, time.Now())
		if err != nil {
			return err
		}

		repo, err := git.Open(ctx, settings.MirrorRoot, gitOptions())
		if errors.Is(err, vcs.ErrNotInVCS) {
			fmt.Printf("%s No mirror repository at %s\n", ui.RenderWarn("⚠"), settings.MirrorRoot)
			return nil
		}
		if err != nil {
			return err
		}

		commits, err := repo.Log(ctx, since, historyLimit)
		if err != nil {
			return err
		}
		if len(commits) == 0 {
			fmt.Println(ui.RenderMuted("No snapshots"))
			return nil
		}

		for _, c := range commits {
			marker := ""
			if len(c.Parents) == 0 {
				marker = ui.RenderMuted(" (first)")
			}
			fmt.Printf("%s %s %s%s\n",
				ui.RenderBold(c.ShortHash()),
				ui.RenderMuted(c.Time.Format("2006-01-02 15:04:05")),
				c.Subject,
				marker)
		}
		return nil
	},
}

// parseSince parses a --since value relative to now. Empty means no bound.
func parseSince(text string, now time.Time) (time.Time, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return time.Time{}, nil
	}

	for _, layout := range []string{time.DateTime, time.DateOnly, time.RFC3339} {
		if t, err := time.ParseInLocation(layout, text, time.Local); err == nil {
			return t, nil
		}
	}

	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)

	result, err := w.Parse(text, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --since %q: %w", text, err)
	}
	if result == nil {
		return time.Time{}, fmt.Errorf("invalid --since %q: no date found", text)
	}
	return result.Time, nil
}

func init() {
	historyCmd.Flags().StringVar(&historySince, "since", "", `only snapshots after this time ("2 days ago", 2024-05-01)`)
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "maximum number of snapshots to list (0 for all)")
	rootCmd.AddCommand(historyCmd)
}
