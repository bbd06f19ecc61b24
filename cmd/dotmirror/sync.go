package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/dotmirror/internal/config"
	"github.com/mschirtzinger/dotmirror/internal/supervisor"
	"github.com/mschirtzinger/dotmirror/internal/ui"
	"github.com/mschirtzinger/dotmirror/internal/vcs"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Copy all targets into the mirror and snapshot once",
	Long: `Perform a one-shot sync without watching:
  1. Copies every file under each target into the mirror tree
  2. Takes a snapshot if the tree differs from HEAD

Fails if a dotmirror daemon is already running on the same mirror root.`,
	Annotations: map[string]string{annotationLogFile: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		targets, err := config.LoadTargets(settings.TargetsFile, logger)
		if err != nil {
			return err
		}

		d, err := newDaemon(targets, supervisor.Nop{}, 0)
		if err != nil {
			return err
		}

		fmt.Printf("%s Syncing %s into %s...\n", ui.RenderAccent("🔄"), ui.Plural(len(targets), "target"), settings.MirrorRoot)

		outcome, err := d.Sync(cmd.Context())
		if err != nil {
			return err
		}

		for _, tr := range outcome.Report.Targets {
			if tr.Err != nil {
				fmt.Printf("%s %s: %v\n", ui.RenderFail("✗"), tr.Target, tr.Err)
				continue
			}
			mark := ui.RenderPass("✓")
			if tr.Failed > 0 {
				mark = ui.RenderWarn("⚠")
			}
			fmt.Printf("%s %s → %s %s\n", mark, tr.Target, tr.Dest,
				ui.RenderMuted(fmt.Sprintf("(%d copied, %d skipped, %d failed)", tr.Copied, tr.Skipped, tr.Failed)))
		}

		printSnapshot(outcome.Snapshot)
		fmt.Printf("%s Sync complete in %v\n", ui.RenderPass("✓"), outcome.Report.Duration.Round(time.Millisecond))
		return nil
	},
}

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Commit the mirror tree if it differs from HEAD",
	Long: `Take one snapshot of the mirror root as it is on disk, without copying
anything. No commit is created when the tree matches HEAD.`,
	Annotations: map[string]string{annotationLogFile: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := newDaemon(nil, supervisor.Nop{}, 0)
		if err != nil {
			return err
		}

		result, err := d.Snapshot(cmd.Context())
		if err != nil {
			return err
		}
		printSnapshot(result)
		return nil
	},
}

func printSnapshot(result vcs.SnapshotResult) {
	switch result.Outcome {
	case vcs.Committed:
		parent := "none (first snapshot)"
		if result.Parent != "" {
			parent = vcs.CommitInfo{Hash: result.Parent}.ShortHash()
		}
		fmt.Printf("%s Snapshot %s committed %s\n",
			ui.RenderPass("✓"),
			ui.RenderBold(vcs.CommitInfo{Hash: result.Commit}.ShortHash()),
			ui.RenderMuted(fmt.Sprintf("(%s, parent %s, by %s)", ui.Plural(result.Changes, "change"), parent, result.Author)))
	case vcs.NoChanges:
		fmt.Printf("%s Mirror unchanged, no snapshot needed\n", ui.RenderMuted("•"))
	default:
		fmt.Printf("%s Snapshot failed, see log for details\n", ui.RenderFail("✗"))
	}
}

func init() {
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(snapshotCmd)
}
