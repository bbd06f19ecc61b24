package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/dotmirror/internal/config"
	"github.com/mschirtzinger/dotmirror/internal/daemon"
	"github.com/mschirtzinger/dotmirror/internal/mirror"
	"github.com/mschirtzinger/dotmirror/internal/ui"
	"github.com/mschirtzinger/dotmirror/internal/vcs"
	"github.com/mschirtzinger/dotmirror/internal/vcs/git"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show targets, mirror repository and daemon state",
	Long: `Display the current state of dotmirror.

Shows:
  - Each watch target and whether it can be watched
  - Mirror root, HEAD snapshot and pending (unsnapshotted) changes
  - Whether a daemon currently holds the mirror lock`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		targets, err := config.LoadTargets(settings.TargetsFile, logger)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}

		fmt.Printf("\n%s Watch targets %s\n\n", ui.RenderAccent("📂"), ui.RenderMuted(settings.TargetsFile))
		if len(targets) == 0 {
			fmt.Printf("   none, add one with 'dotmirror targets add <dir>'\n")
		}
		mapper := mirror.NewMapper(settings.MirrorRoot, targets)
		for _, status := range config.VerifyTargets(targets, slog.New(slog.DiscardHandler)) {
			if status.OK() {
				fmt.Printf("%s %s → %s\n", ui.RenderPass("✓"), status.Path, mapper.TargetDir(status.Path))
			} else {
				fmt.Printf("%s %s %s\n", ui.RenderFail("✗"), status.Path, ui.RenderMuted(status.Problem()))
			}
		}
		for _, o := range mirror.Overlaps(targets) {
			fmt.Printf("%s %s is inside %s\n", ui.RenderWarn("⚠"), o.Inner, o.Outer)
		}

		fmt.Printf("\n%s Mirror\n\n", ui.RenderAccent("📊"))

		repo, err := git.Open(ctx, settings.MirrorRoot, gitOptions())
		if errors.Is(err, vcs.ErrNotInVCS) {
			ui.KeyValues(os.Stdout, [][2]string{
				{"Mirror root", settings.MirrorRoot},
				{"Repository", ui.RenderWarn("not initialized") + ", run 'dotmirror sync'"},
			})
			fmt.Println()
			return nil
		}
		if err != nil {
			return err
		}

		headLabel := ui.RenderMuted("no snapshots yet")
		commits, err := repo.Log(ctx, time.Time{}, 1)
		if err != nil {
			return err
		}
		if len(commits) > 0 {
			headLabel = fmt.Sprintf("%s %s", ui.RenderBold(commits[0].ShortHash()), commits[0].Time.Format("2006-01-02 15:04:05"))
		}

		pending, err := repo.Status(ctx)
		if err != nil {
			return err
		}

		running, err := daemon.Locked(settings.MirrorRoot)
		daemonLabel := ui.RenderMuted("not running")
		switch {
		case err != nil:
			daemonLabel = ui.RenderWarn(err.Error())
		case running:
			daemonLabel = ui.RenderPass("running")
		}

		gitVersion, err := git.Version(ctx)
		if err != nil {
			gitVersion = ui.RenderWarn(err.Error())
		}

		ui.KeyValues(os.Stdout, [][2]string{
			{"Mirror root", repo.Root()},
			{"Git", gitVersion},
			{"HEAD", headLabel},
			{"Pending", ui.Plural(len(pending), "change")},
			{"Identity", repo.Identity(ctx).String()},
			{"Daemon", daemonLabel},
		})
		fmt.Println()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
