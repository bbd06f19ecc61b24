package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/mschirtzinger/dotmirror/internal/config"
	"github.com/mschirtzinger/dotmirror/internal/mirror"
	"github.com/mschirtzinger/dotmirror/internal/ui"
)

var targetsYes bool

var targetsCmd = &cobra.Command{
	Use:   "targets",
	Short: "Manage the list of watched directories",
}

var targetsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List watched directories and their mirror subtrees",
	RunE: func(cmd *cobra.Command, args []string) error {
		targets, err := config.LoadTargets(settings.TargetsFile, logger)
		if errors.Is(err, os.ErrNotExist) {
			fmt.Printf("%s No targets file at %s\n", ui.RenderWarn("⚠"), settings.TargetsFile)
			return nil
		}
		if err != nil {
			return err
		}

		mapper := mirror.NewMapper(settings.MirrorRoot, targets)
		for _, target := range targets {
			fmt.Printf("%s %s\n", target, ui.RenderMuted("→ "+mapper.TargetDir(target)))
		}
		return nil
	},
}

var targetsAddCmd = &cobra.Command{
	Use:   "add <dir>",
	Short: "Add a directory to the watch list",
	Long: `Add a directory to the targets file.

The directory must exist. When it is nested inside (or contains) an
existing target, or shares its base name with one, you are asked to
confirm, since changes under it would resolve to the first listed target
or land in the same mirror subtree. Use --yes to skip the prompt.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		target, err := filepath.Abs(args[0])
		if err != nil {
			return err
		}

		status := config.CheckTarget(target)
		if !status.OK() {
			return fmt.Errorf("%s %s", target, status.Problem())
		}

		existing, err := config.LoadTargets(settings.TargetsFile, logger)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}

		if warnings := ambiguityWarnings(existing, target); len(warnings) > 0 {
			for _, w := range warnings {
				fmt.Printf("%s %s\n", ui.RenderWarn("⚠"), w)
			}
			ok, err := confirm("Add it anyway?")
			if err != nil {
				return err
			}
			if !ok {
				fmt.Println("Not added")
				return nil
			}
		}

		added, err := config.AppendTarget(settings.TargetsFile, target)
		if err != nil {
			return err
		}
		if !added {
			fmt.Printf("%s %s is already watched\n", ui.RenderMuted("•"), target)
			return nil
		}

		fmt.Printf("%s Added %s %s\n", ui.RenderPass("✓"), target,
			ui.RenderMuted("(restart the daemon to pick it up)"))
		return nil
	},
}

// ambiguityWarnings describes how target would overlap existing targets.
func ambiguityWarnings(existing []string, target string) []string {
	var warnings []string

	all := append(append([]string(nil), existing...), target)
	for _, o := range mirror.Overlaps(all) {
		if o.Inner != target && o.Outer != target {
			continue
		}
		warnings = append(warnings, fmt.Sprintf("%s is inside %s", o.Inner, o.Outer))
	}

	base := filepath.Base(target)
	if same, ok := mirror.Collisions(all)[base]; ok {
		warnings = append(warnings, fmt.Sprintf("%d targets would share mirror directory %q", len(same), base))
	}
	return warnings
}

// confirm asks a yes/no question on a terminal. Without a terminal it
// only proceeds when --yes was given.
func confirm(question string) (bool, error) {
	if targetsYes {
		return true, nil
	}
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return false, errors.New("refusing to add an ambiguous target without a terminal, pass --yes to force")
	}

	var ok bool
	err := huh.NewConfirm().
		Title(question).
		Affirmative("Add").
		Negative("Cancel").
		Value(&ok).
		Run()
	if err != nil {
		return false, err
	}
	return ok, nil
}

func init() {
	targetsAddCmd.Flags().BoolVarP(&targetsYes, "yes", "y", false, "add without confirmation")
	targetsCmd.AddCommand(targetsListCmd)
	targetsCmd.AddCommand(targetsAddCmd)
	rootCmd.AddCommand(targetsCmd)
}
