package main

import (
	"fmt"
	"io"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mschirtzinger/dotmirror/internal/config"
)

var configFormat string

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect dotmirror configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective settings",
	Long: `Print the settings dotmirror would run with, after merging defaults,
the config file, DOTMIRROR_* environment variables and flags.

The output is a valid config file in the chosen format.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if used := v.ConfigFileUsed(); used != "" {
			fmt.Fprintf(os.Stderr, "# loaded from %s\n", used)
		}
		return writeSettings(os.Stdout, settings, configFormat)
	},
}

func writeSettings(w io.Writer, s config.Settings, format string) error {
	switch format {
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(s); err != nil {
			return fmt.Errorf("failed to encode yaml: %w", err)
		}
		return enc.Close()
	case "toml":
		if err := toml.NewEncoder(w).Encode(s); err != nil {
			return fmt.Errorf("failed to encode toml: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("unknown format %q (want yaml or toml)", format)
	}
}

func init() {
	configShowCmd.Flags().StringVarP(&configFormat, "format", "f", "yaml", "output format: yaml or toml")
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}
