// Package cmd implements watchscan's CLI surface, following the teacher's
// cobra layout (cli/cmd/root.go): a rootCmd with PersistentPreRunE config
// loading and subcommands registered via package-level init().
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sofmeright/watchscan/internal/config"
)

var (
	cfgFile string
	verbose bool
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "watchscan",
	Short: "Debian watch-file upstream release scanner",
	Long:  "watchscan discovers, fetches, and repacks upstream releases described by debian/watch files.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" {
			return nil
		}
		var warnings []string
		var err error
		cfg, warnings, err = config.LoadWithWarnings(cfgFile)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		for _, w := range warnings {
			fmt.Fprintf(os.Stderr, "  warning: %s\n", w)
		}
		return nil
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: .watchscan.yml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// Execute runs the root command.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}
	return nil
}
