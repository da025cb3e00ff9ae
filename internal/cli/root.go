package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	appLog "taskgate/internal/log"
)

var (
	configPath string
	verbose    bool
	rootCmd    *cobra.Command
)

func init() {
	rootCmd = &cobra.Command{
		Use:   "taskgate",
		Short: "taskgate - temporal rule engine for task blocking windows",
		Long: `taskgate computes which tasks are due on a date, the absolute time
intervals during which a blocking client should enforce, and rolling
completion statistics for a dashboard.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			if verbose {
				appLog.SetLevel(appLog.LevelDebug)
			}
		},
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath(), "Path to config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
}

func defaultConfigPath() string {
	if home, err := os.UserHomeDir(); err == nil {
		return home + "/.config/taskgate/config.yaml"
	}
	return "./taskgate.yaml"
}

// Execute runs the root command.
func Execute(version string) error {
	// Add subcommands here to ensure proper initialization order.
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(windowsCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(seedCmd)

	rootCmd.Version = version
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}
