package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"unshub/internal/config"
	"unshub/pkg/logging"
)

var (
	version = "dev"

	configPath string
	logLevel   string
)

// SetVersion sets the version reported by the version command; main wires
// it from the build.
func SetVersion(v string) {
	if v != "" {
		version = v
	}
}

var rootCmd = &cobra.Command{
	Use:   "unshub",
	Short: "Unified Namespace data-integration hub",
	Long: `unshub ingests industrial telemetry from MQTT, Socket.IO and NATS
sources, normalises every topic into a hierarchical Unified Namespace,
stores latest and historical values and republishes selected data to
downstream sinks.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Init(logging.ParseLevel(logLevel), os.Stderr)
		if configPath == "" {
			configPath = config.GetDefaultConfigPathOrPanic()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config-path", "",
		"Configuration directory (default: ~/.config/unshub)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info",
		"Log level: debug, info, warn, error")
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
