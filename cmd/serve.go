package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/spf13/cobra"

	"unshub/internal/app"
	"unshub/internal/config"
	"unshub/pkg/logging"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the hub",
	Long: `Starts the full hub: connections, ingestion, cache, queue
processor, publishers and the MCP query surface. Runs until interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig(configPath)
		if err != nil {
			return err
		}
		if logLevel == "info" && cfg.Logging.Level != "" {
			// The config level applies unless the flag overrode it.
			logging.Init(logging.ParseLevel(cfg.Logging.Level), os.Stderr)
		}

		hub, err := app.New(configPath, cfg)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		if err := hub.Start(ctx); err != nil {
			return err
		}

		// Tell systemd we are ready; harmless outside systemd.
		if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
			logging.Debug("Serve", "sd_notify: %v", err)
		}

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logging.Info("Serve", "received %s, shutting down", sig)

		if _, err := daemon.SdNotify(false, daemon.SdNotifyStopping); err != nil {
			logging.Debug("Serve", "sd_notify: %v", err)
		}

		stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer stopCancel()
		hub.Stop(stopCtx)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
