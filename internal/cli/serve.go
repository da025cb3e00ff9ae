package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"taskgate/internal/config"
	appLog "taskgate/internal/log"
	"taskgate/internal/store"
	"taskgate/internal/web"
)

var listenFlag string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API with cron-driven window refresh",
	RunE: func(cmd *cobra.Command, _ []string) error {
		conf, err := config.Load(configPath)
		if err != nil {
			appLog.Error("failed to load config", err, "config_path", configPath)
			return err
		}
		// CLI --listen overrides config file listen if provided.
		if listenFlag != "" {
			conf.Listen = listenFlag
		}

		appLog.Info("effective config",
			"listen", conf.Listen,
			"timezone", conf.Timezone,
			"db_path", conf.DBPath,
			"refresh", conf.RefreshCron,
			"pre_grace", conf.PreGraceMinutes,
			"post_grace", conf.PostGraceMinutes,
			"duration", conf.DurationMinutes,
			"focus_tags", conf.FocusTags,
		)

		st, err := store.Open(conf.DBPath)
		if err != nil {
			appLog.Error("failed to open store", err, "db_path", conf.DBPath)
			return err
		}
		defer st.Close()

		// Root context with cancellation on SIGINT/SIGTERM.
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			sig := <-sigCh
			appLog.Info("signal received, shutting down", "signal", sig.String())
			cancel()
		}()

		err = web.Serve(ctx, conf, st)
		appLog.Info("taskgate exiting")
		return err
	},
}

func init() {
	serveCmd.Flags().StringVar(&listenFlag, "listen", "", "HTTP listen address (overrides config if set)")
}
