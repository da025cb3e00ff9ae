package cli

import (
	"github.com/spf13/cobra"

	"taskgate/internal/config"
	appLog "taskgate/internal/log"
	"taskgate/internal/store"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Populate the store with demo tasks",
	RunE: func(cmd *cobra.Command, _ []string) error {
		conf, err := config.Load(configPath)
		if err != nil {
			return err
		}

		st, err := store.Open(conf.DBPath)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Seed(cmd.Context()); err != nil {
			return err
		}
		appLog.Info("seeded demo tasks", "db_path", conf.DBPath)
		return nil
	},
}
