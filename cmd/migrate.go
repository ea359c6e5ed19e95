package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"chathive/internal/config"
)

func newMigrateCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the store schema and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(opts.envFile)
			if err != nil {
				return err
			}
			log := config.NewLogger(cfg.LogLevel, cfg.LogFormat, os.Stdout)

			st, err := openStore(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer st.Close()

			if err := st.Migrate(cmd.Context()); err != nil {
				return err
			}
			log.Info("Schema ready", "store", cfg.StoreDriver)
			return nil
		},
	}
}
