// Package cmd wires the chathive command line.
package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

type options struct {
	envFile string
}

func NewRootCommand() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "chathive",
		Short:         "Real-time chat server with channels, presence and history",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", "", "dotenv file to load (default .env when present)")
	root.AddCommand(newServeCommand(opts), newMigrateCommand(opts))
	return root
}

// Execute runs the command selected by os.Args.
func Execute(ctx context.Context) error {
	return NewRootCommand().ExecuteContext(ctx)
}
