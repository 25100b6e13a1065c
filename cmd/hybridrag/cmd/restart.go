package cmd

import (
	"github.com/spf13/cobra"
)

func newRestartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restart",
		Short: "Restart the hybridrag daemon",
		Long:  `Stop the running hybridrag daemon, if any, then start a fresh one.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := runStop(cmd); err != nil {
				return err
			}
			return runStart(cmd, false)
		},
	}
}
