package cmd

import (
	"log"

	"github.com/jswans33/james-shell-sub001/core/config"
	"github.com/spf13/cobra"
)

// initCmd writes the default configuration
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default shell configuration to the config directory.",
	Args:  cobra.ExactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		logger := log.New(cmd.ErrOrStderr(), "", 0)

		dir := cfgPath
		if dir == "" {
			dir = config.DefaultDir()
		}
		_, err := config.Initialize(dir, logger)
		return err
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
