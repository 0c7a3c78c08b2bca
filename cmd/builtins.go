package cmd

import (
	"fmt"

	"github.com/jswans33/james-shell-sub001/core"
	"github.com/spf13/cobra"
)

// builtinsCmd lists the commands that run inside the shell.
var builtinsCmd = &cobra.Command{
	Use:   "builtins",
	Short: "Show the builtin commands of the shell.",
	Args:  cobra.ExactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, name := range core.BuiltinNames() {
			fmt.Fprintln(cmd.OutOrStdout(), name)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(builtinsCmd)
}
