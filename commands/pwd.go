package commands

import (
	"fmt"
	"path/filepath"
)

// Pwd prints the working directory.
func Pwd(inv Invocation) int {
	cmd := &SimpleCommand{
		Use:   "pwd [-LP]",
		Short: "Print the name of the current working directory.",
	}
	opts := cmd.Flags()
	opts.Bool('L', "print the value of $PWD")
	physical := opts.Bool('P', "print the physical directory, without any symbolic links")

	return cmd.Run(inv, func() int {
		dir := inv.Getenv("PWD")
		if *physical {
			resolved, err := filepath.EvalSymlinks(dir)
			if err != nil {
				fmt.Fprintf(inv.Stderr(), "pwd: %v\n", err)
				return 1
			}
			dir = resolved
		}
		fmt.Fprintln(inv.Stdout(), dir)
		return 0
	})
}

func init() {
	addCmd("pwd", Pwd)
}
