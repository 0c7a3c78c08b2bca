package main

import "github.com/jswans33/james-shell-sub001/cmd"

func main() {
	cmd.Execute()
}
