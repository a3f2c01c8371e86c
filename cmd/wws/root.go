package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wws",
		Short: "Serve a directory of files as an HTTP API backed by WebAssembly workers",
	}

	cmd.AddCommand(newServeCommand())
	cmd.AddCommand(newRuntimesCommand())
	return cmd
}
