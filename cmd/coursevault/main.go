package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configFile string

func newRootCommand() *cobra.Command {
	rootCommand := &cobra.Command{
		Use:           "coursevault",
		Short:         "Course library server and scanner",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCommand.PersistentFlags().StringVar(&configFile, "config", os.Getenv("COURSEVAULT_CONFIG_PATH"), "path to a yaml or json config file")

	rootCommand.AddCommand(
		newServeCommand(),
		newScanCommand(),
		newImportCommand(),
		newConfigCommand(),
	)
	return rootCommand
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
