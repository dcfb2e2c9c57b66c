package main

import (
	"fmt"

	"github.com/mantonx/coursevault/internal/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newConfigCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration and database URL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			shown := *cfg
			if shown.Database.Password != "" {
				shown.Database.Password = "xxxxx"
			}
			data, err := yaml.Marshal(&shown)
			if err != nil {
				return fmt.Errorf("failed to encode configuration: %w", err)
			}

			out := cmd.OutOrStdout()
			if configFile != "" {
				fmt.Fprintf(out, "# config file: %s\n", configFile)
			}
			fmt.Fprint(out, string(data))
			fmt.Fprintf(out, "\n# database url: %s\n", config.DatabaseURL(shown.Database))
			return nil
		},
	}
}
