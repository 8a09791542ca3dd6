package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/airone01/isod/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and manage the configuration file",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Print the effective configuration",
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg := globalCfg
				if cfg == nil {
					var err error
					cfg, err = config.LoadOrDefault(cfgPath)
					if err != nil {
						return err
					}
				}
				data, err := yaml.Marshal(cfg)
				if err != nil {
					return fmt.Errorf("marshaling config: %w", err)
				}
				fmt.Fprint(cmd.OutOrStdout(), string(data))
				return nil
			},
		},
		&cobra.Command{
			Use:   "init",
			Short: "Write a default configuration file",
			RunE: func(cmd *cobra.Command, args []string) error {
				path := cfgPath
				if path == "" {
					path = config.DefaultPath()
				}
				if err := config.DefaultConfig().Save(path); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
				return nil
			},
		},
		&cobra.Command{
			Use:   "path",
			Short: "Print the configuration file location",
			RunE: func(cmd *cobra.Command, args []string) error {
				path := cfgPath
				if path == "" {
					found, err := config.FindConfigFile()
					if err != nil {
						fmt.Fprintf(cmd.OutOrStdout(), "none found (default: %s)\n", config.DefaultPath())
						return nil
					}
					path = found
				}
				fmt.Fprintln(cmd.OutOrStdout(), path)
				return nil
			},
		},
	)

	return cmd
}
