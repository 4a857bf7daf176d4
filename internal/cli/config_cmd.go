package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Dicklesworthstone/missionctl/internal/config"
)

func configPath() string {
	if cfgFile != "" {
		return config.ExpandHome(cfgFile)
	}
	return config.DefaultPath()
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Create default configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.CreateDefault(configPath())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created config file: %s\n", path)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print configuration file path",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), configPath())
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Long: `Prints the configuration after defaults, the config file, .env and
environment overrides have been applied, and reports validation problems.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath())
			if err != nil {
				return err
			}
			if err := config.Print(cfg, cmd.OutOrStdout()); err != nil {
				return err
			}
			if errs := config.Validate(cfg); len(errs) > 0 {
				return fmt.Errorf("invalid config: %w", errors.Join(errs...))
			}
			return nil
		},
	})

	return cmd
}
