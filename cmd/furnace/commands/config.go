package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/forge/furnace-sub000/internal/config"
)

var (
	initRepositoryPath string
	initForce          bool
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Create and check configuration files",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration with one mutable repository",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := os.Stat(configPath); err == nil && !initForce {
			return fmt.Errorf("%s already exists (use --force to overwrite)", configPath)
		}
		cfg := config.Default()
		cfg.Repositories = []config.RepositoryConfig{{
			Name:    "local",
			Path:    initRepositoryPath,
			Mutable: true,
		}}
		if err := config.Write(configPath, &cfg); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", configPath)
		return nil
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s is valid: %d repositories, %d views\n",
			configPath, len(cfg.Repositories), len(cfg.Views))
		return nil
	},
}

func init() {
	configInitCmd.Flags().StringVar(&initRepositoryPath, "repository-path", "addons",
		"Directory of the local repository, relative to the configuration file")
	configInitCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing configuration")

	configCmd.AddCommand(configInitCmd, configValidateCmd)
}
