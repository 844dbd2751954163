package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/fentz26/dormindo/internal/config"
	"github.com/spf13/cobra"
)

var (
	configInitPath  string
	configInitForce bool
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the daemon configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file with default values",
	Args:  cobra.NoArgs,
	RunE:  runConfigInit,
}

func init() {
	configCmd.AddCommand(configInitCmd)

	configInitCmd.Flags().StringVar(&configInitPath, "path", config.DefaultPath(), "Where to write the config file")
	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "Overwrite an existing file")
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	if !configInitForce {
		_, err := os.Stat(configInitPath)
		if err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", configInitPath)
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}

	if err := config.Save(configInitPath, config.DefaultConfig()); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", configInitPath)
	return nil
}
