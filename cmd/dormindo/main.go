package main

import (
	"fmt"
	"os"

	"github.com/fentz26/dormindo/internal/controlplane"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "dormindo",
	Short: "Dormindo - sleep timer for media playback",
	Long:  `Dormindo counts down and stops whatever media is playing when the timer runs out.`,
	// No RunE - defaults to showing help when no subcommand is provided
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "dormindo %s\n", controlplane.Version)
	},
}

var (
	apiAddr string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&apiAddr, "api", "http://127.0.0.1:7470", "API server address")

	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(timerCmds()...)
	rootCmd.AddCommand(settingsCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(tuiCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
