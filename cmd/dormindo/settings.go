package main

import (
	"context"
	"fmt"
	"io"

	"github.com/fentz26/dormindo/internal/client"
	"github.com/fentz26/dormindo/internal/models"
	"github.com/spf13/cobra"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show or change timer settings",
}

var settingsGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Show the current settings",
	Args:  cobra.NoArgs,
	RunE:  runSettingsGet,
}

var settingsSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Change settings",
	Args:  cobra.NoArgs,
	RunE:  runSettingsSet,
}

var (
	defaultMinutes int
	notifications  bool
)

func init() {
	settingsCmd.AddCommand(settingsGetCmd, settingsSetCmd)

	settingsSetCmd.Flags().IntVar(&defaultMinutes, "default-minutes", 0, "Default timer duration in minutes")
	settingsSetCmd.Flags().BoolVar(&notifications, "notifications", true, "Show the countdown notification")
}

func runSettingsGet(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
	defer cancel()

	s, err := client.New(apiAddr).GetSettings(ctx)
	if err != nil {
		return err
	}
	printSettings(cmd.OutOrStdout(), s)
	return nil
}

func runSettingsSet(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	if !flags.Changed("default-minutes") && !flags.Changed("notifications") {
		return fmt.Errorf("nothing to change: pass --default-minutes or --notifications")
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
	defer cancel()

	c := client.New(apiAddr)
	s, err := c.GetSettings(ctx)
	if err != nil {
		return err
	}
	if flags.Changed("default-minutes") {
		s.DefaultDurationMinutes = defaultMinutes
	}
	if flags.Changed("notifications") {
		s.NotificationsEnabled = notifications
	}

	s, err = c.UpdateSettings(ctx, s)
	if err != nil {
		return err
	}
	printSettings(cmd.OutOrStdout(), s)
	return nil
}

func printSettings(w io.Writer, s models.Settings) {
	fmt.Fprintf(w, "Default duration: %d min\n", s.DefaultDurationMinutes)
	fmt.Fprintf(w, "Notifications:    %t\n", s.NotificationsEnabled)
}
