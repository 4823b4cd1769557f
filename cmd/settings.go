// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/Thermoquad/m110/pkg/config"
	"github.com/Thermoquad/m110/pkg/settings"
	"github.com/spf13/cobra"
)

var settingsJSON bool

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show or change printer settings",
	Long: `Show or change the tunable printer settings.

Settings are stored in a single file (JSON, or CBOR when the name ends in
.cbor). Changes are validated before they are written; an invalid value
changes nothing. Density and speed changes are sent to the printer before the
next print.`,
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the current settings",
	Args:  cobra.NoArgs,
	RunE:  runSettingsShow,
}

var settingsSetCmd = &cobra.Command{
	Use:   "set KEY=VALUE...",
	Short: "Change one or more settings",
	Example: `  m110 settings set x_offset_bits=8 y_offset_rows=-2
  m110 settings set density=12 anti_drift_interval_ms=3000`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSettingsSet,
}

var settingsResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Restore the default settings",
	Args:  cobra.NoArgs,
	RunE:  runSettingsReset,
}

func init() {
	rootCmd.AddCommand(settingsCmd)
	settingsCmd.AddCommand(settingsShowCmd, settingsSetCmd, settingsResetCmd)
	settingsShowCmd.Flags().BoolVar(&settingsJSON, "json", false, "Print as JSON")
}

func settingsStore(cmd *cobra.Command) (*settings.Store, *config.Config, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	return settings.NewStore(cfg.Settings.Path), cfg, nil
}

func openStore(cmd *cobra.Command) (*settings.Store, settings.Settings, error) {
	store, cfg, err := settingsStore(cmd)
	if err != nil {
		return nil, settings.Settings{}, err
	}
	s, err := loadSettings(store, newLogger(os.Stderr, cfg.LogLevel))
	return store, s, err
}

func runSettingsShow(cmd *cobra.Command, args []string) error {
	store, s, err := openStore(cmd)
	if err != nil {
		return err
	}

	if settingsJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	}

	printSettings(cmd, store.Path(), s)
	return nil
}

func printSettings(cmd *cobra.Command, path string, s settings.Settings) {
	data, _ := json.Marshal(s)
	var values map[string]json.RawMessage
	json.Unmarshal(data, &values)

	defaults, _ := json.Marshal(settings.Default())
	var defaultValues map[string]json.RawMessage
	json.Unmarshal(defaults, &defaultValues)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Settings: %s\n\n", path)
	for _, key := range settings.Keys() {
		marker := ""
		if string(values[key]) != string(defaultValues[key]) {
			marker = fmt.Sprintf("  (default %s)", defaultValues[key])
		}
		fmt.Fprintf(out, "  %-24s %8s%s\n", key, values[key], marker)
	}
}

func runSettingsSet(cmd *cobra.Command, args []string) error {
	store, s, err := openStore(cmd)
	if err != nil {
		return err
	}

	patch, err := settings.ParseAssignments(args)
	if err != nil {
		return err
	}
	next, unknown, err := s.Apply(patch)
	for _, key := range unknown {
		fmt.Fprintf(os.Stderr, "warning: unknown setting %q ignored (known: run 'm110 settings show')\n", key)
	}
	if err != nil {
		return err
	}
	if err := store.Save(next); err != nil {
		return err
	}

	printSettings(cmd, store.Path(), next)
	return nil
}

func runSettingsReset(cmd *cobra.Command, args []string) error {
	// The current file may be unreadable; that is a reason to reset.
	store, _, err := settingsStore(cmd)
	if err != nil {
		return err
	}
	if err := store.Save(settings.Default()); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Settings reset to defaults: %s\n", store.Path())
	return nil
}
