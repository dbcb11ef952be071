package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/at-ishikawa/learnsync/internal/learning"
)

// apiKeyEnv holds the provider API key; it is never taken from a flag.
const apiKeyEnv = "LEARNSYNC_API_KEY"

func newPrefsCommand() *cobra.Command {
	prefsCommand := &cobra.Command{
		Use:   "prefs",
		Short: "Manage preferences and the LLM provider settings",
	}
	prefsCommand.AddCommand(newPrefsSetCommand(), newPrefsAPICommand(), newPrefsShowCommand())
	return prefsCommand
}

func newPrefsSetCommand() *cobra.Command {
	var update learning.UserPreferences
	level := newLevelFlag()
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Change preferences; flags that are not given keep their value",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			prefs, err := a.storage.GetUserPreferences(cmd.Context())
			if err != nil {
				return err
			}
			if prefs == nil {
				prefs = &learning.UserPreferences{}
			}

			flags := cmd.Flags()
			if flags.Changed("theme") {
				prefs.Theme = update.Theme
			}
			if flags.Changed("language") {
				prefs.Language = update.Language
			}
			if flags.Changed("level") {
				prefs.DefaultLevel = learning.Level(level.String())
			}
			if flags.Changed("auto-sync") {
				prefs.AutoSync = update.AutoSync
			}
			if flags.Changed("sync-optional") {
				prefs.SyncIncludeOptional = update.SyncIncludeOptional
			}

			if err := a.storage.SaveUserPreferences(cmd.Context(), prefs); err != nil {
				return err
			}
			_, _ = successColor.Fprintln(cmd.OutOrStdout(), "saved preferences")
			return nil
		}),
	}
	flags := cmd.Flags()
	flags.StringVar(&update.Theme, "theme", "", "UI theme")
	flags.StringVar(&update.Language, "language", "", "UI language")
	flags.Var(level, "level", "Default learner level: beginner or expert")
	flags.BoolVar(&update.AutoSync, "auto-sync", false, "Sync in the background")
	flags.BoolVar(&update.SyncIncludeOptional, "sync-optional", false, "Include optional data in full syncs")
	return cmd
}

func newPrefsAPICommand() *cobra.Command {
	var cfg learning.APIConfig
	cmd := &cobra.Command{
		Use:   "api",
		Short: "Set the LLM provider; the API key is read from " + apiKeyEnv,
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			cfg.APIKey = os.Getenv(apiKeyEnv)
			if err := a.storage.SaveAPIConfig(cmd.Context(), &cfg); err != nil {
				return err
			}
			_, _ = successColor.Fprintf(cmd.OutOrStdout(), "saved provider %s\n", cfg.Provider)
			return nil
		}),
	}
	flags := cmd.Flags()
	flags.StringVar(&cfg.Provider, "provider", "", "Provider name")
	flags.StringVar(&cfg.Model, "model", "", "Model name")
	flags.StringVar(&cfg.BaseURL, "base-url", "", "Custom API endpoint")
	return cmd
}

func newPrefsShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show preferences and provider settings",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			prefs, err := a.storage.GetUserPreferences(cmd.Context())
			if err != nil {
				return err
			}
			apiConfig, err := a.storage.GetAPIConfig(cmd.Context())
			if err != nil {
				return err
			}

			out := map[string]any{}
			if prefs != nil {
				out["preferences"] = prefs
			}
			if apiConfig != nil {
				masked := *apiConfig
				if masked.APIKey != "" {
					masked.APIKey = "****"
				}
				out["api_config"] = map[string]any{
					"provider": masked.Provider,
					"model":    masked.Model,
					"base_url": masked.BaseURL,
					"api_key":  masked.APIKey,
				}
			}
			if len(out) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "no preferences saved")
				return nil
			}
			return printYAML(cmd.OutOrStdout(), out)
		}),
	}
}
