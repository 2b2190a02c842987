package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"starlinks/internal/logger"
	"starlinks/internal/settings"
)

// NewSettingsCmd creates the settings command for prompts and model overrides
func NewSettingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Manage prompts and model settings",
		Long: `Manage the key to JSON settings read at the start of each run.

Examples:
  starlinks settings seed
  starlinks settings list
  starlinks settings get puzzle.user_prompt
  starlinks settings set ai.model gemini-2.5-pro
  starlinks settings set puzzle.system_prompt --file prompt.txt`,
	}

	cmd.AddCommand(newSettingsSeedCmd())
	cmd.AddCommand(newSettingsListCmd())
	cmd.AddCommand(newSettingsGetCmd())
	cmd.AddCommand(newSettingsSetCmd())

	return cmd
}

func newSettingsSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Write default prompts for keys that are not set",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSettingsSeed(cmd.Context())
		},
	}
}

func newSettingsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every setting key",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSettingsList(cmd.Context())
		},
	}
}

func newSettingsGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get KEY",
		Short: "Print the JSON value of a setting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSettingsGet(cmd.Context(), args[0])
		},
	}
}

func newSettingsSetCmd() *cobra.Command {
	var (
		raw  bool
		file string
	)

	cmd := &cobra.Command{
		Use:   "set KEY [VALUE]",
		Short: "Store a setting",
		Long: `Store a setting. VALUE is stored as a JSON string unless --raw is given,
in which case it must already be valid JSON. --file reads the value from a file.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var value string
			switch {
			case file != "":
				data, err := os.ReadFile(file)
				if err != nil {
					return fmt.Errorf("failed to read %s: %w", file, err)
				}
				value = string(data)
			case len(args) == 2:
				value = args[1]
			default:
				return fmt.Errorf("a value or --file is required")
			}
			return runSettingsSet(cmd.Context(), args[0], value, raw)
		},
	}

	cmd.Flags().BoolVar(&raw, "raw", false, "Treat VALUE as JSON")
	cmd.Flags().StringVar(&file, "file", "", "Read the value from a file")

	return cmd
}

func runSettingsSeed(ctx context.Context) error {
	db, err := getDatabase(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	written, err := settings.Seed(ctx, db.Settings())
	if err != nil {
		return fmt.Errorf("failed to seed settings: %w", err)
	}

	if len(written) == 0 {
		fmt.Println("All default settings already present")
		return nil
	}
	for _, key := range written {
		fmt.Printf("✅ %s\n", key)
	}
	logger.Info("Seeded settings", "count", len(written))
	return nil
}

func runSettingsList(ctx context.Context) error {
	db, err := getDatabase(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	all, err := db.Settings().All(ctx)
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(all))
	for key := range all {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		fmt.Printf("%-40s %d bytes\n", key, len(all[key]))
	}
	return nil
}

func runSettingsGet(ctx context.Context, key string) error {
	db, err := getDatabase(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	value, err := db.Settings().Get(ctx, key)
	if err != nil {
		return err
	}

	var s string
	if err := json.Unmarshal(value, &s); err == nil {
		fmt.Println(s)
		return nil
	}
	fmt.Println(string(value))
	return nil
}

func runSettingsSet(ctx context.Context, key, value string, raw bool) error {
	encoded, err := encodeSetting(value, raw)
	if err != nil {
		return err
	}

	db, err := getDatabase(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Settings().Set(ctx, key, encoded); err != nil {
		return err
	}
	fmt.Printf("✅ %s updated\n", key)
	return nil
}

func encodeSetting(value string, raw bool) (json.RawMessage, error) {
	if raw {
		if !json.Valid([]byte(value)) {
			return nil, fmt.Errorf("value is not valid JSON")
		}
		return json.RawMessage(value), nil
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("failed to encode value: %w", err)
	}
	return encoded, nil
}
