package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/flemzord/mnemo/internal/config"
	"github.com/flemzord/mnemo/internal/security"
	"github.com/flemzord/mnemo/pkg/app"
)

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}
	cmd.AddCommand(configCheckCmd(), configShowCmd())
	return cmd
}

// configPath returns the path given as argument, then --config, then the
// discovered default.
func configPath(cmd *cobra.Command, args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	if p, _ := cmd.Flags().GetString("config"); p != "" {
		return p, nil
	}
	return app.ResolveConfigPath()
}

func configCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check [path]",
		Short: "Validate configuration and provision every module",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configPath(cmd, args)
			if err != nil {
				return err
			}
			params, err := paramsFromFlags(cmd)
			if err != nil {
				return err
			}
			params.ConfigPath = path
			params.SkipMaintenance = true
			params.LogOutput = io.Discard
			params.LogLevel = slog.LevelError

			rt, err := app.Build(cmd.Context(), params)
			if err != nil {
				return err
			}
			defer rt.Shutdown(cmd.Context())

			ids := config.Resolve(rt.Config)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Configuration OK (%d modules)\n", len(ids))
			for _, id := range ids {
				fmt.Fprintf(out, "  %s\n", id)
			}
			return nil
		},
	}
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show [path]",
		Short: "Print the expanded configuration with secrets redacted",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configPath(cmd, args)
			if err != nil {
				return err
			}
			cfg, err := config.Load(path)
			if err != nil {
				return err
			}
			data, err := redactedYAML(cfg)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

// redactedYAML renders cfg with every secret-looking value masked.
func redactedYAML(cfg *config.Config) ([]byte, error) {
	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("encoding config: %w", err)
	}
	var tree map[string]any
	if err := yaml.Unmarshal(raw, &tree); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	security.NewRedactor().RedactMap(tree)
	return yaml.Marshal(tree)
}
