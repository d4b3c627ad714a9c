// Package main is the entry point for the mnemo CLI.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/flemzord/mnemo/internal/core"
	"github.com/flemzord/mnemo/pkg/app"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "mnemo",
		Short:         "Long-term memory and context assembly for conversational agents",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringP("config", "c", "", "Path to configuration file")
	root.PersistentFlags().String("data-dir", "", "Persistent data directory (default $XDG_DATA_HOME/mnemo)")
	root.PersistentFlags().String("log-level", "info", "Log level: debug, info, warn, error")
	root.AddCommand(versionCmd(), startCmd(), configCmd(), initCmd(), serviceCmd(), mcpCmd())
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and compiled modules",
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "mnemo %s (commit: %s, built: %s)\n", version, commit, date)
			mods := core.GetModules()
			if len(mods) == 0 {
				fmt.Fprintln(out, "\nNo compiled modules.")
				return
			}
			fmt.Fprintln(out, "\nCompiled modules:")
			for _, mod := range mods {
				fmt.Fprintf(out, "  %s\n", mod.ID)
			}
		},
	}
}

func startCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start mnemo with all configured modules",
		RunE: func(cmd *cobra.Command, _ []string) error {
			params, err := paramsFromFlags(cmd)
			if err != nil {
				return err
			}
			return app.Run(context.Background(), params)
		},
	}
}

// paramsFromFlags reads the persistent flags shared by every command that
// builds a runtime.
func paramsFromFlags(cmd *cobra.Command) (app.Params, error) {
	cfgPath, _ := cmd.Flags().GetString("config")
	dataDir, _ := cmd.Flags().GetString("data-dir")
	levelName, _ := cmd.Flags().GetString("log-level")

	var level slog.Level
	if err := level.UnmarshalText([]byte(levelName)); err != nil {
		return app.Params{}, fmt.Errorf("invalid --log-level %q: %w", levelName, err)
	}
	return app.Params{
		ConfigPath: cfgPath,
		DataDir:    dataDir,
		LogLevel:   level,
		Version:    version,
		Commit:     commit,
		Date:       date,
	}, nil
}
