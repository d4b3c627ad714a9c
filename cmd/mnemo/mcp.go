package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/flemzord/mnemo/internal/mcpserver"
	"github.com/flemzord/mnemo/pkg/app"
)

func mcpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the memory tools over MCP on stdin/stdout",
		Long: "Serve remember, observe, recall and assemble_context as Model Context Protocol tools.\n" +
			"Logs go to stderr; the HTTP gateway and maintenance jobs are not started.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			params, err := paramsFromFlags(cmd)
			if err != nil {
				return err
			}
			params.LogOutput = os.Stderr
			params.SkipModules = []string{"gateway.http"}
			params.SkipMaintenance = true

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			rt, err := app.Build(ctx, params)
			if err != nil {
				return err
			}
			if err := rt.Start(); err != nil {
				rt.Shutdown(context.Background())
				return err
			}
			defer rt.Shutdown(context.Background())

			srv := mcpserver.New(rt.Engine.Pipeline, version, rt.Logger)
			if err := srv.ServeStdio(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}
