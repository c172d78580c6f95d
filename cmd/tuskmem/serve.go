package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sandevgo/tuskmem/internal/transport/mcpserver"
	"github.com/sandevgo/tuskmem/pkg/log"
	"github.com/sandevgo/tuskmem/pkg/srv"
	"github.com/spf13/cobra"
)

var serveReadOnly bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve memory tools over MCP stdio",
	Long: `Starts the MCP server on stdin/stdout together with the background
extraction queue and the re-embedding worker. Logs go to stderr.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		// logger setup
		var flushLog func()
		ctx, flushLog = setupLogger(ctx)
		defer flushLog()

		logger := log.FromCtx(ctx)
		logger.Info().Msg("starting tuskmem")

		app, err := NewApp(ctx, !serveReadOnly)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		services := app.Services()
		srv.StartServices(ctx, cancel, services)

		deps := mcpserver.Deps{
			Store:    app.Store,
			Searcher: app.Searcher,
			Fetcher:  app.Fetcher,
		}
		if app.Extractor != nil {
			deps.Extractor = app.Extractor
			deps.Queue = app.Queue
		}

		go func() {
			// the client closing stdin ends the session
			if err := mcpserver.Serve(ctx, mcpserver.New(deps), os.Stdin, os.Stdout); err != nil && ctx.Err() == nil {
				logger.Error().Err(err).Msg("mcp server stopped")
			}
			cancel()
		}()

		// Wait for shutdown signal
		srv.ShutdownServices(ctx, services)
		logger.Info().Msg("tuskmem has been shut down gracefully")

		return nil
	},
}

func init() {
	serveCmd.Flags().BoolVar(&serveReadOnly, "read-only", false, "do not register the extraction tools")
	rootCmd.AddCommand(serveCmd)
}
