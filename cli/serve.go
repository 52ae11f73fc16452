package cli

import (
	"context"
	"fmt"

	"github.com/compozy/nutrilens/engine/infra/server"
	"github.com/compozy/nutrilens/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

// ServeCmd starts the HTTP API.
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "serve",
		Aliases: []string{"start"},
		Short:   "Start the analysis API server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd)
		},
	}
	cmd.Flags().String("host", "", "Host interface to bind")
	cmd.Flags().Int("port", 0, "Port to listen on")
	cmd.Flags().Bool("skip-ingestion", false, "Do not ingest the knowledge directory on start")
	cmd.Flags().Bool("watch", false, "Re-ingest when files in the knowledge directory change")
	return cmd
}

func runServe(cmd *cobra.Command) error {
	ctx := cmd.Context()
	cfg := configFrom(cmd)
	if shouldUseColor(cmd.ErrOrStderr()) {
		fmt.Fprintln(cmd.ErrOrStderr(), renderHeader())
	}
	level, _, _, err := logger.GetLoggerConfig(cmd)
	if err == nil && level != string(logger.DebugLevel) {
		gin.SetMode(gin.ReleaseMode)
	}
	deps, err := server.BuildDependencies(ctx, cfg, server.BuildOptions{WithModels: true})
	if err != nil {
		return fmt.Errorf("failed to build dependencies: %w", err)
	}
	defer func() {
		if err := deps.Close(context.WithoutCancel(ctx)); err != nil {
			logger.FromContext(ctx).Error("Failed to release resources", "error", err)
		}
	}()
	srv, err := server.NewServer(ctx, deps)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	return srv.Run(ctx)
}
