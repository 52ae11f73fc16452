package cli

import (
	"context"
	"fmt"

	"github.com/compozy/nutrilens/engine/infra/server"
	"github.com/compozy/nutrilens/pkg/logger"
	"github.com/spf13/cobra"
)

// IngestCmd runs one ingestion pass over the knowledge directory.
func IngestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest new files from the knowledge directory and print the run summary",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runIngest(cmd)
		},
	}
	cmd.Flags().String("data-path", "", "Knowledge directory to scan")
	return cmd
}

func runIngest(cmd *cobra.Command) error {
	ctx := cmd.Context()
	deps, err := server.BuildDependencies(ctx, configFrom(cmd), server.BuildOptions{})
	if err != nil {
		return fmt.Errorf("failed to build dependencies: %w", err)
	}
	defer func() {
		if err := deps.Close(context.WithoutCancel(ctx)); err != nil {
			logger.FromContext(ctx).Error("Failed to release resources", "error", err)
		}
	}()
	summary, err := deps.Ingest.Run(ctx)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), summary)
}
