package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/compozy/nutrilens/pkg/config"
	"github.com/compozy/nutrilens/pkg/logger"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const (
	defaultConfigFile = "nutrilens.yaml"
	defaultEnvFile    = ".env"
)

// RootCmd returns the nutrilens command tree.
func RootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "nutrilens",
		Short:         "Estimate meal nutrition from text or photos, grounded on a local knowledge base",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return SetupGlobalConfig(cmd)
		},
	}
	flags := root.PersistentFlags()
	flags.String("config", defaultConfigFile, "Path to the YAML configuration file")
	flags.String("env-file", defaultEnvFile, "Path to an environment file loaded before configuration")
	flags.String("log-level", "info", "Log level (debug, info, warn, error, disabled)")
	flags.Bool("log-json", false, "Emit logs as JSON")
	flags.Bool("log-source", false, "Include source locations in logs")

	root.AddCommand(
		ServeCmd(),
		IngestCmd(),
		AnalyzeCmd(),
		VersionCmd(),
	)
	return root
}

// SetupGlobalConfig loads the env file and configuration, builds the logger
// and stores both in the command context.
func SetupGlobalConfig(cmd *cobra.Command) error {
	if _, err := loadEnvFile(cmd); err != nil {
		return err
	}
	level, logJSON, logSource, err := logger.GetLoggerConfig(cmd)
	if err != nil {
		return err
	}
	log := logger.SetupLogger(level, logJSON, logSource)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = logger.ContextWithLogger(ctx, log)

	configFile, err := cmd.Flags().GetString("config")
	if err != nil {
		return fmt.Errorf("failed to get config flag: %w", err)
	}
	sources := []config.Source{config.NewYAMLProvider(configFile)}
	if overrides := cliOverrides(cmd); len(overrides) > 0 {
		sources = append(sources, config.NewCLIProvider(overrides))
	}
	cfg, err := config.NewService().Load(ctx, sources...)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	log.Debug("Configuration loaded", "config_file", configFile)
	cmd.SetContext(config.ContextWithConfig(ctx, cfg))
	return nil
}

// flagBindings maps command flags onto configuration paths.
var flagBindings = map[string]string{
	"host":           "server.host",
	"port":           "server.port",
	"data-path":      "knowledge.data_path",
	"skip-ingestion": "knowledge.ingest_on_start",
	"watch":          "knowledge.watch",
}

// cliOverrides collects explicitly set, bound flags.
func cliOverrides(cmd *cobra.Command) map[string]any {
	overrides := map[string]any{}
	cmd.Flags().Visit(func(f *pflag.Flag) {
		path, ok := flagBindings[f.Name]
		if !ok {
			return
		}
		switch f.Name {
		case "port":
			if v, err := strconv.Atoi(f.Value.String()); err == nil {
				overrides[path] = v
			}
		case "skip-ingestion":
			if v, err := strconv.ParseBool(f.Value.String()); err == nil {
				overrides[path] = !v
			}
		case "watch":
			if v, err := strconv.ParseBool(f.Value.String()); err == nil {
				overrides[path] = v
			}
		default:
			overrides[path] = f.Value.String()
		}
	})
	return overrides
}

// loadEnvFile loads the env file when present. A missing file is not an error.
func loadEnvFile(cmd *cobra.Command) (string, error) {
	envFile, err := cmd.Flags().GetString("env-file")
	if err != nil {
		return "", fmt.Errorf("failed to get env-file flag: %w", err)
	}
	if envFile == "" {
		return "", nil
	}
	absPath, err := filepath.Abs(filepath.Clean(envFile))
	if err != nil {
		return "", fmt.Errorf("failed to resolve env file path: %w", err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return absPath, nil
		}
		return "", fmt.Errorf("failed to stat env file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("env file path '%s' is not a regular file", envFile)
	}
	if err := godotenv.Load(absPath); err != nil {
		return "", fmt.Errorf("failed to load env file %s: %w", absPath, err)
	}
	return absPath, nil
}

func configFrom(cmd *cobra.Command) *config.Config {
	return config.FromContext(cmd.Context())
}
