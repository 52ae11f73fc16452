package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compozy/nutrilens/pkg/config"
)

// 1x1 PNG
var pngPixel = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a,
	0x00, 0x00, 0x00, 0x0d, 0x49, 0x48, 0x44, 0x52,
	0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0x15, 0xc4, 0x89,
}

func writeLocalConfig(t *testing.T, dataPath string) string {
	t.Helper()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "nutrilens.yaml")
	body := strings.Join([]string{
		"embedder:",
		"  provider: hashing",
		"  dimension: 32",
		"vector_db:",
		"  provider: filesystem",
		"  path: " + filepath.Join(dir, "vectors.json"),
		"knowledge:",
		"  data_path: " + dataPath,
		"  digest_provider: file",
		"  digest_path: " + filepath.Join(dir, "digests.log"),
		"monitoring:",
		"  enabled: false",
		"",
	}, "\n")
	require.NoError(t, os.WriteFile(cfgPath, []byte(body), 0o600))
	return cfgPath
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := RootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--env-file", "", "--log-level", "disabled"}, args...))
	err := cmd.ExecuteContext(t.Context())
	return out.String(), err
}

func TestSetupGlobalConfig(t *testing.T) {
	t.Run("Should load YAML and inject it into the command context", func(t *testing.T) {
		cfgPath := writeLocalConfig(t, "/srv/knowledge")
		cmd := RootCmd()
		cmd.SetContext(t.Context())
		require.NoError(t, cmd.PersistentFlags().Set("env-file", ""))
		require.NoError(t, cmd.PersistentFlags().Set("config", cfgPath))
		require.NoError(t, SetupGlobalConfig(cmd))
		cfg := config.FromContext(cmd.Context())
		assert.Equal(t, "hashing", cfg.Embedder.Provider)
		assert.Equal(t, "/srv/knowledge", cfg.Knowledge.DataPath)
	})

	t.Run("Should apply explicitly set command flags over YAML", func(t *testing.T) {
		cfgPath := writeLocalConfig(t, "/srv/knowledge")
		cmd := ServeCmd()
		cmd.Flags().AddFlagSet(RootCmd().PersistentFlags())
		cmd.SetContext(t.Context())
		require.NoError(t, cmd.Flags().Set("env-file", ""))
		require.NoError(t, cmd.Flags().Set("config", cfgPath))
		require.NoError(t, cmd.Flags().Set("port", "9123"))
		require.NoError(t, cmd.Flags().Set("skip-ingestion", "true"))
		require.NoError(t, SetupGlobalConfig(cmd))
		cfg := config.FromContext(cmd.Context())
		assert.Equal(t, 9123, cfg.Server.Port)
		assert.False(t, cfg.Knowledge.IngestOnStart)
	})

	t.Run("Should load variables from the env file", func(t *testing.T) {
		dir := t.TempDir()
		envPath := filepath.Join(dir, ".env")
		require.NoError(t, os.WriteFile(envPath, []byte("NUTRILENS_SERVER_PORT=9555\n"), 0o600))
		t.Setenv("NUTRILENS_SERVER_PORT", "")
		require.NoError(t, os.Unsetenv("NUTRILENS_SERVER_PORT"))
		cmd := RootCmd()
		cmd.SetContext(t.Context())
		require.NoError(t, cmd.PersistentFlags().Set("env-file", envPath))
		require.NoError(t, cmd.PersistentFlags().Set("config", filepath.Join(dir, "absent.yaml")))
		require.NoError(t, SetupGlobalConfig(cmd))
		assert.Equal(t, 9555, config.FromContext(cmd.Context()).Server.Port)
	})
}

func TestIngestCmd(t *testing.T) {
	t.Run("Should ingest new files once and print the summary", func(t *testing.T) {
		dataPath := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dataPath, "rice.txt"),
			[]byte("white rice, cooked: 130 kcal per 100 g"), 0o600))
		cfgPath := writeLocalConfig(t, dataPath)

		out, err := execute(t, "--config", cfgPath, "ingest")
		require.NoError(t, err)
		var first map[string]any
		require.NoError(t, json.Unmarshal([]byte(out), &first))
		assert.EqualValues(t, 1, first["ingested"])

		out, err = execute(t, "--config", cfgPath, "ingest")
		require.NoError(t, err)
		var second map[string]any
		require.NoError(t, json.Unmarshal([]byte(out), &second))
		assert.EqualValues(t, 0, second["ingested"])
		assert.EqualValues(t, 1, second["skipped_duplicate"])
	})

	t.Run("Should fail when the knowledge directory is missing", func(t *testing.T) {
		cfgPath := writeLocalConfig(t, filepath.Join(t.TempDir(), "absent"))
		_, err := execute(t, "--config", cfgPath, "ingest")
		assert.Error(t, err)
	})
}

func TestAnalyzeCmd(t *testing.T) {
	t.Run("Should require text or an image", func(t *testing.T) {
		cfgPath := writeLocalConfig(t, t.TempDir())
		_, err := execute(t, "--config", cfgPath, "analyze")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "--text")
	})
}

func TestResolveImage(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/meal.png", pngPixel, 0o644))
	require.NoError(t, afero.WriteFile(fs, "/notes.txt", []byte("just text"), 0o644))

	t.Run("Should turn a local image into a data URL", func(t *testing.T) {
		got, err := resolveImage(fs, "/meal.png")
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(got, "data:image/png;base64,"))
	})

	t.Run("Should pass remote URLs through", func(t *testing.T) {
		got, err := resolveImage(fs, "https://example.com/meal.jpg")
		require.NoError(t, err)
		assert.Equal(t, "https://example.com/meal.jpg", got)
	})

	t.Run("Should reject files that are not images", func(t *testing.T) {
		_, err := resolveImage(fs, "/notes.txt")
		assert.ErrorContains(t, err, "not an image")
	})

	t.Run("Should return empty for no argument", func(t *testing.T) {
		got, err := resolveImage(fs, "  ")
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func TestWriteJSON(t *testing.T) {
	t.Run("Should print indented JSON without color", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, writeJSON(&buf, map[string]int{"chunks": 3}, false))
		assert.Equal(t, "{\n  \"chunks\": 3\n}\n", buf.String())
	})

	t.Run("Should not use color for non-terminal writers", func(t *testing.T) {
		assert.False(t, shouldUseColor(&bytes.Buffer{}))
	})
}

func TestRenderHeader(t *testing.T) {
	t.Run("Should render a multi-line logo", func(t *testing.T) {
		header := renderHeader()
		assert.Greater(t, strings.Count(header, "\n"), 2)
	})
}
