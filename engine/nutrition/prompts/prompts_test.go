package prompts

import (
	"testing"

	appconfig "github.com/compozy/nutrilens/pkg/config"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	set, err := Default()
	require.NoError(t, err)

	t.Run("Should include the meal text and format instructions", func(t *testing.T) {
		out, err := set.Render(KindText, Data{
			Text:               "  grilled chicken breast, 150g \n",
			FormatInstructions: "Respond with only a JSON object",
		})
		require.NoError(t, err)
		assert.Contains(t, out, "grilled chicken breast, 150g\n")
		assert.Contains(t, out, "Respond with only a JSON object")
	})

	t.Run("Should omit the note section on vision prompts without text", func(t *testing.T) {
		out, err := set.Render(KindVision, Data{FormatInstructions: "FMT"})
		require.NoError(t, err)
		assert.NotContains(t, out, "The user added this note")
		assert.Contains(t, out, "FMT")
	})

	t.Run("Should include the user note on vision prompts", func(t *testing.T) {
		out, err := set.Render(KindVision, Data{Text: "the rice is 200g"})
		require.NoError(t, err)
		assert.Contains(t, out, "the rice is 200g")
	})

	t.Run("Should render estimates and context for compute", func(t *testing.T) {
		out, err := set.Render(KindCompute, Data{
			Estimates: `[{"name":"rice","weight_grams":200,"is_estimated":false}]`,
			Context:   "[rice] reference: 130 kcal per 100g",
		})
		require.NoError(t, err)
		assert.Contains(t, out, `"weight_grams":200`)
		assert.Contains(t, out, "130 kcal per 100g")
	})

	t.Run("Should fall back to none without context", func(t *testing.T) {
		out, err := set.Render(KindCompute, Data{Estimates: "[]"})
		require.NoError(t, err)
		assert.Contains(t, out, "Reference data:\nnone")
	})

	t.Run("Should fail on unknown kinds", func(t *testing.T) {
		_, err := set.Render(Kind("summary"), Data{})
		require.Error(t, err)
	})
}

func TestLoad(t *testing.T) {
	t.Run("Should use an override file", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		require.NoError(t, afero.WriteFile(fs, "/prompts/text.txt", []byte("Meal: {{ .Text | upper }}"), 0o644))
		set, err := Load(fs, &appconfig.PromptsConfig{TextPath: "/prompts/text.txt"})
		require.NoError(t, err)
		out, err := set.Render(KindText, Data{Text: "soup"})
		require.NoError(t, err)
		assert.Equal(t, "Meal: SOUP", out)
		vision, err := set.Render(KindVision, Data{})
		require.NoError(t, err)
		assert.Contains(t, vision, "photo of a meal")
	})

	t.Run("Should fail when an override is missing", func(t *testing.T) {
		_, err := Load(afero.NewMemMapFs(), &appconfig.PromptsConfig{ComputePath: "/nope.txt"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "compute")
	})

	t.Run("Should fail on a malformed override", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		require.NoError(t, afero.WriteFile(fs, "/bad.tmpl", []byte("{{ .Text "), 0o644))
		_, err := Load(fs, &appconfig.PromptsConfig{VisionPath: "/bad.tmpl"})
		require.Error(t, err)
	})
}
