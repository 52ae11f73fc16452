package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/compozy/nutrilens/engine/core"
	"github.com/compozy/nutrilens/engine/infra/server"
	llmadapter "github.com/compozy/nutrilens/engine/llm/adapter"
	"github.com/compozy/nutrilens/engine/nutrition"
	"github.com/compozy/nutrilens/engine/nutrition/pipeline"
	"github.com/compozy/nutrilens/pkg/logger"
	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

// AnalyzeCmd runs one analysis from the command line.
func AnalyzeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Analyze a meal description or photo and print the nutrition report",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAnalyze(cmd)
		},
	}
	cmd.Flags().String("text", "", "Meal description")
	cmd.Flags().String("image", "", "Image file path, http(s) URL or data URL")
	cmd.Flags().Bool("with-context", false, "Include the retrieved reference context in the output")
	return cmd
}

type analyzeOutput struct {
	*nutrition.NutritionReport
	Modality pipeline.Modality `json:"modality"`
	Context  string            `json:"context,omitempty"`
}

func runAnalyze(cmd *cobra.Command) error {
	ctx := cmd.Context()
	text, err := cmd.Flags().GetString("text")
	if err != nil {
		return err
	}
	imageArg, err := cmd.Flags().GetString("image")
	if err != nil {
		return err
	}
	withContext, err := cmd.Flags().GetBool("with-context")
	if err != nil {
		return err
	}
	if strings.TrimSpace(text) == "" && strings.TrimSpace(imageArg) == "" {
		return errors.New("provide --text, --image or both")
	}
	imageURL, err := resolveImage(afero.NewOsFs(), imageArg)
	if err != nil {
		return err
	}
	deps, err := server.BuildDependencies(ctx, configFrom(cmd), server.BuildOptions{WithModels: true})
	if err != nil {
		return fmt.Errorf("failed to build dependencies: %w", err)
	}
	defer func() {
		if err := deps.Close(context.WithoutCancel(ctx)); err != nil {
			logger.FromContext(ctx).Error("Failed to release resources", "error", err)
		}
	}()
	res, err := deps.Pipeline.Run(ctx, pipeline.Input{Text: text, ImageURL: imageURL})
	if err != nil {
		var perr *nutrition.PipelineError
		if errors.As(err, &perr) {
			return core.NewError(errors.New(perr.Message), perr.Code, map[string]any{"stage": perr.Stage})
		}
		return err
	}
	out := analyzeOutput{NutritionReport: res.Report, Modality: res.Modality}
	if withContext {
		out.Context = res.Context
	}
	return printJSON(cmd.OutOrStdout(), out)
}

// resolveImage passes URLs through and turns a local file into a data URL.
func resolveImage(fs afero.Fs, arg string) (string, error) {
	arg = strings.TrimSpace(arg)
	switch {
	case arg == "":
		return "", nil
	case strings.HasPrefix(arg, "http://"), strings.HasPrefix(arg, "https://"), llmadapter.IsDataURL(arg):
		return arg, nil
	}
	data, err := afero.ReadFile(fs, arg)
	if err != nil {
		return "", fmt.Errorf("failed to read image %s: %w", arg, err)
	}
	if len(data) == 0 {
		return "", fmt.Errorf("image %s is empty", arg)
	}
	mt := mimetype.Detect(data)
	if !strings.HasPrefix(mt.String(), "image/") {
		return "", fmt.Errorf("file %s is not an image (%s)", arg, mt.String())
	}
	return llmadapter.ToDataURL(mt.String(), data), nil
}
