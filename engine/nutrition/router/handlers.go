package router

import (
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/compozy/nutrilens/engine/core"
	srvrouter "github.com/compozy/nutrilens/engine/infra/server/router"
	llmadapter "github.com/compozy/nutrilens/engine/llm/adapter"
	"github.com/compozy/nutrilens/engine/nutrition"
	"github.com/compozy/nutrilens/engine/nutrition/pipeline"
	"github.com/compozy/nutrilens/pkg/logger"
	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
)

const (
	codeInvalidRequest   = "INVALID_REQUEST"
	codeUnsupportedMedia = "UNSUPPORTED_MEDIA_TYPE"
	codePayloadTooLarge  = "PAYLOAD_TOO_LARGE"
	formOverheadBytes    = 64 << 10
)

// Analyzer runs one analysis.
type Analyzer interface {
	Run(ctx context.Context, in pipeline.Input) (*pipeline.Result, error)
}

// AnalyzeRequest is the JSON body of POST /analyze.
type AnalyzeRequest struct {
	Text     string `json:"text,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
}

// AnalyzeResponse is the body returned for a successful analysis.
type AnalyzeResponse struct {
	Items         []nutrition.ItemNutrition `json:"items"`
	TotalCalories int                       `json:"total_calories"`
	Advice        string                    `json:"advice"`
	References    []nutrition.Reference     `json:"references"`
}

type handler struct {
	analyzer       Analyzer
	maxUploadBytes int64
}

// analyzeJSON handles POST /api/v0/analyze
func (h *handler) analyzeJSON(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, 2*h.maxUploadBytes+formOverheadBytes)
	var req AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		if isTooLarge(err) {
			srvrouter.RespondProblemWithCode(c, http.StatusRequestEntityTooLarge, codePayloadTooLarge,
				"Request body is too large.")
			return
		}
		srvrouter.RespondProblemWithCode(c, http.StatusBadRequest, codeInvalidRequest, "Request body must be valid JSON.")
		return
	}
	h.run(c, pipeline.Input{Text: req.Text, ImageURL: req.ImageURL})
}

// analyzeImage handles POST /api/v0/analyze/image
func (h *handler) analyzeImage(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes+formOverheadBytes)
	if err := c.Request.ParseMultipartForm(h.maxUploadBytes); err != nil {
		if isTooLarge(err) {
			srvrouter.RespondProblemWithCode(c, http.StatusRequestEntityTooLarge, codePayloadTooLarge,
				"Image exceeds the upload limit.")
			return
		}
		srvrouter.RespondProblemWithCode(c, http.StatusBadRequest, codeInvalidRequest,
			"Request must be a multipart form.")
		return
	}
	in := pipeline.Input{Text: c.PostForm("text")}
	fileHeader, err := c.FormFile("image")
	switch {
	case errors.Is(err, http.ErrMissingFile):
	case err != nil:
		srvrouter.RespondProblemWithCode(c, http.StatusBadRequest, codeInvalidRequest, "Image could not be read.")
		return
	case fileHeader.Size > h.maxUploadBytes:
		srvrouter.RespondProblemWithCode(c, http.StatusRequestEntityTooLarge, codePayloadTooLarge,
			"Image exceeds the upload limit.")
		return
	default:
		dataURL, problem := readImage(c, fileHeader)
		if problem != nil {
			srvrouter.RespondProblem(c, problem)
			return
		}
		in.ImageURL = dataURL
	}
	h.run(c, in)
}

// readImage sniffs the upload and returns it as a data URL. An empty file counts as no image.
func readImage(c *gin.Context, fh *multipart.FileHeader) (string, *core.Problem) {
	unreadable := &core.Problem{
		Status: http.StatusBadRequest,
		Code:   codeInvalidRequest,
		Detail: "Image could not be read.",
	}
	f, err := fh.Open()
	if err != nil {
		return "", unreadable
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return "", unreadable
	}
	if len(data) == 0 {
		return "", nil
	}
	mt := mimetype.Detect(data)
	if !strings.HasPrefix(mt.String(), "image/") {
		logger.FromContext(c.Request.Context()).Debug("Rejected upload", "mime", mt.String())
		return "", &core.Problem{
			Status: http.StatusUnsupportedMediaType,
			Code:   codeUnsupportedMedia,
			Detail: "Upload must be an image.",
		}
	}
	return llmadapter.ToDataURL(mt.String(), data), nil
}

func (h *handler) run(c *gin.Context, in pipeline.Input) {
	res, err := h.analyzer.Run(c.Request.Context(), in)
	if err != nil {
		respondPipelineError(c, err)
		return
	}
	c.JSON(http.StatusOK, toResponse(res.Report))
}

func toResponse(report *nutrition.NutritionReport) AnalyzeResponse {
	out := AnalyzeResponse{
		Items:         report.Items,
		TotalCalories: report.TotalCalories,
		Advice:        report.Advice,
		References:    report.References,
	}
	if out.Items == nil {
		out.Items = []nutrition.ItemNutrition{}
	}
	if out.References == nil {
		out.References = []nutrition.Reference{}
	}
	return out
}

func respondPipelineError(c *gin.Context, err error) {
	var perr *nutrition.PipelineError
	if !errors.As(err, &perr) {
		logger.FromContext(c.Request.Context()).Error("Analysis failed", "error", err)
		srvrouter.RespondProblem(c, &core.Problem{
			Status: http.StatusInternalServerError,
			Code:   nutrition.CodeInternal,
			Detail: "The analysis could not be completed.",
		})
		return
	}
	srvrouter.RespondProblem(c, &core.Problem{
		Status: statusFor(perr.Code),
		Code:   perr.Code,
		Detail: perr.Message,
	})
}

func statusFor(code string) int {
	switch code {
	case nutrition.CodeInputMissing:
		return http.StatusBadRequest
	case nutrition.CodeRecognitionFailed, nutrition.CodeSchemaValidation:
		return http.StatusUnprocessableEntity
	case nutrition.CodeModelTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func isTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}
