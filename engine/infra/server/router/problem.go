package router

import (
	"net/http"

	"github.com/compozy/nutrilens/engine/core"
	"github.com/compozy/nutrilens/engine/infra/server/middleware/requestid"
	"github.com/compozy/nutrilens/pkg/logger"
	"github.com/gin-gonic/gin"
)

const problemContentType = "application/problem+json"

// RespondProblem writes an RFC 7807 error response and aborts the chain.
func RespondProblem(c *gin.Context, problem *core.Problem) {
	doc := core.NormalizeProblem(problem).Document()
	if doc.Instance == "" {
		doc.Instance = c.Request.URL.Path
	}
	doc.RequestID = requestid.FromGin(c)
	logProblem(c, &doc)
	c.Header("Content-Type", problemContentType)
	c.AbortWithStatusJSON(doc.Status, doc)
}

// RespondProblemWithCode writes a problem response embedding a code and detail.
func RespondProblemWithCode(c *gin.Context, status int, code string, detail string) {
	RespondProblem(c, &core.Problem{
		Status: status,
		Title:  http.StatusText(status),
		Detail: detail,
		Code:   code,
	})
}

func logProblem(c *gin.Context, doc *core.ProblemDocument) {
	log := logger.FromContext(c.Request.Context())
	route := c.FullPath()
	if route == "" {
		route = c.Request.URL.Path
	}
	fields := []any{
		"status", doc.Status,
		"title", doc.Title,
		"detail", doc.Detail,
		"route", route,
	}
	if doc.Code != "" {
		fields = append(fields, "code", doc.Code)
	}
	if doc.Status >= http.StatusInternalServerError {
		log.Error("request failed", fields...)
		return
	}
	log.Warn("request failed", fields...)
}
