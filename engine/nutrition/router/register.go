package router

import (
	"github.com/gin-gonic/gin"
)

const defaultMaxUploadBytes = 10 << 20

// Register mounts the analysis routes on group.
func Register(group *gin.RouterGroup, analyzer Analyzer, maxUploadBytes int64) {
	if maxUploadBytes <= 0 {
		maxUploadBytes = defaultMaxUploadBytes
	}
	h := &handler{analyzer: analyzer, maxUploadBytes: maxUploadBytes}
	analyze := group.Group("/analyze")
	{
		analyze.POST("", h.analyzeJSON)
		analyze.POST("/image", h.analyzeImage)
	}
}
