package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"droplab/internal/api/middleware"
	"droplab/internal/metrics"
)

// NewRouter 构建 Gin 路由引擎并挂载通用中间件。
func NewRouter(logger *slog.Logger) *gin.Engine {
	router := gin.New()
	router.Use(
		gin.Recovery(),
		middleware.CorrelationIDMiddleware(),
		middleware.SlogLoggerMiddleware(logger),
		metrics.GinMiddleware(),
	)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return router
}
