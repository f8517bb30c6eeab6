package api

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"droplab/internal/api/middleware"
	"droplab/internal/auth"
	"droplab/internal/config"
	"droplab/internal/qrtoken"
	"droplab/internal/storage"
)

// RegisterRoutes 注册 API 路由，不包含 /api 前缀。
func RegisterRoutes(
	router *gin.Engine,
	cfg *config.Config,
	db *gorm.DB,
	asynqClient *asynq.Client,
	authService *auth.AuthService,
	redisClient *redis.Client,
	tokenCodec *qrtoken.Codec,
	logger *slog.Logger,
	storageClient *storage.Client,
) {
	authHandler := NewAuthHandler(db, authService, redisClient, logger)
	templateHandler := NewTemplateHandler(db)
	campaignHandler := NewCampaignHandler(db, storageClient, cfg.API.MaxCampaigns)
	batchHandler := NewBatchHandler(db, asynqClient, logger, cfg.API.ClamdAddr)
	landingHandler := NewLandingHandler(db, tokenCodec, logger)
	assetHandler := NewAssetHandler(storageClient, logger, cfg.API.ClamdAddr)
	wsHandler := NewWsHandler(redisClient, authService, logger, nil)
	authMiddleware := middleware.AuthMiddleware(authService)

	// 指标端点只暴露给内部采集器。
	router.GET("/metrics",
		middleware.InternalSecretMiddleware(cfg.API.InternalSecret),
		gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1")
	{
		v1.GET("/ws", wsHandler.HandleConnection)
		v1.GET("/formats", ListFormats)

		// 落地页解析是公开端点，扫码访客没有账号。
		v1.GET("/landing/:campaignID", landingHandler.Resolve)

		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/register", authHandler.Register)
			authGroup.POST("/login", authHandler.Login)
			authGroup.POST("/refresh", authHandler.Refresh)
			authGroup.POST("/logout", authMiddleware, authHandler.Logout)
			authGroup.POST("/change-password", authMiddleware, authHandler.ChangePassword)
		}

		templateGroup := v1.Group("/templates")
		templateGroup.Use(authMiddleware)
		{
			templateGroup.POST("", templateHandler.CreateTemplate)
			templateGroup.GET("", templateHandler.ListTemplates)
			templateGroup.GET("/:id", templateHandler.GetTemplate)
			templateGroup.PUT("/:id", templateHandler.UpdateTemplate)
			templateGroup.DELETE("/:id", templateHandler.DeleteTemplate)
			templateGroup.GET("/:id/variables", templateHandler.GetVariables)
			templateGroup.GET("/:id/sample-csv", templateHandler.DownloadSampleCSV)
			templateGroup.POST("/:id/resize", templateHandler.ResizeTemplate)
		}

		campaignGroup := v1.Group("/campaigns")
		campaignGroup.Use(authMiddleware)
		{
			campaignGroup.POST("", campaignHandler.CreateCampaign)
			campaignGroup.GET("", campaignHandler.ListCampaigns)
			campaignGroup.GET("/:id", campaignHandler.GetCampaign)
			campaignGroup.PUT("/:id", campaignHandler.UpdateCampaign)
			campaignGroup.DELETE("/:id", campaignHandler.DeleteCampaign)
			campaignGroup.GET("/:id/artifacts", campaignHandler.ListArtifacts)
			campaignGroup.POST("/:id/batch", batchHandler.UploadBatch)
		}

		assetGroup := v1.Group("/assets")
		assetGroup.Use(authMiddleware)
		{
			assetGroup.POST("/upload", assetHandler.UploadAsset)
			assetGroup.GET("", assetHandler.ListAssets)
			assetGroup.GET("/view", assetHandler.GetAssetURL)
		}
	}
}
