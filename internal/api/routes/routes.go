// internal/api/routes/routes.go
// Gin 路由註冊

package routes

import (
	"github.com/gin-gonic/gin"

	"bulk-mailer/internal/api/handlers"
	"bulk-mailer/internal/api/middlewares"
)

// PermissionProgressRead 讀取進度所需權限
const PermissionProgressRead = "progress:read"

// Dependencies 路由依賴
type Dependencies struct {
	Version   string
	JWTSecret string // 空白表示不需認證
	Progress  handlers.ProgressSource
	Quota     handlers.QuotaSource
}

// RegisterRoutes 註冊所有路由
func RegisterRoutes(router *gin.Engine, deps *Dependencies) {
	// 初始化 Handlers
	healthHandler := handlers.NewHealthHandler(deps.Version, deps.Progress)
	progressHandler := handlers.NewProgressHandler(deps.Progress, deps.Quota)

	// 公開路由
	router.GET("/health", healthHandler.Health)

	// API v1 路由群組
	v1 := router.Group("/api/v1")
	if deps.JWTSecret != "" {
		v1.Use(middlewares.JWTAuth(deps.JWTSecret))
		v1.Use(middlewares.RequirePermission(PermissionProgressRead))
	}
	{
		v1.GET("/progress", progressHandler.GetProgress)
	}
}
