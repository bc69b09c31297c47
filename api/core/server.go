// Package core wires the gin engine: middleware, routes and the HTTP
// server lifecycle.
package core

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/galerly/galerly/api"
	"github.com/galerly/galerly/api/common"
	handlerAssets "github.com/galerly/galerly/api/handler/assets"
	handlerGalleries "github.com/galerly/galerly/api/handler/galleries"
	"github.com/galerly/galerly/api/middleware"
	"github.com/galerly/galerly/cache"
	"github.com/galerly/galerly/config"
	"github.com/galerly/galerly/database"
	"github.com/galerly/galerly/internal/asset"
	"github.com/galerly/galerly/internal/auth"
	"github.com/galerly/galerly/internal/gallery"
	"github.com/galerly/galerly/internal/rendition"
	"github.com/galerly/galerly/storage"
)

var startTime = time.Now()

// ServerDependencies carries everything the router needs.
type ServerDependencies struct {
	Config          *config.Config
	Database        database.Provider
	StorageFactory  *storage.Factory
	CacheFactory    *cache.Factory
	JWTService      *auth.JWTService
	LoginService    *auth.LoginService
	UploadService   *asset.UploadService
	AssetService    *asset.Service
	GalleryService  *gallery.Service
	RenditionRouter *rendition.Router
}

func setupRouter(deps *ServerDependencies) (*gin.Engine, func()) {
	cfg := deps.Config
	router := gin.New()

	if config.CommitHash == "n/a" {
		router.Use(gin.Logger())
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{cfg.BaseURL()},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.SetTrustedProxies(nil)
	router.MaxMultipartMemory = int64(cfg.UploadMaxSizeMB) << 20

	authRateLimiter := middleware.NewIPRateLimiter(cfg.RateLimitAuthRPS, cfg.RateLimitAuthBurst, cfg.RateLimitExpireTime)
	apiRateLimiter := middleware.NewIPRateLimiter(cfg.RateLimitApiRPS, cfg.RateLimitApiBurst, cfg.RateLimitExpireTime)
	assetRateLimiter := middleware.NewIPRateLimiter(cfg.RateLimitAssetRPS, cfg.RateLimitAssetBurst, cfg.RateLimitExpireTime)
	cleanup := func() {
		authRateLimiter.StopCleanup()
		apiRateLimiter.StopCleanup()
		assetRateLimiter.StopCleanup()
	}

	registerBasicRoutes(router, deps)

	assetHandler := handlerAssets.NewHandler(deps.UploadService, deps.AssetService, deps.RenditionRouter, deps.GalleryService, cfg)
	galleryHandler := handlerGalleries.NewHandler(deps.GalleryService)
	loginHandler := api.NewLoginHandler(deps.LoginService)

	// Public asset access. Private assets still resolve the caller
	// from an optional token.
	publicGroup := router.Group("/assets")
	publicGroup.Use(assetRateLimiter.Middleware())
	publicGroup.Use(middleware.OptionalAuth(deps.JWTService))
	{
		publicGroup.GET("/:identifier", assetHandler.GetAsset)
	}

	// Share-link access needs no account at all.
	sharedGroup := router.Group("/shared")
	sharedGroup.Use(assetRateLimiter.Middleware())
	{
		sharedGroup.GET("/:token", galleryHandler.GetSharedGallery)
		sharedGroup.GET("/:token/assets/:identifier", assetHandler.GetSharedAsset)
		sharedGroup.GET("/:token/archive", galleryHandler.DownloadSharedArchive)
	}

	apiGroup := router.Group("/api")
	apiGroup.Use(func(c *gin.Context) {
		c.Header("Cache-Control", "no-store")
		c.Next()
	})
	{
		authGroup := apiGroup.Group("/auth")
		authGroup.Use(authRateLimiter.Middleware())
		{
			authGroup.POST("/login", loginHandler.LoginHandlerFunc)
			authGroup.POST("/refresh", loginHandler.RefreshTokenHandlerFunc)
			authGroup.POST("/logout", loginHandler.LogoutHandlerFunc)
		}

		v1 := apiGroup.Group("/v1")
		v1.Use(apiRateLimiter.Middleware())
		v1.Use(middleware.RequireAuth(deps.JWTService))
		{
			assetsGroup := v1.Group("/assets")
			{
				assetsGroup.POST("/upload", assetHandler.UploadAsset)
				assetsGroup.POST("/uploads", assetHandler.UploadAssets)
				assetsGroup.GET("", assetHandler.ListAssets)
				assetsGroup.DELETE("", assetHandler.DeleteAssets)
				assetsGroup.DELETE("/:identifier", assetHandler.DeleteAsset)
			}

			v1.GET("/stats", assetHandler.GetStats)

			galleriesGroup := v1.Group("/galleries")
			{
				galleriesGroup.GET("", galleryHandler.ListGalleries)
				galleriesGroup.POST("", galleryHandler.CreateGallery)
				galleriesGroup.GET("/:id", galleryHandler.GetGallery)
				galleriesGroup.PUT("/:id", galleryHandler.UpdateGallery)
				galleriesGroup.DELETE("/:id", galleryHandler.DeleteGallery)

				galleriesGroup.POST("/:id/assets", galleryHandler.AddAssets)
				galleriesGroup.DELETE("/:id/assets/:assetId", galleryHandler.RemoveAsset)

				galleriesGroup.POST("/:id/share", galleryHandler.ShareGallery)
				galleriesGroup.DELETE("/:id/share", galleryHandler.UnshareGallery)

				galleriesGroup.GET("/:id/archive", galleryHandler.ArchiveStatus)
				galleriesGroup.POST("/:id/archive", galleryHandler.RebuildArchive)
				galleriesGroup.GET("/:id/archive/download", galleryHandler.DownloadArchive)
			}
		}
	}

	return router, cleanup
}

func registerBasicRoutes(router *gin.Engine, deps *ServerDependencies) {
	router.GET("/health", func(c *gin.Context) {
		health := gin.H{
			"status":  "ok",
			"uptime":  time.Since(startTime).Round(time.Second).String(),
			"version": config.Version,
			"checks": gin.H{
				"database": checkDatabaseHealth(deps.Database),
				"cache":    checkCacheHealth(deps.CacheFactory),
				"storage":  checkStorageHealth(deps.StorageFactory),
			},
		}
		httpStatus := http.StatusOK
		for _, checkResult := range health["checks"].(gin.H) {
			if result, ok := checkResult.(string); ok && result != "ok" {
				httpStatus = http.StatusServiceUnavailable
				break
			}
		}
		c.JSON(httpStatus, health)
	})

	router.GET("/version", func(c *gin.Context) {
		common.RespondSuccess(c, gin.H{
			"version": config.Version,
			"commit":  config.CommitHash,
		})
	})
}

// StartServer builds the configured http.Server. The returned cleanup
// stops background middleware goroutines.
func StartServer(deps *ServerDependencies) (*http.Server, func()) {
	router, cleanup := setupRouter(deps)

	srv := &http.Server{
		Addr:         deps.Config.Addr(),
		Handler:      router,
		ReadTimeout:  deps.Config.ServerReadTimeout,
		WriteTimeout: deps.Config.ServerWriteTimeout,
		IdleTimeout:  deps.Config.ServerIdleTimeout,
	}

	return srv, cleanup
}
