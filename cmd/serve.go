package cmd

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/davidbyttow/govips/v2/vips"
	"github.com/spf13/cobra"

	"github.com/galerly/galerly/api/core"
	"github.com/galerly/galerly/cache"
	"github.com/galerly/galerly/config"
	"github.com/galerly/galerly/database"
	"github.com/galerly/galerly/database/models"
	"github.com/galerly/galerly/database/repo/accounts"
	"github.com/galerly/galerly/database/repo/assets"
	"github.com/galerly/galerly/database/repo/galleries"
	"github.com/galerly/galerly/internal/archive"
	"github.com/galerly/galerly/internal/asset"
	"github.com/galerly/galerly/internal/auth"
	"github.com/galerly/galerly/internal/gallery"
	"github.com/galerly/galerly/internal/imaging"
	"github.com/galerly/galerly/internal/rendition"
	"github.com/galerly/galerly/internal/worker"
	"github.com/galerly/galerly/storage"
	"github.com/galerly/galerly/utils"
	"github.com/galerly/galerly/utils/generator"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start API server",
	Run: func(cmd *cobra.Command, args []string) {
		RunServer()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func RunServer() {
	config.InitConfig()
	cfg := config.Get()

	if err := os.MkdirAll("./data", os.ModePerm); err != nil {
		log.Fatalf("Failed to create data directory: %v", err)
	}

	dbFactory, err := database.NewFactory(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	db := dbFactory.GetProvider().DB()
	accountsRepo := accounts.NewRepository(db)
	if password, err := accountsRepo.CreateDefaultAdminUser(); err != nil {
		log.Fatalf("Failed to create default admin user: %v", err)
	} else if password != "" {
		log.Printf("Created default admin user 'admin' with password: %s", password)
		log.Println("Change this password after first login")
	}

	cacheFactory, err := cache.NewFactory(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize cache: %v", err)
	}
	cacheHelper := newCacheHelper(cfg, cacheFactory)

	storageFactory, err := storage.NewFactory(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	store := storageFactory.GetDefault()

	vips.Startup(nil)

	pool := worker.NewPool(cfg.WorkerCount, cfg.WorkerQueueSize)
	pool.Start()

	assetRepo := assets.NewRepository(db)
	renditionRepo := assets.NewRenditionRepository(db)
	galleryRepo := galleries.NewRepository(db)
	archiveRepo := galleries.NewArchiveRepository(db)
	paths := generator.NewPathGenerator()

	maxBytes := int64(cfg.UploadMaxSizeMB) << 20
	builder := archive.NewBuilder(assetRepo, archiveRepo, store, paths)
	invoker := worker.NewInvoker(pool, store, renditionRepo, cacheHelper, builder, maxBytes, cfg.WorkerCount)
	router := rendition.NewRouter(renditionRepo, store, invoker, cfg.RenditionFormat, cfg.RenditionQuality, cfg.RenditionMaxRetries)
	validator := imaging.NewValidator(cfg.UploadMaxPixels)

	recoverOrphanRenditions(renditionRepo)

	retryScanner := worker.NewRetryScanner(renditionRepo, invoker, 5*time.Minute, cfg.RenditionMaxRetries, cfg.RenditionQuality)
	retryScanner.Start()

	uploadService := asset.NewUploadService(assetRepo, galleryRepo, validator, router, invoker, store, paths, cacheHelper, maxBytes)
	if configured := cfg.RenditionSizes(); len(configured) > 0 {
		sizes := make([]models.RenditionSize, len(configured))
		for i, s := range configured {
			sizes[i] = models.RenditionSize{Name: s.Name, Width: s.Width, Height: s.Height}
		}
		uploadService.SetPregenSizes(sizes)
		log.Printf("Using %d configured rendition sizes", len(sizes))
	}
	uploadService.SetMaxBatchBytes(int64(cfg.UploadMaxBatchTotalMB) << 20)
	assetService := asset.NewService(assetRepo, renditionRepo, galleryRepo, invoker, store, cacheHelper)
	galleryService := gallery.NewService(galleryRepo, archiveRepo, assetRepo, invoker, store, paths)

	jwtSecret := cfg.JwtSecret
	if jwtSecret == "" {
		generated, err := utils.GenerateRandomToken(32)
		if err != nil {
			log.Fatalf("Failed to generate JWT secret: %v", err)
		}
		jwtSecret = generated
		log.Println("[Warning] jwt_secret not configured, generated an ephemeral secret; sessions will not survive a restart")
	}
	jwtService := auth.NewJWTService([]byte(jwtSecret), cfg.JwtExpiresIn, cfg.JwtRefreshExpiresIn)
	loginService := auth.NewLoginService(accountsRepo, jwtService, cacheFactory.GetProvider())

	deps := &core.ServerDependencies{
		Config:          cfg,
		Database:        dbFactory.GetProvider(),
		StorageFactory:  storageFactory,
		CacheFactory:    cacheFactory,
		JWTService:      jwtService,
		LoginService:    loginService,
		UploadService:   uploadService,
		AssetService:    assetService,
		GalleryService:  galleryService,
		RenditionRouter: router,
	}

	server, cleanup := core.StartServer(deps)
	go func() {
		log.Printf("Server started on %s", cfg.Addr())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	// Wait for exit signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	if cleanup != nil {
		cleanup()
	}

	retryScanner.Stop()
	pool.Stop()
	vips.Shutdown()

	if err := cacheFactory.Close(); err != nil {
		log.Printf("Error closing cache provider: %v", err)
	}
	if err := dbFactory.Close(); err != nil {
		log.Printf("Error closing database: %v", err)
	}

	log.Println("Server exited successfully")
}

func newCacheHelper(cfg *config.Config, factory *cache.Factory) *cache.Helper {
	metaTTL := time.Duration(cfg.CacheMetaTTLSeconds) * time.Second
	dataTTL := time.Duration(cfg.CacheDataTTLSeconds) * time.Second

	maxDataSize := cfg.CacheMaxDataSizeMB << 20
	if !cfg.CacheEnableDataCache {
		maxDataSize = -1
	}

	return cache.NewHelper(factory.GetProvider(), metaTTL, dataTTL, maxDataSize)
}

// recoverOrphanRenditions reclaims tasks a previous process left in
// the processing state. They go back to pending so the next request
// or the retry scanner can pick them up again.
func recoverOrphanRenditions(repo *assets.RenditionRepository) {
	orphans, err := repo.GetOrphanRenditions(10*time.Minute, 100)
	if err != nil {
		log.Printf("[Warning] Failed to scan for orphan renditions: %v", err)
		return
	}

	for _, row := range orphans {
		if err := repo.ResetProcessingToPending(row.ID); err != nil {
			log.Printf("[Warning] Failed to reset orphan rendition %d: %v", row.ID, err)
		}
	}

	if len(orphans) > 0 {
		log.Printf("Recovered %d orphaned rendition tasks", len(orphans))
	}
}
