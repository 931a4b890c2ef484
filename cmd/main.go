package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"citrine-sage-backend/internal/ai"
	"citrine-sage-backend/internal/config"
	"citrine-sage-backend/internal/logger"
	"citrine-sage-backend/internal/telemetry"
	"citrine-sage-backend/routes"
	"citrine-sage-backend/services"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	logger.InitLogger(cfg)

	shutdownTracer, err := telemetry.InitTracer("citrine-sage-backend")
	if err != nil {
		logger.Warn("Tracing disabled", "error", err)
	} else {
		defer shutdownTracer()
	}

	if err := os.MkdirAll(cfg.UploadDir, 0755); err != nil {
		log.Fatal("Failed to create upload directory:", err)
	}

	gemini, err := ai.NewGeminiClient(context.Background(), cfg.GeminiAPIKey, cfg.GeminiModel, cfg.EmbeddingModel, cfg.GeminiTier)
	if err != nil {
		log.Fatal("Failed to create Gemini client:", err)
	}
	defer gemini.Close()

	// The OCR engine is constructed lazily, once per ingestion run, on
	// the first page that actually needs recognition.
	ocrFactory := func(ctx context.Context) (services.OCREngine, error) {
		return services.NewOCRClient(ctx, cfg)
	}

	extractor := services.NewExtractor(services.NewExtractionCache(), services.OpenPDF, ocrFactory)
	transcripts := services.NewTranscriptClient(cfg)
	chunker := services.NewChunker(cfg.MaxChunkSize, cfg.ChunkOverlap)
	indexer := services.NewIndexer(chunker, gemini, cfg.MaxContextChars)
	rag := services.NewRAGService(gemini, cfg.RetrievalTopK)
	orchestrator := services.NewOrchestrator(rag, extractor, transcripts, indexer)

	janitor := services.NewCacheJanitor(cfg.UploadDir, cfg.CacheCleanupHours)
	janitor.Start()
	defer janitor.Stop()

	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.CORSOrigins
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept"}
	router.Use(cors.New(corsConfig))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "Citrine & Sage Integration Backend"})
	})

	routes.SetupChatRoutes(router, rag)
	routes.SetupSourceRoutes(router, cfg, orchestrator)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logger.Info("Server listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Server failed:", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Forced shutdown", "error", err)
	}
}
