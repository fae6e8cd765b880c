package main

import (
	"log"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"commission-conciliation-backend/internal/config"
	"commission-conciliation-backend/internal/logger"
	"commission-conciliation-backend/internal/models"
	"commission-conciliation-backend/internal/routes"
	"commission-conciliation-backend/internal/services/retrieval"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using environment variables")
	}

	cfg := config.Load()

	zl, err := logger.New(cfg.Environment)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer zl.Sync()

	db := config.InitDB(cfg)

	if err := db.AutoMigrate(
		&models.ConciliationJob{},
		&models.QueueItem{},
		&models.SourceBatch{},
		&models.MatchResult{},
		&models.Credential{},
	); err != nil {
		zl.Fatal("failed to migrate database", zap.Error(err))
	}

	if cfg.Environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()

	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Tenant-ID", "X-User-ID", "X-Admin-Conciliations"},
		AllowCredentials: true,
	}))

	// Retrieval adapters are registered here as the deployment grows a
	// browser-automation backend per provider. An empty registry still
	// serves the full API: claimed items fail with a trail instead.
	adapters := retrieval.Registry{}

	routes.RegisterRoutes(r, db, cfg, adapters, nil, nil, zl)

	zl.Info("starting server", zap.String("addr", cfg.ListenAddr))
	if err := r.Run(cfg.ListenAddr); err != nil {
		zl.Fatal("server stopped", zap.Error(err))
	}
}
