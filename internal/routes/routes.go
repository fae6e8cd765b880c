package routes

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"commission-conciliation-backend/internal/config"
	handler "commission-conciliation-backend/internal/handlers"
	"commission-conciliation-backend/internal/repository"
	"commission-conciliation-backend/internal/services/conciliation"
	"commission-conciliation-backend/internal/services/retrieval"
	"commission-conciliation-backend/internal/services/scheduler"
)

// RegisterRoutes wires repositories, services and handlers. The retrieval
// adapters come from the caller: the browser-automation side is deployed
// separately and registered per provider.
func RegisterRoutes(r *gin.Engine, db *gorm.DB, cfg config.Config, adapters retrieval.Registry, assembler conciliation.Assembler, notifier conciliation.Notifier, log *zap.Logger) {
	jobRepo := repository.NewJobRepository(db)
	queueRepo := repository.NewQueueItemRepository(db)
	batchRepo := repository.NewSourceBatchRepository(db)
	resultRepo := repository.NewMatchResultRepository(db)
	credentialRepo := repository.NewCredentialRepository(db)

	reader := retrieval.NewReader(cfg.DownloadsDir)

	sched := scheduler.New(queueRepo, credentialRepo, jobRepo, adapters, scheduler.Config{
		MaxConcurrent: cfg.MaxConcurrent,
		StaleAfter:    cfg.StaleAfter,
	}, log)

	service := conciliation.NewService(
		jobRepo, queueRepo, batchRepo, resultRepo, credentialRepo,
		reader, assembler, notifier,
		conciliation.Config{
			DownloadsDir:     cfg.DownloadsDir,
			SettleWindow:     cfg.SettleWindow,
			ExpiryNoticeDays: cfg.ExpiryNoticeDays,
		}, log)

	h := handler.NewConciliationHandler(service, sched, cfg.DownloadsDir, log)

	api := r.Group("/api")

	// Health check
	api.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	jobs := api.Group("/conciliations")
	jobs.GET("", h.List)
	jobs.POST("", h.Create)
	jobs.GET("/:id", h.Detail)
	jobs.GET("/:id/download", h.Download)
	jobs.POST("/:id/reset-queue/:itemId", h.ResetQueueItem)
	jobs.DELETE("/:id", h.Delete)

	// Cron-style public triggers; each call is self-contained.
	crons := api.Group("/crons")
	crons.GET("/process-queue", h.ProcessQueue)
	crons.GET("/conciliate", h.Conciliate)
	crons.GET("/credentials-expire", h.CredentialsExpire)
}
