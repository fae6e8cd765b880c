package handler

import (
	"archive/zip"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"commission-conciliation-backend/internal/models"
	"commission-conciliation-backend/internal/repository"
	"commission-conciliation-backend/internal/services/conciliation"
	"commission-conciliation-backend/internal/services/matching"
	"commission-conciliation-backend/internal/services/scheduler"
)

type ConciliationHandler struct {
	service      *conciliation.Service
	scheduler    *scheduler.Scheduler
	downloadsDir string
	log          *zap.Logger
}

func NewConciliationHandler(service *conciliation.Service, sched *scheduler.Scheduler, downloadsDir string, log *zap.Logger) *ConciliationHandler {
	return &ConciliationHandler{
		service:      service,
		scheduler:    sched,
		downloadsDir: downloadsDir,
		log:          log,
	}
}

// Auth and role resolution live in front of this service; the identity
// headers are trusted as-is.
func callerIDs(c *gin.Context) (tenantID, userID uuid.UUID, ok bool) {
	tenantID, err := uuid.Parse(c.GetHeader("X-Tenant-ID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid or missing X-Tenant-ID"})
		return uuid.Nil, uuid.Nil, false
	}
	userID, err = uuid.Parse(c.GetHeader("X-User-ID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid or missing X-User-ID"})
		return uuid.Nil, uuid.Nil, false
	}
	return tenantID, userID, true
}

func isAdmin(c *gin.Context) bool {
	return c.GetHeader("X-Admin-Conciliations") == "true"
}

// List returns the tenant's jobs, newest first.
func (h *ConciliationHandler) List(c *gin.Context) {
	tenantID, userID, ok := callerIDs(c)
	if !ok {
		return
	}
	jobs, err := h.service.List(tenantID, userID, isAdmin(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "error loading data"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": jobs})
}

// Create submits a new conciliation job from the uploaded ledger rows.
func (h *ConciliationHandler) Create(c *gin.Context) {
	tenantID, userID, ok := callerIDs(c)
	if !ok {
		return
	}

	var payload struct {
		Provider string               `json:"provider"`
		Period   string               `json:"period"` // "2006-01"
		Rows     []matching.SourceRow `json:"rows"`
	}
	if err := c.BindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	provider, err := models.ParseProvider(payload.Provider)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "insurance module not available"})
		return
	}

	period, err := time.Parse("2006-01", payload.Period)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid period, expected yyyy-mm"})
		return
	}

	job, err := h.service.CreateJob(tenantID, userID, provider, int(period.Month()), period.Year(), payload.Rows)
	if errors.Is(err, conciliation.ErrSourceBatchMalformed) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		h.log.Error("job creation failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "queue for this insurance not stored"})
		return
	}
	c.JSON(http.StatusOK, job)
}

// Detail returns the job with its queue items and latest match result.
func (h *ConciliationHandler) Detail(c *gin.Context) {
	tenantID, userID, ok := callerIDs(c)
	if !ok {
		return
	}
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job ID"})
		return
	}
	detail, err := h.service.Detail(tenantID, userID, jobID, isAdmin(c))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "conciliation not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": detail})
}

// Download zips the job's artifact directory and streams it.
func (h *ConciliationHandler) Download(c *gin.Context) {
	tenantID, userID, ok := callerIDs(c)
	if !ok {
		return
	}
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job ID"})
		return
	}
	if _, err := h.service.Detail(tenantID, userID, jobID, isAdmin(c)); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "conciliation not found"})
		return
	}

	jobDir := filepath.Join(h.downloadsDir, jobID.String())
	if _, err := os.Stat(jobDir); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "file not available"})
		return
	}

	c.Header("Content-Disposition", "attachment; filename="+jobID.String()+".zip")
	c.Header("Content-Type", "application/zip")
	if err := zipDir(jobDir, c.Writer); err != nil {
		h.log.Error("file download error", zap.Error(err))
	}
}

// ResetQueueItem re-runs a single retrieval: the job and chosen item go
// back to pending and prior results are discarded.
func (h *ConciliationHandler) ResetQueueItem(c *gin.Context) {
	tenantID, _, ok := callerIDs(c)
	if !ok {
		return
	}
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job ID"})
		return
	}
	itemID, err := uuid.Parse(c.Param("itemId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid queue item ID"})
		return
	}
	job, err := h.service.ResetQueueItem(tenantID, jobID, itemID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "reset failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": job})
}

// Delete cascades the job, its queue items, results and on-disk artifacts.
func (h *ConciliationHandler) Delete(c *gin.Context) {
	tenantID, _, ok := callerIDs(c)
	if !ok {
		return
	}
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job ID"})
		return
	}
	if err := h.service.DeleteJob(tenantID, jobID); err != nil {
		if errors.Is(err, repository.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "conciliation not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": "ok"})
}

// ProcessQueue is the cron trigger that advances every provider's queue by
// at most one item. It blocks while retrievals run.
func (h *ConciliationHandler) ProcessQueue(c *gin.Context) {
	summaries := h.scheduler.TickAll(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"data": summaries})
}

// Conciliate is the cron trigger that settles eligible jobs and runs the
// matcher on them.
func (h *ConciliationHandler) Conciliate(c *gin.Context) {
	outcomes, err := h.service.SettleAndReconcile(c.Request.Context())
	if err != nil {
		h.log.Error("settle pass failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "conciliation pass failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": outcomes})
}

// CredentialsExpire is the cron trigger for near-expiry notifications.
func (h *ConciliationHandler) CredentialsExpire(c *gin.Context) {
	tenants, err := h.service.NotifyExpiringCredentials()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "notification pass failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": tenants})
}

func zipDir(dir string, w io.Writer) error {
	zw := zip.NewWriter(w)
	defer zw.Close()

	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		entry, err := zw.Create(filepath.ToSlash(rel))
		if err != nil {
			return err
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(entry, f)
		return err
	})
}
