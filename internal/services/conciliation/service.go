// Package conciliation owns the conciliation job lifecycle: creation with
// its queue items, settling terminal jobs into match results, manual resets
// and cascaded deletion.
package conciliation

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"commission-conciliation-backend/internal/models"
	"commission-conciliation-backend/internal/services/matching"
)

// ErrSourceBatchMalformed rejects a job submission whose ledger rows cannot
// be used: empty upload or rows missing the agent key.
var ErrSourceBatchMalformed = errors.New("source batch malformed")

// SettleLimit caps how many pending jobs one settle invocation examines.
const SettleLimit = 5

type JobStore interface {
	Create(job *models.ConciliationJob) error
	FindByID(id uuid.UUID) (*models.ConciliationJob, error)
	FindByIDForTenant(id, tenantID uuid.UUID) (*models.ConciliationJob, error)
	FindPending(limit int) ([]models.ConciliationJob, error)
	MarkZeroCountProcessed(now time.Time) (int, error)
	MarkProcessed(id uuid.UUID, now time.Time) error
	MarkFailed(id uuid.UUID) error
	ResetToPending(id, tenantID uuid.UUID, now time.Time) error
	Delete(id, tenantID uuid.UUID) error
	ListForTenant(tenantID uuid.UUID, userID *uuid.UUID) ([]models.ConciliationJob, error)
}

type QueueStore interface {
	InsertMany(items []models.QueueItem) error
	FindByJob(jobID uuid.UUID) ([]models.QueueItem, error)
	ResetToPending(itemID, jobID, tenantID uuid.UUID, now time.Time) error
	DeleteByJob(jobID, tenantID uuid.UUID) error
}

type BatchStore interface {
	Create(batch *models.SourceBatch) error
	FindByID(id uuid.UUID) (*models.SourceBatch, error)
}

type ResultStore interface {
	Create(result *models.MatchResult) error
	LatestByJob(jobID, tenantID uuid.UUID) (*models.MatchResult, error)
	DeleteByJob(jobID, tenantID uuid.UUID) error
}

type CredentialStore interface {
	FindByIdentifiers(tenantID uuid.UUID, provider models.Provider, identifiers []string) ([]models.Credential, error)
	FindExpiring(from, to time.Time) ([]models.Credential, error)
}

// ExternalReader derives the external record set from the files the
// retrieval adapter deposited for a job.
type ExternalReader interface {
	ReadExternalRows(job *models.ConciliationJob) ([]matching.ExternalRow, error)
}

// Assembler renders the downloadable result artifact. The real workbook
// renderer lives outside this service.
type Assembler interface {
	Assemble(job *models.ConciliationJob, result *models.MatchResult) error
}

// Notifier delivers user-facing notifications. The real mailer lives
// outside this service.
type Notifier interface {
	JobProcessed(job *models.ConciliationJob, result *models.MatchResult) error
	CredentialsExpiring(tenantID uuid.UUID, credentials []models.Credential) error
}

type Config struct {
	// DownloadsDir is the root under which adapters deposit files and
	// result artifacts are stored, one directory per job id.
	DownloadsDir string
	// SettleWindow is how long a queue item must have been terminal
	// before its job is considered ready for reconciliation.
	SettleWindow time.Duration
	// ExpiryNoticeDays is how many days ahead the credential expiry
	// notification looks.
	ExpiryNoticeDays int
}

type Service struct {
	jobs        JobStore
	queue       QueueStore
	batches     BatchStore
	results     ResultStore
	credentials CredentialStore
	reader      ExternalReader
	assembler   Assembler
	notifier    Notifier
	cfg         Config
	log         *zap.Logger
	now         func() time.Time
}

func NewService(
	jobs JobStore,
	queue QueueStore,
	batches BatchStore,
	results ResultStore,
	credentials CredentialStore,
	reader ExternalReader,
	assembler Assembler,
	notifier Notifier,
	cfg Config,
	log *zap.Logger,
) *Service {
	if cfg.SettleWindow <= 0 {
		cfg.SettleWindow = 2 * time.Minute
	}
	if cfg.ExpiryNoticeDays <= 0 {
		cfg.ExpiryNoticeDays = 5
	}
	if assembler == nil {
		assembler = NopAssembler{}
	}
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Service{
		jobs:        jobs,
		queue:       queue,
		batches:     batches,
		results:     results,
		credentials: credentials,
		reader:      reader,
		assembler:   assembler,
		notifier:    notifier,
		cfg:         cfg,
		log:         log,
		now:         time.Now,
	}
}

// CreateJob validates the uploaded ledger rows, snapshots them as a source
// batch and creates the job together with one queue item per agent
// credential. CountFiles is fixed here and never changes afterwards.
func (s *Service) CreateJob(tenantID, userID uuid.UUID, provider models.Provider, month, year int, rows []matching.SourceRow) (*models.ConciliationJob, error) {
	if len(rows) == 0 {
		return nil, errors.Wrap(ErrSourceBatchMalformed, "no rows in upload")
	}
	if month < 1 || month > 12 {
		return nil, errors.Wrap(ErrSourceBatchMalformed, "period month out of range")
	}
	agents := make([]string, 0, len(rows))
	seen := make(map[string]struct{})
	for i, row := range rows {
		if strings.TrimSpace(row.Agent) == "" {
			return nil, errors.Wrapf(ErrSourceBatchMalformed, "row %d has no agent key", i)
		}
		if _, ok := seen[row.Agent]; !ok {
			seen[row.Agent] = struct{}{}
			agents = append(agents, row.Agent)
		}
	}

	creds, err := s.credentials.FindByIdentifiers(tenantID, provider, agents)
	if err != nil {
		return nil, err
	}

	batch := &models.SourceBatch{
		ID:        uuid.New(),
		TenantID:  tenantID,
		UserID:    userID,
		Rows:      datatypes.NewJSONSlice(rows),
		CreatedAt: s.now(),
	}
	if err := s.batches.Create(batch); err != nil {
		return nil, err
	}

	identifiers := make([]string, len(creds))
	for i, c := range creds {
		identifiers[i] = c.Identifier
	}

	job := &models.ConciliationJob{
		ID:            uuid.New(),
		Provider:      provider,
		Month:         month,
		Year:          year,
		TenantID:      tenantID,
		UserID:        userID,
		Agents:        datatypes.NewJSONSlice(identifiers),
		CountFiles:    len(creds),
		Status:        models.JobStatusPending,
		SourceBatchID: batch.ID,
		CreatedAt:     s.now(),
	}
	if err := s.jobs.Create(job); err != nil {
		return nil, err
	}

	items := make([]models.QueueItem, len(creds))
	for i, c := range creds {
		items[i] = models.QueueItem{
			ID:         uuid.New(),
			Provider:   provider,
			Identifier: c.Identifier,
			JobID:      job.ID,
			TenantID:   tenantID,
			Status:     models.QueueStatusPending,
			CreatedAt:  s.now(),
		}
	}
	if err := s.queue.InsertMany(items); err != nil {
		// The job row is already written; without its queue it can
		// never settle, so it is marked failed outright.
		if markErr := s.jobs.MarkFailed(job.ID); markErr != nil {
			s.log.Error("failed to mark job failed after queue insert error",
				zap.String("job_id", job.ID.String()),
				zap.Error(markErr))
		}
		job.Status = models.JobStatusFailed
		return job, errors.Wrap(err, "failed to enqueue retrieval work")
	}

	return job, nil
}

// SettleOutcome reports what happened to one job during a settle pass.
type SettleOutcome struct {
	JobID   uuid.UUID `json:"job_id"`
	Settled bool      `json:"settled"`
	Entries int       `json:"entries,omitempty"`
	Reason  string    `json:"reason,omitempty"`
}

// SettleAndReconcile flips zero-count jobs straight to processed, then
// reconciles every pending job whose queue items are all terminal and have
// been terminal for at least the settle window. At most SettleLimit jobs
// are examined per call.
func (s *Service) SettleAndReconcile(ctx context.Context) ([]SettleOutcome, error) {
	now := s.now()

	settled, err := s.jobs.MarkZeroCountProcessed(now)
	if err != nil {
		return nil, err
	}
	if settled > 0 {
		s.log.Info("settled zero-count jobs", zap.Int("count", settled))
	}

	pending, err := s.jobs.FindPending(SettleLimit)
	if err != nil {
		return nil, err
	}

	var outcomes []SettleOutcome
	for i := range pending {
		job := &pending[i]
		if ctx.Err() != nil {
			return outcomes, ctx.Err()
		}
		ready, reason, err := s.readyToSettle(job, now)
		if err != nil {
			return outcomes, err
		}
		if !ready {
			outcomes = append(outcomes, SettleOutcome{JobID: job.ID, Reason: reason})
			continue
		}
		entries, err := s.reconcileJob(job)
		if err != nil {
			s.log.Error("reconciliation failed",
				zap.String("job_id", job.ID.String()),
				zap.Error(err))
			outcomes = append(outcomes, SettleOutcome{JobID: job.ID, Reason: err.Error()})
			continue
		}
		outcomes = append(outcomes, SettleOutcome{JobID: job.ID, Settled: true, Entries: entries})
	}
	return outcomes, nil
}

// readyToSettle requires every queue item to be terminal and settled: an
// item that finished moments ago may belong to an adapter still flushing
// files, so it keeps the job active until the window has passed.
func (s *Service) readyToSettle(job *models.ConciliationJob, now time.Time) (bool, string, error) {
	items, err := s.queue.FindByJob(job.ID)
	if err != nil {
		return false, "", err
	}
	for _, item := range items {
		if !item.Status.IsTerminal() {
			return false, "queue items still active", nil
		}
		if item.FinishedAt == nil || now.Sub(*item.FinishedAt) < s.cfg.SettleWindow {
			return false, "queue items still settling", nil
		}
	}
	return true, "", nil
}

func (s *Service) reconcileJob(job *models.ConciliationJob) (int, error) {
	profile, err := matching.ProfileFor(string(job.Provider))
	if err != nil {
		return 0, err
	}

	batch, err := s.batches.FindByID(job.SourceBatchID)
	if err != nil {
		return 0, err
	}

	externalRows, err := s.reader.ReadExternalRows(job)
	if err != nil {
		return 0, err
	}

	entries := matching.Reconcile(profile, batch.Rows, externalRows)

	now := s.now()
	result := &models.MatchResult{
		ID:       uuid.New(),
		JobID:    job.ID,
		TenantID: job.TenantID,
		Entries:  datatypes.NewJSONSlice(entries),
		Filename: fmt.Sprintf("%s_export_%s_%d.xlsx",
			strings.ToLower(string(job.Provider)), now.Format("2006-01-02"), now.UnixMilli()),
		CreatedAt: now,
	}

	// The job directory may not exist when every retrieval failed.
	jobDir := filepath.Join(s.cfg.DownloadsDir, job.ID.String())
	if err := os.MkdirAll(jobDir, 0o755); err != nil {
		return 0, errors.Wrap(err, "failed to create job artifact directory")
	}

	if err := s.results.Create(result); err != nil {
		return 0, err
	}
	if err := s.jobs.MarkProcessed(job.ID, now); err != nil {
		return 0, err
	}

	if err := s.assembler.Assemble(job, result); err != nil {
		s.log.Warn("result assembly failed",
			zap.String("job_id", job.ID.String()),
			zap.Error(err))
	}
	if err := s.notifier.JobProcessed(job, result); err != nil {
		s.log.Warn("processed notification failed",
			zap.String("job_id", job.ID.String()),
			zap.Error(err))
	}

	s.log.Info("job reconciled",
		zap.String("job_id", job.ID.String()),
		zap.String("provider", string(job.Provider)),
		zap.Int("entries", len(entries)))
	return len(entries), nil
}

// ResetQueueItem re-runs one retrieval without re-submitting the job: the
// job goes back to pending, the chosen item restarts with a clean trail and
// prior results are discarded.
func (s *Service) ResetQueueItem(tenantID, jobID, itemID uuid.UUID) (*models.ConciliationJob, error) {
	now := s.now()
	if err := s.jobs.ResetToPending(jobID, tenantID, now); err != nil {
		return nil, err
	}
	if err := s.queue.ResetToPending(itemID, jobID, tenantID, now); err != nil {
		return nil, err
	}
	if err := s.results.DeleteByJob(jobID, tenantID); err != nil {
		return nil, err
	}
	return s.jobs.FindByIDForTenant(jobID, tenantID)
}

// DeleteJob cascades: match results, queue items, the job itself and its
// on-disk artifacts.
func (s *Service) DeleteJob(tenantID, jobID uuid.UUID) error {
	if err := s.results.DeleteByJob(jobID, tenantID); err != nil {
		return err
	}
	if err := s.queue.DeleteByJob(jobID, tenantID); err != nil {
		return err
	}
	if err := s.jobs.Delete(jobID, tenantID); err != nil {
		return err
	}
	jobDir := filepath.Join(s.cfg.DownloadsDir, jobID.String())
	if err := os.RemoveAll(jobDir); err != nil {
		s.log.Warn("failed to remove job artifacts",
			zap.String("job_id", jobID.String()),
			zap.Error(err))
	}
	return nil
}

// JobDetail is the operator view: the job, its queue and the latest result.
type JobDetail struct {
	Job    *models.ConciliationJob `json:"job"`
	Queue  []models.QueueItem      `json:"queue"`
	Result *models.MatchResult     `json:"result,omitempty"`
}

// Detail returns a job with its queue and authoritative result. Non-admin
// callers only see their own jobs.
func (s *Service) Detail(tenantID, userID, jobID uuid.UUID, admin bool) (*JobDetail, error) {
	job, err := s.jobs.FindByIDForTenant(jobID, tenantID)
	if err != nil {
		return nil, err
	}
	if !admin && job.UserID != userID {
		return nil, errors.Newf("conciliation job not found: %s", jobID)
	}
	items, err := s.queue.FindByJob(jobID)
	if err != nil {
		return nil, err
	}
	result, err := s.results.LatestByJob(jobID, tenantID)
	if err != nil {
		return nil, err
	}
	return &JobDetail{Job: job, Queue: items, Result: result}, nil
}

// List returns a tenant's jobs newest first; non-admin callers only see
// their own.
func (s *Service) List(tenantID, userID uuid.UUID, admin bool) ([]models.ConciliationJob, error) {
	if admin {
		return s.jobs.ListForTenant(tenantID, nil)
	}
	return s.jobs.ListForTenant(tenantID, &userID)
}

// NotifyExpiringCredentials notifies each tenant about credentials expiring
// between yesterday and ExpiryNoticeDays days from now. Returns the number
// of tenants notified.
func (s *Service) NotifyExpiringCredentials() (int, error) {
	today := s.now().Truncate(24 * time.Hour)
	from := today.AddDate(0, 0, -1)
	to := today.AddDate(0, 0, s.cfg.ExpiryNoticeDays)

	creds, err := s.credentials.FindExpiring(from, to)
	if err != nil {
		return 0, err
	}

	byTenant := make(map[uuid.UUID][]models.Credential)
	for _, c := range creds {
		byTenant[c.TenantID] = append(byTenant[c.TenantID], c)
	}
	for tenantID, tenantCreds := range byTenant {
		if err := s.notifier.CredentialsExpiring(tenantID, tenantCreds); err != nil {
			s.log.Warn("expiry notification failed",
				zap.String("tenant_id", tenantID.String()),
				zap.Error(err))
		}
	}
	return len(byTenant), nil
}
