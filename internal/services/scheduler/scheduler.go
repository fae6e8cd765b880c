// Package scheduler advances the retrieval queue. Every call to Tick is
// self-contained: there is no resident worker, the expectation is a
// cron-style trigger hitting the process-queue endpoint.
package scheduler

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"commission-conciliation-backend/internal/models"
	"commission-conciliation-backend/internal/repository"
	"commission-conciliation-backend/internal/services/retrieval"
)

// Activity labels written to queue item trails, one per lifecycle step
// attempted.
const (
	ActivityProcessStarted  = "Process started"
	ActivityAgentFound      = "Agent found"
	ActivityJobFound        = "Job found"
	ActivityRetrievalFailed = "Retrieval failed"
)

// QueueStore is the subset of queue item persistence the scheduler needs.
// Claim and ReclaimStale must be atomic conditional updates: two concurrent
// ticks may never advance the same item, and Claim must check the running
// ceiling and transition the item in one step so overlapping ticks cannot
// together exceed maxRunning.
type QueueStore interface {
	ReclaimStale(provider models.Provider, threshold time.Duration, now time.Time) (int, error)
	CountByStatus(provider models.Provider, status models.QueueStatus) (int, error)
	Claim(provider models.Provider, maxRunning int, now time.Time) (*models.QueueItem, error)
	Update(item *models.QueueItem) error
}

// CredentialStore resolves an item's agent identifier to a credential.
// A nil credential with nil error means no credential exists.
type CredentialStore interface {
	FindByIdentifier(provider models.Provider, identifier string) (*models.Credential, error)
}

// JobStore resolves an item's owning job.
type JobStore interface {
	FindByID(id uuid.UUID) (*models.ConciliationJob, error)
}

// TickSummary reports what a single tick did for one provider.
type TickSummary struct {
	Provider     models.Provider   `json:"provider"`
	Reclaimed    int               `json:"reclaimed"`
	Claimed      *models.QueueItem `json:"claimed,omitempty"`
	Outcome      models.QueueStatus `json:"outcome,omitempty"`
	RunningCount int               `json:"running_count"`
	PendingCount int               `json:"pending_count"`
}

type Config struct {
	// MaxConcurrent is the per-provider ceiling of simultaneously running
	// items. Providers missing from the map default to 1.
	MaxConcurrent map[models.Provider]int
	// StaleAfter is how long an item may sit in running state before a
	// tick reclaims it as failed.
	StaleAfter time.Duration
}

type Scheduler struct {
	queue       QueueStore
	credentials CredentialStore
	jobs        JobStore
	adapters    retrieval.Registry
	cfg         Config
	log         *zap.Logger
	now         func() time.Time
}

func New(queue QueueStore, credentials CredentialStore, jobs JobStore, adapters retrieval.Registry, cfg Config, log *zap.Logger) *Scheduler {
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 5 * time.Minute
	}
	return &Scheduler{
		queue:       queue,
		credentials: credentials,
		jobs:        jobs,
		adapters:    adapters,
		cfg:         cfg,
		log:         log,
		now:         time.Now,
	}
}

func (s *Scheduler) maxConcurrent(provider models.Provider) int {
	if n, ok := s.cfg.MaxConcurrent[provider]; ok && n > 0 {
		return n
	}
	return 1
}

// TickAll runs one tick per provider. A provider's store failure is logged
// and reported in its summary slot but never stops the remaining providers.
func (s *Scheduler) TickAll(ctx context.Context) []TickSummary {
	summaries := make([]TickSummary, 0, len(models.AllProviders()))
	for _, provider := range models.AllProviders() {
		summary, err := s.Tick(ctx, provider)
		if err != nil {
			s.log.Error("queue tick failed",
				zap.String("provider", string(provider)),
				zap.Error(err))
			summary = TickSummary{Provider: provider}
		}
		summaries = append(summaries, summary)
	}
	return summaries
}

// Tick advances at most one pending item for the provider: reclaim stale
// running items, honor the concurrency ceiling, claim the oldest pending
// item and execute its retrieval synchronously. Adapter failures terminate
// the item, never the tick; only store errors are returned.
func (s *Scheduler) Tick(ctx context.Context, provider models.Provider) (TickSummary, error) {
	now := s.now()
	summary := TickSummary{Provider: provider}

	reclaimed, err := s.queue.ReclaimStale(provider, s.cfg.StaleAfter, now)
	if err != nil {
		return summary, errors.Wrap(err, "reclaim failed")
	}
	summary.Reclaimed = reclaimed

	running, err := s.queue.CountByStatus(provider, models.QueueStatusRunning)
	if err != nil {
		return summary, errors.Wrap(err, "running count failed")
	}
	summary.RunningCount = running

	pending, err := s.queue.CountByStatus(provider, models.QueueStatusPending)
	if err != nil {
		return summary, errors.Wrap(err, "pending count failed")
	}
	summary.PendingCount = pending

	// The counts above are advisory, for the summary; the ceiling itself is
	// enforced inside Claim, where count and transition are one atomic step.
	if running >= s.maxConcurrent(provider) {
		return summary, nil
	}

	item, err := s.queue.Claim(provider, s.maxConcurrent(provider), now)
	if err != nil {
		return summary, errors.Wrap(err, "claim failed")
	}
	if item == nil {
		summary.PendingCount = 0
		return summary, nil
	}
	summary.Claimed = item
	summary.PendingCount = pending - 1
	summary.RunningCount = running + 1

	item.AppendActivity(ActivityProcessStarted, true)

	credential, err := s.credentials.FindByIdentifier(provider, item.Identifier)
	if err != nil {
		return summary, errors.Wrap(err, "credential lookup failed")
	}
	if credential == nil {
		summary.Outcome = s.failItem(item, ActivityAgentFound)
		return summary, nil
	}
	item.AppendActivity(ActivityAgentFound, true)

	job, err := s.jobs.FindByID(item.JobID)
	if errors.Is(err, repository.ErrJobNotFound) {
		summary.Outcome = s.failItem(item, ActivityJobFound)
		return summary, nil
	}
	if err != nil {
		return summary, errors.Wrap(err, "job lookup failed")
	}
	item.AppendActivity(ActivityJobFound, true)

	if err := s.queue.Update(item); err != nil {
		return summary, errors.Wrap(err, "queue update failed")
	}

	s.log.Info("executing retrieval",
		zap.String("provider", string(provider)),
		zap.String("item_id", item.ID.String()),
		zap.String("identifier", item.Identifier))

	summary.Outcome = s.execute(ctx, item, job, credential)
	return summary, nil
}

// execute runs the retrieval adapter and folds its outcome into the item's
// terminal state. The call blocks for the duration of the retrieval.
func (s *Scheduler) execute(ctx context.Context, item *models.QueueItem, job *models.ConciliationJob, credential *models.Credential) models.QueueStatus {
	adapter, ok := s.adapters.For(item.Provider)
	if !ok {
		s.log.Warn("no retrieval adapter registered",
			zap.String("provider", string(item.Provider)))
		return s.failItem(item, ActivityRetrievalFailed)
	}

	trail, err := adapter.Execute(ctx, job, credential)
	finished := s.now()
	if err != nil {
		item.Activities = append(item.Activities, trail...)
		item.AppendActivity(ActivityRetrievalFailed, false)
		item.Status = models.QueueStatusFailed
		item.FinishedAt = &finished
		s.log.Warn("retrieval failed",
			zap.String("item_id", item.ID.String()),
			zap.Error(err))
	} else {
		item.Activities = append(item.Activities, trail...)
		item.Status = models.QueueStatusCompleted
		item.FinishedAt = &finished
	}

	if err := s.queue.Update(item); err != nil {
		s.log.Error("failed to persist queue item outcome",
			zap.String("item_id", item.ID.String()),
			zap.Error(err))
	}
	return item.Status
}

// failItem marks a lifecycle step as failed and terminates the item.
func (s *Scheduler) failItem(item *models.QueueItem, label string) models.QueueStatus {
	finished := s.now()
	item.AppendActivity(label, false)
	item.Status = models.QueueStatusFailed
	item.FinishedAt = &finished
	if err := s.queue.Update(item); err != nil {
		s.log.Error("failed to persist queue item failure",
			zap.String("item_id", item.ID.String()),
			zap.Error(err))
	}
	return item.Status
}
