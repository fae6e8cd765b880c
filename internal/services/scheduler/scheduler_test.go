package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"commission-conciliation-backend/internal/models"
	"commission-conciliation-backend/internal/repository"
	"commission-conciliation-backend/internal/services/retrieval"
)

type fakeQueue struct {
	mu          sync.Mutex
	items       []*models.QueueItem
	updated     []*models.QueueItem
	claimErr    error
	afterCount  func(status models.QueueStatus)
	peakRunning int
}

func (f *fakeQueue) ReclaimStale(provider models.Provider, threshold time.Duration, now time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	reclaimed := 0
	for _, item := range f.items {
		if item.Provider != provider || item.Status != models.QueueStatusRunning {
			continue
		}
		if item.StartedAt == nil || now.Sub(*item.StartedAt) < threshold {
			continue
		}
		item.Status = models.QueueStatusFailed
		item.AppendActivity(repository.TimeoutLabel, false)
		item.FinishedAt = &now
		reclaimed++
	}
	return reclaimed, nil
}

func (f *fakeQueue) CountByStatus(provider models.Provider, status models.QueueStatus) (int, error) {
	f.mu.Lock()
	n := 0
	for _, item := range f.items {
		if item.Provider == provider && item.Status == status {
			n++
		}
	}
	f.mu.Unlock()
	if f.afterCount != nil {
		f.afterCount(status)
	}
	return n, nil
}

// Claim enforces the running ceiling and the item transition under one lock,
// matching the repository's advisory-lock contract.
func (f *fakeQueue) Claim(provider models.Provider, maxRunning int, now time.Time) (*models.QueueItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.claimErr != nil {
		return nil, f.claimErr
	}
	running := 0
	for _, item := range f.items {
		if item.Provider == provider && item.Status == models.QueueStatusRunning {
			running++
		}
	}
	if running >= maxRunning {
		return nil, nil
	}
	var oldest *models.QueueItem
	for _, item := range f.items {
		if item.Provider != provider || item.Status != models.QueueStatusPending {
			continue
		}
		if oldest == nil || item.CreatedAt.Before(oldest.CreatedAt) {
			oldest = item
		}
	}
	if oldest == nil {
		return nil, nil
	}
	oldest.Status = models.QueueStatusRunning
	oldest.StartedAt = &now
	if running+1 > f.peakRunning {
		f.peakRunning = running + 1
	}
	return oldest, nil
}

func (f *fakeQueue) Update(item *models.QueueItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updated = append(f.updated, item)
	return nil
}

type fakeCredentials struct {
	byIdentifier map[string]*models.Credential
}

func (f *fakeCredentials) FindByIdentifier(provider models.Provider, identifier string) (*models.Credential, error) {
	return f.byIdentifier[identifier], nil
}

type fakeJobs struct {
	byID map[uuid.UUID]*models.ConciliationJob
}

func (f *fakeJobs) FindByID(id uuid.UUID) (*models.ConciliationJob, error) {
	job, ok := f.byID[id]
	if !ok {
		return nil, repository.ErrJobNotFound
	}
	return job, nil
}

type fakeAdapter struct {
	trail []models.Activity
	err   error
	calls int
}

func (f *fakeAdapter) Execute(ctx context.Context, job *models.ConciliationJob, credential *models.Credential) ([]models.Activity, error) {
	f.calls++
	return f.trail, f.err
}

func pendingItem(provider models.Provider, identifier string, jobID uuid.UUID, createdAt time.Time) *models.QueueItem {
	return &models.QueueItem{
		ID:         uuid.New(),
		Provider:   provider,
		Identifier: identifier,
		JobID:      jobID,
		Status:     models.QueueStatusPending,
		CreatedAt:  createdAt,
	}
}

func newTestScheduler(queue *fakeQueue, creds *fakeCredentials, jobs *fakeJobs, adapters retrieval.Registry, cfg Config) *Scheduler {
	s := New(queue, creds, jobs, adapters, cfg, zap.NewNop())
	s.now = func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) }
	return s
}

func TestTickClaimsOldestPendingAndCompletes(t *testing.T) {
	jobID := uuid.New()
	base := time.Date(2025, 3, 1, 11, 0, 0, 0, time.UTC)
	older := pendingItem(models.ProviderQualitas, "12345", jobID, base)
	newer := pendingItem(models.ProviderQualitas, "67890", jobID, base.Add(time.Minute))

	queue := &fakeQueue{items: []*models.QueueItem{newer, older}}
	creds := &fakeCredentials{byIdentifier: map[string]*models.Credential{
		"12345": {Identifier: "12345", Provider: models.ProviderQualitas},
	}}
	jobs := &fakeJobs{byID: map[uuid.UUID]*models.ConciliationJob{
		jobID: {ID: jobID, Provider: models.ProviderQualitas},
	}}
	adapter := &fakeAdapter{trail: []models.Activity{{Label: "Statement downloaded", Outcome: true}}}

	s := newTestScheduler(queue, creds, jobs,
		retrieval.Registry{models.ProviderQualitas: adapter}, Config{})

	summary, err := s.Tick(context.Background(), models.ProviderQualitas)
	require.NoError(t, err)
	require.NotNil(t, summary.Claimed)
	assert.Equal(t, older.ID, summary.Claimed.ID)
	assert.Equal(t, models.QueueStatusCompleted, summary.Outcome)
	assert.Equal(t, 1, adapter.calls)

	assert.Equal(t, models.QueueStatusCompleted, older.Status)
	require.NotNil(t, older.FinishedAt)
	assert.Equal(t, models.QueueStatusPending, newer.Status)

	labels := make([]string, 0, len(older.Activities))
	for _, a := range older.Activities {
		labels = append(labels, a.Label)
	}
	assert.Equal(t, []string{
		ActivityProcessStarted, ActivityAgentFound, ActivityJobFound, "Statement downloaded",
	}, labels)
}

func TestTickHonorsConcurrencyCeiling(t *testing.T) {
	jobID := uuid.New()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	startedAt := now.Add(-time.Minute)

	running := pendingItem(models.ProviderHDI, "11111", jobID, now.Add(-time.Hour))
	running.Status = models.QueueStatusRunning
	running.StartedAt = &startedAt
	waiting := pendingItem(models.ProviderHDI, "22222", jobID, now.Add(-time.Hour))

	queue := &fakeQueue{items: []*models.QueueItem{running, waiting}}
	s := newTestScheduler(queue, &fakeCredentials{}, &fakeJobs{}, retrieval.Registry{}, Config{})

	summary, err := s.Tick(context.Background(), models.ProviderHDI)
	require.NoError(t, err)
	assert.Nil(t, summary.Claimed)
	assert.Equal(t, 1, summary.RunningCount)
	assert.Equal(t, 1, summary.PendingCount)
	assert.Equal(t, models.QueueStatusPending, waiting.Status)
}

func TestTickReclaimsStaleRunningItems(t *testing.T) {
	jobID := uuid.New()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	startedAt := now.Add(-10 * time.Minute)

	stale := pendingItem(models.ProviderChubb, "33333", jobID, now.Add(-time.Hour))
	stale.Status = models.QueueStatusRunning
	stale.StartedAt = &startedAt

	queue := &fakeQueue{items: []*models.QueueItem{stale}}
	s := newTestScheduler(queue, &fakeCredentials{}, &fakeJobs{}, retrieval.Registry{}, Config{})

	summary, err := s.Tick(context.Background(), models.ProviderChubb)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Reclaimed)
	assert.Equal(t, models.QueueStatusFailed, stale.Status)
	require.NotEmpty(t, stale.Activities)
	last := stale.Activities[len(stale.Activities)-1]
	assert.Equal(t, repository.TimeoutLabel, last.Label)
	assert.False(t, last.Outcome)
}

func TestTickFailsItemWhenCredentialMissing(t *testing.T) {
	jobID := uuid.New()
	item := pendingItem(models.ProviderQualitas, "99999", jobID, time.Now())

	queue := &fakeQueue{items: []*models.QueueItem{item}}
	s := newTestScheduler(queue, &fakeCredentials{}, &fakeJobs{}, retrieval.Registry{}, Config{})

	summary, err := s.Tick(context.Background(), models.ProviderQualitas)
	require.NoError(t, err)
	assert.Equal(t, models.QueueStatusFailed, summary.Outcome)
	assert.Equal(t, models.QueueStatusFailed, item.Status)

	last := item.Activities[len(item.Activities)-1]
	assert.Equal(t, ActivityAgentFound, last.Label)
	assert.False(t, last.Outcome)
}

func TestTickFailsItemWhenJobMissing(t *testing.T) {
	item := pendingItem(models.ProviderQualitas, "12345", uuid.New(), time.Now())

	queue := &fakeQueue{items: []*models.QueueItem{item}}
	creds := &fakeCredentials{byIdentifier: map[string]*models.Credential{
		"12345": {Identifier: "12345"},
	}}
	s := newTestScheduler(queue, creds, &fakeJobs{byID: map[uuid.UUID]*models.ConciliationJob{}},
		retrieval.Registry{}, Config{})

	summary, err := s.Tick(context.Background(), models.ProviderQualitas)
	require.NoError(t, err)
	assert.Equal(t, models.QueueStatusFailed, summary.Outcome)

	last := item.Activities[len(item.Activities)-1]
	assert.Equal(t, ActivityJobFound, last.Label)
	assert.False(t, last.Outcome)
}

func TestTickAdapterFailureTerminatesItemNotTick(t *testing.T) {
	jobID := uuid.New()
	item := pendingItem(models.ProviderQualitas, "12345", jobID, time.Now())

	queue := &fakeQueue{items: []*models.QueueItem{item}}
	creds := &fakeCredentials{byIdentifier: map[string]*models.Credential{
		"12345": {Identifier: "12345"},
	}}
	jobs := &fakeJobs{byID: map[uuid.UUID]*models.ConciliationJob{
		jobID: {ID: jobID},
	}}
	adapter := &fakeAdapter{
		trail: []models.Activity{{Label: "Login", Outcome: false}},
		err:   errors.New("portal unreachable"),
	}
	s := newTestScheduler(queue, creds, jobs,
		retrieval.Registry{models.ProviderQualitas: adapter}, Config{})

	summary, err := s.Tick(context.Background(), models.ProviderQualitas)
	require.NoError(t, err)
	assert.Equal(t, models.QueueStatusFailed, summary.Outcome)
	assert.Equal(t, models.QueueStatusFailed, item.Status)
	require.NotNil(t, item.FinishedAt)

	last := item.Activities[len(item.Activities)-1]
	assert.Equal(t, ActivityRetrievalFailed, last.Label)
	assert.False(t, last.Outcome)
}

func TestTickMissingAdapterFailsItem(t *testing.T) {
	jobID := uuid.New()
	item := pendingItem(models.ProviderHDI, "12345", jobID, time.Now())

	queue := &fakeQueue{items: []*models.QueueItem{item}}
	creds := &fakeCredentials{byIdentifier: map[string]*models.Credential{
		"12345": {Identifier: "12345"},
	}}
	jobs := &fakeJobs{byID: map[uuid.UUID]*models.ConciliationJob{
		jobID: {ID: jobID},
	}}
	s := newTestScheduler(queue, creds, jobs, retrieval.Registry{}, Config{})

	summary, err := s.Tick(context.Background(), models.ProviderHDI)
	require.NoError(t, err)
	assert.Equal(t, models.QueueStatusFailed, summary.Outcome)

	last := item.Activities[len(item.Activities)-1]
	assert.Equal(t, ActivityRetrievalFailed, last.Label)
}

func TestTickEmptyQueueIsNoop(t *testing.T) {
	queue := &fakeQueue{}
	s := newTestScheduler(queue, &fakeCredentials{}, &fakeJobs{}, retrieval.Registry{}, Config{})

	summary, err := s.Tick(context.Background(), models.ProviderQualitas)
	require.NoError(t, err)
	assert.Nil(t, summary.Claimed)
	assert.Zero(t, summary.PendingCount)
	assert.Empty(t, queue.updated)
}

type blockingAdapter struct {
	entered chan struct{}
	release chan struct{}
}

func (b *blockingAdapter) Execute(ctx context.Context, job *models.ConciliationJob, credential *models.Credential) ([]models.Activity, error) {
	close(b.entered)
	<-b.release
	return nil, nil
}

func TestOverlappingTicksCannotExceedCeiling(t *testing.T) {
	jobID := uuid.New()
	base := time.Date(2025, 3, 1, 11, 0, 0, 0, time.UTC)
	first := pendingItem(models.ProviderQualitas, "11111", jobID, base)
	second := pendingItem(models.ProviderQualitas, "22222", jobID, base.Add(time.Second))

	queue := &fakeQueue{items: []*models.QueueItem{first, second}}

	// Hold both ticks at the count step so each observes running=0 before
	// either claims; the ceiling must still hold through Claim itself.
	var barrier sync.WaitGroup
	barrier.Add(2)
	queue.afterCount = func(status models.QueueStatus) {
		if status == models.QueueStatusPending {
			barrier.Done()
			barrier.Wait()
		}
	}

	creds := &fakeCredentials{byIdentifier: map[string]*models.Credential{
		"11111": {Identifier: "11111"},
		"22222": {Identifier: "22222"},
	}}
	jobs := &fakeJobs{byID: map[uuid.UUID]*models.ConciliationJob{
		jobID: {ID: jobID, Provider: models.ProviderQualitas},
	}}
	adapter := &blockingAdapter{
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}

	s := newTestScheduler(queue, creds, jobs,
		retrieval.Registry{models.ProviderQualitas: adapter}, Config{})

	done := make(chan TickSummary, 2)
	for i := 0; i < 2; i++ {
		go func() {
			summary, err := s.Tick(context.Background(), models.ProviderQualitas)
			assert.NoError(t, err)
			done <- summary
		}()
	}

	// The tick that loses the claim returns while the winner is still
	// blocked inside the adapter.
	loser := <-done
	assert.Nil(t, loser.Claimed)

	close(adapter.release)
	winner := <-done
	require.NotNil(t, winner.Claimed)

	assert.Equal(t, 1, queue.peakRunning)
	assert.Equal(t, models.QueueStatusCompleted, first.Status)
	assert.Equal(t, models.QueueStatusPending, second.Status)
}

func TestTickAllSurvivesProviderFailure(t *testing.T) {
	queue := &fakeQueue{claimErr: errors.New("connection reset")}
	s := newTestScheduler(queue, &fakeCredentials{}, &fakeJobs{}, retrieval.Registry{}, Config{})

	summaries := s.TickAll(context.Background())
	assert.Len(t, summaries, len(models.AllProviders()))
}
