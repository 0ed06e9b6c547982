package memory

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/scanpipe/scanpipe/internal/core/domain"
	"github.com/scanpipe/scanpipe/internal/infra/storage"
)

// MemoryStorage backs the repositories with maps, for tests and local runs.
type MemoryStorage struct {
	jobs       map[string]*domain.Job
	dedupeKeys map[string]string // dedupe key -> job ID
	results    map[string]*domain.Result
	mu         sync.RWMutex
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		jobs:       make(map[string]*domain.Job),
		dedupeKeys: make(map[string]string),
		results:    make(map[string]*domain.Result),
	}
}

// -----------------------------------------------------------------------------
// Job Repository
// -----------------------------------------------------------------------------

type JobRepo struct {
	store *MemoryStorage
}

func NewJobRepo(store *MemoryStorage) *JobRepo {
	return &JobRepo{store: store}
}

func (r *JobRepo) Create(ctx context.Context, job *domain.Job) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if job.DedupeKey != "" {
		if _, exists := r.store.dedupeKeys[job.DedupeKey]; exists {
			return storage.ErrDuplicateJob
		}
	}

	now := time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	if job.UpdatedAt.IsZero() {
		job.UpdatedAt = now
	}

	cp := *job
	r.store.jobs[job.JobID] = &cp
	if job.DedupeKey != "" {
		r.store.dedupeKeys[job.DedupeKey] = job.JobID
	}
	return nil
}

func (r *JobRepo) Get(ctx context.Context, jobID string) (*domain.Job, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	job, ok := r.store.jobs[jobID]
	if !ok {
		return nil, storage.ErrJobNotFound
	}
	cp := *job
	return &cp, nil
}

func (r *JobRepo) GetByDedupeKey(ctx context.Context, key string) (*domain.Job, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	jobID, ok := r.store.dedupeKeys[key]
	if !ok {
		return nil, storage.ErrJobNotFound
	}
	cp := *r.store.jobs[jobID]
	return &cp, nil
}

func (r *JobRepo) UpdateStatus(
	ctx context.Context,
	jobID string,
	from, to domain.JobStatus,
	errorMessage string,
) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	job, ok := r.store.jobs[jobID]
	if !ok {
		return storage.ErrJobNotFound
	}
	if from != "" && job.Status != from && to != domain.JobStatusFailed {
		return storage.ErrStatusConflict
	}

	job.Status = to
	job.ErrorMessage = errorMessage
	job.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *JobRepo) List(
	ctx context.Context,
	status domain.JobStatus,
	limit int,
) ([]*domain.Job, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}

	var jobs []*domain.Job
	for _, job := range r.store.jobs {
		if status != "" && job.Status != status {
			continue
		}
		cp := *job
		jobs = append(jobs, &cp)
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
	if len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs, nil
}

// -----------------------------------------------------------------------------
// Result Repository
// -----------------------------------------------------------------------------

type ResultRepo struct {
	store *MemoryStorage
}

func NewResultRepo(store *MemoryStorage) *ResultRepo {
	return &ResultRepo{store: store}
}

func (r *ResultRepo) Upsert(ctx context.Context, jobID string, patch domain.ResultPatch) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	now := time.Now().UTC()
	res, ok := r.store.results[jobID]
	if !ok {
		res = &domain.Result{
			ResultID:  uuid.NewString(),
			JobID:     jobID,
			CreatedAt: now,
		}
		r.store.results[jobID] = res
	}
	res.Merge(patch)
	res.UpdatedAt = now
	return nil
}

func (r *ResultRepo) GetByJob(ctx context.Context, jobID string) (*domain.Result, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	res, ok := r.store.results[jobID]
	if !ok {
		return nil, storage.ErrJobNotFound
	}
	cp := *res
	cp.ConfidenceScores = maps.Clone(res.ConfidenceScores)
	cp.ProcessingMetrics = maps.Clone(res.ProcessingMetrics)
	return &cp, nil
}
