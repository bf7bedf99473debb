package job

import (
	"context"
	"sync"
	"time"
)

// Compile-time check that MemoryRepository implements Repository.
var _ Repository = (*MemoryRepository)(nil)

// MemoryOption configures a MemoryRepository.
type MemoryOption func(*MemoryRepository)

// WithMemoryTTL expires a job ttl after its last Save, mirroring the Redis
// key expiry. Zero keeps jobs until deleted.
func WithMemoryTTL(ttl time.Duration) MemoryOption {
	return func(r *MemoryRepository) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

// withClock replaces time.Now in tests.
func withClock(now func() time.Time) MemoryOption {
	return func(r *MemoryRepository) {
		r.now = now
	}
}

type memoryEntry struct {
	snapshot *Job
	expires  time.Time // zero means never
}

// MemoryRepository keeps job snapshots in process memory.
// Jobs are lost on restart; use RedisRepository when they must survive one.
type MemoryRepository struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryRepository creates an empty in-memory job repository.
func NewMemoryRepository(opts ...MemoryOption) *MemoryRepository {
	r := &MemoryRepository{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Save stores a snapshot of job, so later changes to job are not visible
// until it is saved again.
func (r *MemoryRepository) Save(_ context.Context, job *Job) error {
	e := memoryEntry{snapshot: job.Clone()}
	if r.ttl > 0 {
		e.expires = r.now().Add(r.ttl)
	}

	r.mu.Lock()
	r.entries[e.snapshot.ID] = e
	r.mu.Unlock()
	return nil
}

// FindByID returns a copy of the stored job.
func (r *MemoryRepository) FindByID(_ context.Context, id string) (*Job, error) {
	r.mu.RLock()
	e, ok := r.entries[id]
	r.mu.RUnlock()
	if !ok || r.expired(e) {
		return nil, ErrJobNotFound
	}
	return e.snapshot.Clone(), nil
}

// List returns copies of all live jobs, newest first. Expired jobs are dropped.
func (r *MemoryRepository) List(_ context.Context) ([]*Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	jobs := make([]*Job, 0, len(r.entries))
	for id, e := range r.entries {
		if r.expired(e) {
			delete(r.entries, id)
			continue
		}
		jobs = append(jobs, e.snapshot.Clone())
	}
	sortNewestFirst(jobs)
	return jobs, nil
}

// Delete removes a job.
func (r *MemoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok || r.expired(e) {
		return ErrJobNotFound
	}
	delete(r.entries, id)
	return nil
}

func (r *MemoryRepository) expired(e memoryEntry) bool {
	return !e.expires.IsZero() && !r.now().Before(e.expires)
}
