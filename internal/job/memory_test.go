package job

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestMemoryRepository_TTL(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	repo := NewMemoryRepository(WithMemoryTTL(time.Hour), withClock(clock.Now))
	ctx := context.Background()

	stale := New()
	require.NoError(t, repo.Save(ctx, stale))

	clock.Advance(40 * time.Minute)
	fresh := New()
	require.NoError(t, repo.Save(ctx, fresh))

	// Saving again refreshes the expiry
	clock.Advance(10 * time.Minute)
	require.NoError(t, repo.Save(ctx, fresh))

	clock.Advance(15 * time.Minute)

	_, err := repo.FindByID(ctx, stale.ID)
	assert.ErrorIs(t, err, ErrJobNotFound)
	assert.ErrorIs(t, repo.Delete(ctx, stale.ID), ErrJobNotFound)

	found, err := repo.FindByID(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, fresh.ID, found.ID)

	jobs, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, fresh.ID, jobs[0].ID)
	assert.Len(t, repo.entries, 1, "List prunes expired entries")
}

func TestMemoryRepository_NoTTL(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	repo := NewMemoryRepository(WithMemoryTTL(0), withClock(clock.Now))
	ctx := context.Background()

	job := New()
	require.NoError(t, repo.Save(ctx, job))
	clock.Advance(24 * 365 * time.Hour)

	_, err := repo.FindByID(ctx, job.ID)
	assert.NoError(t, err)
}

func TestMemoryRepository_ConcurrentAccess(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				job := New()
				_ = repo.Save(ctx, job)
				_, _ = repo.FindByID(ctx, job.ID)
			}
		}()
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				_, _ = repo.List(ctx)
			}
		}()
	}
	wg.Wait()

	jobs, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, jobs, 200)
}
