package job

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/regionblur/internal/compositor"
)

func newTestRedisRepository(t *testing.T, ttl time.Duration) (*RedisRepository, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	repo := NewRedisRepositoryWithClient(client, ttl, "")
	t.Cleanup(func() { _ = repo.Close() })
	return repo, mr
}

func TestNewRedisRepository(t *testing.T) {
	t.Run("connects", func(t *testing.T) {
		mr := miniredis.RunT(t)
		repo, err := NewRedisRepository(context.Background(), RedisConfig{Addr: mr.Addr()})
		require.NoError(t, err)
		defer func() { _ = repo.Close() }()
		assert.Equal(t, DefaultRedisKeyPrefix, repo.prefix)
	})

	t.Run("unreachable server", func(t *testing.T) {
		mr := miniredis.RunT(t)
		addr := mr.Addr()
		mr.Close()

		_, err := NewRedisRepository(context.Background(), RedisConfig{Addr: addr})
		assert.Error(t, err)
	})
}

func TestRedisRepository_KeyLayout(t *testing.T) {
	repo, mr := newTestRedisRepository(t, 0)
	ctx := context.Background()

	job := New()
	job.SetTasks([]compositor.RegionTask{
		compositor.NewRegionTask(compositor.Region{X1: 100, Y1: 100, X2: 200, Y2: 150}, 1, 5),
	})
	require.NoError(t, repo.Save(ctx, job))

	assert.True(t, mr.Exists("regionblur:job:"+job.ID))
	assert.Equal(t, time.Duration(0), mr.TTL("regionblur:job:"+job.ID))
	members, err := mr.SMembers("regionblur:jobs")
	require.NoError(t, err)
	assert.Equal(t, []string{job.ID}, members)

	raw, err := mr.Get("regionblur:job:" + job.ID)
	require.NoError(t, err)
	assert.Contains(t, raw, `"start_time":1`)
	assert.Contains(t, raw, `"status":"IN_QUEUE"`)
}

func TestRedisRepository_CustomPrefix(t *testing.T) {
	mr := miniredis.RunT(t)
	repo := NewRedisRepositoryWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), 0, "staging")
	defer func() { _ = repo.Close() }()

	job := New()
	require.NoError(t, repo.Save(context.Background(), job))
	assert.True(t, mr.Exists("staging:job:"+job.ID))
	assert.False(t, mr.Exists("regionblur:job:"+job.ID))
}

func TestRedisRepository_FindByID_Corrupt(t *testing.T) {
	repo, mr := newTestRedisRepository(t, 0)
	require.NoError(t, mr.Set("regionblur:job:bad", "{not json"))

	_, err := repo.FindByID(context.Background(), "bad")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrJobNotFound)
}

func TestRedisRepository_TTL(t *testing.T) {
	repo, mr := newTestRedisRepository(t, time.Hour)
	ctx := context.Background()

	job := New()
	require.NoError(t, repo.Save(ctx, job))
	assert.Equal(t, time.Hour, mr.TTL("regionblur:job:"+job.ID))

	mr.FastForward(2 * time.Hour)

	_, err := repo.FindByID(ctx, job.ID)
	assert.ErrorIs(t, err, ErrJobNotFound)

	// Expired documents are pruned from the index on List
	jobs, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, jobs)
	members, _ := mr.SMembers("regionblur:jobs")
	assert.Empty(t, members)
}
