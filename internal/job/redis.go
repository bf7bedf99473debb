package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/maauso/regionblur/internal/compositor"
)

// Compile-time check that RedisRepository implements Repository.
var _ Repository = (*RedisRepository)(nil)

const (
	// DefaultRedisKeyPrefix namespaces all keys written by RedisRepository.
	DefaultRedisKeyPrefix = "regionblur"
)

// RedisConfig holds the connection settings for RedisRepository.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// TTL expires job records after the given duration. Zero keeps them forever.
	TTL time.Duration
	// KeyPrefix defaults to DefaultRedisKeyPrefix.
	KeyPrefix string
}

// RedisRepository persists jobs as JSON documents in Redis.
// Each job lives under <prefix>:job:<id>; the set <prefix>:jobs indexes them.
type RedisRepository struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisRepository connects to Redis and verifies the connection with PING.
func NewRedisRepository(ctx context.Context, cfg RedisConfig) (*RedisRepository, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", cfg.Addr, err)
	}

	return NewRedisRepositoryWithClient(client, cfg.TTL, cfg.KeyPrefix), nil
}

// NewRedisRepositoryWithClient wraps a preconfigured client.
func NewRedisRepositoryWithClient(client *redis.Client, ttl time.Duration, prefix string) *RedisRepository {
	if prefix == "" {
		prefix = DefaultRedisKeyPrefix
	}
	return &RedisRepository{client: client, ttl: ttl, prefix: prefix}
}

// Close releases the underlying connection pool.
func (r *RedisRepository) Close() error {
	return r.client.Close()
}

func (r *RedisRepository) jobKey(id string) string {
	return r.prefix + ":job:" + id
}

func (r *RedisRepository) indexKey() string {
	return r.prefix + ":jobs"
}

// Save writes the job document and adds it to the index atomically.
func (r *RedisRepository) Save(ctx context.Context, job *Job) error {
	snapshot := job.Clone()
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal job %s: %w", snapshot.ID, err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.jobKey(snapshot.ID), data, r.ttl)
		pipe.SAdd(ctx, r.indexKey(), snapshot.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("save job %s: %w", snapshot.ID, err)
	}
	return nil
}

// FindByID loads a job document.
func (r *RedisRepository) FindByID(ctx context.Context, id string) (*Job, error) {
	data, err := r.client.Get(ctx, r.jobKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load job %s: %w", id, err)
	}
	return decodeJob(data)
}

// List loads every indexed job. Index entries whose documents have expired
// are pruned.
func (r *RedisRepository) List(ctx context.Context) ([]*Job, error) {
	ids, err := r.client.SMembers(ctx, r.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list job ids: %w", err)
	}
	if len(ids) == 0 {
		return []*Job{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.jobKey(id)
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load jobs: %w", err)
	}

	jobs := make([]*Job, 0, len(values))
	var expired []any
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			expired = append(expired, ids[i])
			continue
		}
		job, err := decodeJob([]byte(s))
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}

	if len(expired) > 0 {
		if err := r.client.SRem(ctx, r.indexKey(), expired...).Err(); err != nil {
			return nil, fmt.Errorf("prune expired jobs: %w", err)
		}
	}

	sortNewestFirst(jobs)
	return jobs, nil
}

// Delete removes the job document and its index entry.
func (r *RedisRepository) Delete(ctx context.Context, id string) error {
	var del *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, r.jobKey(id))
		pipe.SRem(ctx, r.indexKey(), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete job %s: %w", id, err)
	}
	if del.Val() == 0 {
		return ErrJobNotFound
	}
	return nil
}

func decodeJob(data []byte) (*Job, error) {
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("decode job: %w", err)
	}
	if job.Tasks == nil {
		job.Tasks = make([]compositor.RegionTask, 0)
	}
	return &job, nil
}
