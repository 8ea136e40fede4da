package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/toricodesthings/pdf-quiz-extraction-service/internal/types"
)

const keyPrefix = "quizproc:job:"

// Redis stores status records as JSON values that expire after the TTL.
type Redis struct {
	client redis.Cmdable
	closer func() error
	ttl    time.Duration
}

// NewRedis connects to url (redis://[:password@]host:port/db) and pings it.
func NewRedis(ctx context.Context, url string, ttl time.Duration) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	r := NewRedisWithClient(rdb, ttl)
	r.closer = rdb.Close
	return r, nil
}

// NewRedisWithClient wraps an existing client; Close leaves it open.
func NewRedisWithClient(client redis.Cmdable, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Redis{client: client, ttl: ttl}
}

func (r *Redis) Put(ctx context.Context, st types.JobStatus) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal job %s: %w", st.RequestID, err)
	}
	if err := r.client.Set(ctx, keyPrefix+st.RequestID, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("store job %s: %w", st.RequestID, err)
	}
	return nil
}

func (r *Redis) Get(ctx context.Context, id string) (types.JobStatus, error) {
	raw, err := r.client.Get(ctx, keyPrefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return types.JobStatus{}, ErrNotFound
		}
		return types.JobStatus{}, fmt.Errorf("load job %s: %w", id, err)
	}
	var st types.JobStatus
	if err := json.Unmarshal(raw, &st); err != nil {
		return types.JobStatus{}, fmt.Errorf("decode job %s: %w", id, err)
	}
	return st, nil
}

func (r *Redis) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer()
}
