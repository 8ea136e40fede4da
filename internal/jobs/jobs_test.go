package jobs

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toricodesthings/pdf-quiz-extraction-service/internal/types"
)

func TestMemoryPutGet(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(time.Minute)

	_, err := m.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	st := types.JobStatus{RequestID: "job-1", Status: types.JobQueued, Timestamp: Now()}
	require.NoError(t, m.Put(ctx, st))

	got, err := m.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, types.JobQueued, got.Status)

	st.Status = types.JobCompleted
	st.Progress = 1
	st.Result = &types.ProcessResponse{RequestID: "job-1", Questions: []types.Question{}}
	require.NoError(t, m.Put(ctx, st))

	got, err = m.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, types.JobCompleted, got.Status)
	require.NotNil(t, got.Result)
	assert.Equal(t, 1, m.Len())
}

func TestMemoryExpiry(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(time.Minute)
	clock := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return clock }

	require.NoError(t, m.Put(ctx, types.JobStatus{RequestID: "old"}))
	clock = clock.Add(30 * time.Second)
	require.NoError(t, m.Put(ctx, types.JobStatus{RequestID: "new"}))

	clock = clock.Add(31 * time.Second)
	_, err := m.Get(ctx, "old")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = m.Get(ctx, "new")
	assert.NoError(t, err)

	assert.Equal(t, 1, m.Sweep())
	assert.Equal(t, 1, m.Len())
}

func TestMemoryCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m := NewMemory(0)
	assert.ErrorIs(t, m.Put(ctx, types.JobStatus{RequestID: "x"}), context.Canceled)
}

func TestNow(t *testing.T) {
	before := float64(time.Now().Unix())
	assert.GreaterOrEqual(t, Now(), before)
}

// TEST_REDIS_URL points at a disposable Redis instance.
func TestRedisStore(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	ctx := context.Background()
	r, err := NewRedis(ctx, url, time.Minute)
	require.NoError(t, err)
	defer r.Close()

	id := uuid.NewString()
	_, err = r.Get(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)

	want := types.JobStatus{RequestID: id, Status: types.JobProcessing, Progress: 0.5, Message: "Page 2 of 4", Timestamp: Now()}
	require.NoError(t, r.Put(ctx, want))

	got, err := r.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestNewRedisBadURL(t *testing.T) {
	_, err := NewRedis(context.Background(), "not-a-url", time.Minute)
	assert.Error(t, err)
}
