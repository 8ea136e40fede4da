// Package jobs tracks the status of asynchronous processing requests.
package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/toricodesthings/pdf-quiz-extraction-service/internal/types"
)

var ErrNotFound = errors.New("job not found")

// Store keeps job status records for a limited time.
type Store interface {
	Put(ctx context.Context, st types.JobStatus) error
	Get(ctx context.Context, id string) (types.JobStatus, error)
	Close() error
}

// Now returns the current time as fractional unix seconds, the timestamp
// format of status records.
func Now() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}

type entry struct {
	status  types.JobStatus
	expires time.Time
}

// Memory is an in-process Store. Expired entries are invisible to Get and
// removed by Sweep.
type Memory struct {
	ttl time.Duration
	now func() time.Time

	mu   sync.RWMutex
	jobs map[string]entry
}

func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Memory{ttl: ttl, now: time.Now, jobs: make(map[string]entry)}
}

func (m *Memory) Put(ctx context.Context, st types.JobStatus) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	m.jobs[st.RequestID] = entry{status: st, expires: m.now().Add(m.ttl)}
	m.mu.Unlock()
	return nil
}

func (m *Memory) Get(ctx context.Context, id string) (types.JobStatus, error) {
	if err := ctx.Err(); err != nil {
		return types.JobStatus{}, err
	}
	m.mu.RLock()
	e, ok := m.jobs[id]
	m.mu.RUnlock()
	if !ok || !m.now().Before(e.expires) {
		return types.JobStatus{}, ErrNotFound
	}
	return e.status, nil
}

// Sweep drops expired entries and returns how many were removed.
func (m *Memory) Sweep() int {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, e := range m.jobs {
		if !now.Before(e.expires) {
			delete(m.jobs, id)
			n++
		}
	}
	return n
}

// Len counts stored entries, expired or not.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.jobs)
}

func (m *Memory) Close() error { return nil }
