package main

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/toricodesthings/pdf-quiz-extraction-service/internal/config"
	"github.com/toricodesthings/pdf-quiz-extraction-service/internal/embed"
	"github.com/toricodesthings/pdf-quiz-extraction-service/internal/jobs"
	"github.com/toricodesthings/pdf-quiz-extraction-service/internal/pipeline"
)

const version = "2.0.0"

type server struct {
	cfg     config.Config
	log     *zap.Logger
	proc    *pipeline.Processor
	indexer *embed.Indexer
	jobs    jobs.Store

	requestSem *semaphore.Weighted
	limiters   *limiterSet
	active     atomic.Int64
	started    time.Time

	// Async jobs run on baseCtx, which outlives any single request.
	baseCtx    context.Context
	cancelBase context.CancelFunc
	jobsWG     sync.WaitGroup
}

func newServer(cfg config.Config, proc *pipeline.Processor, ix *embed.Indexer, store jobs.Store, log *zap.Logger) *server {
	if log == nil {
		log = zap.NewNop()
	}
	maxReq := cfg.MaxConcurrentRequests
	if maxReq <= 0 {
		maxReq = 15
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &server{
		cfg:        cfg,
		log:        log,
		proc:       proc,
		indexer:    ix,
		jobs:       store,
		requestSem: semaphore.NewWeighted(maxReq),
		limiters:   newLimiterSet(cfg.RateLimitEvery, cfg.RateLimitBurst),
		started:    time.Now(),
		baseCtx:    ctx,
		cancelBase: cancel,
	}
}

func (s *server) routes() http.Handler {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeErr(w, http.StatusNotFound, "not_found", "Route not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeErr(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
	})
	r.Use(s.withMetrics)

	r.HandleFunc("/", s.handleRoot).Methods(http.MethodGet)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", s.withInternalAuth(promhttp.Handler().ServeHTTP)).Methods(http.MethodGet)

	r.HandleFunc("/process", s.protected(s.handleProcess)).Methods(http.MethodPost)
	r.HandleFunc("/pdf-info", s.protected(s.handleInfo)).Methods(http.MethodPost)
	r.HandleFunc("/status/{id}", s.withInternalAuth(s.withRateLimit(s.handleStatus))).Methods(http.MethodGet)
	r.HandleFunc("/questions/search", s.withInternalAuth(s.withRateLimit(s.handleSearch))).Methods(http.MethodGet)

	return s.withRequestID(s.withLogging(s.withRecovery(r)))
}

// protected is the chain for endpoints that do document work.
func (s *server) protected(h http.HandlerFunc) http.HandlerFunc {
	return s.withInternalAuth(s.withRateLimit(s.withConcurrencyLimit(h)))
}

// housekeeping sweeps idle rate limiters and expired in-memory jobs, and logs
// a stats line, until ctx ends.
func (s *server) housekeeping(ctx context.Context) {
	interval := s.cfg.CleanupInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		limiters := s.limiters.sweep(interval)
		expired, held := 0, 0
		if m, ok := s.jobs.(*jobs.Memory); ok {
			expired = m.Sweep()
			held = m.Len()
		}
		s.log.Info("housekeeping",
			zap.Int64("active", s.active.Load()),
			zap.Int("limiters_dropped", limiters),
			zap.Int("jobs_expired", expired),
			zap.Int("jobs_held", held),
			zap.Uint64("mem_mb", memoryMB()),
		)
	}
}

// drain waits for async jobs up to timeout, then cancels the rest.
func (s *server) drain(timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		s.jobsWG.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		s.log.Warn("cancelling unfinished async jobs")
		s.cancelBase()
		<-done
	}
	s.cancelBase()
}
