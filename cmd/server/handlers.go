package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/toricodesthings/pdf-quiz-extraction-service/internal/document"
	"github.com/toricodesthings/pdf-quiz-extraction-service/internal/embed"
	"github.com/toricodesthings/pdf-quiz-extraction-service/internal/jobs"
	"github.com/toricodesthings/pdf-quiz-extraction-service/internal/pipeline"
	"github.com/toricodesthings/pdf-quiz-extraction-service/internal/types"
)

const (
	defaultSearchLimit = 10
	maxSearchLimit     = 50
	// multipartSlack covers form boundaries and the small non-file fields.
	multipartSlack = 1 << 20
)

var errFileTooLarge = errors.New("file too large")

// ---------- Handlers ----------

func (s *server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"message":      "PDF Quiz Extraction API",
		"version":      version,
		"health_check": "/health",
	})
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	active := s.active.Load()
	status := "ok"
	code := http.StatusOK

	ratio := s.cfg.HealthDegradeRatio
	if ratio <= 0 || ratio > 1 {
		ratio = 0.9
	}
	if limit := s.cfg.MaxConcurrentRequests; limit > 0 && active >= int64(float64(limit)*ratio) {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	body := map[string]any{
		"status":          status,
		"version":         version,
		"uptime":          time.Since(s.started).Seconds(),
		"memory_usage_mb": memoryMB(),
		"active":          active,
		"ocr_enabled":     s.cfg.OCREngine != "none",
		"embeddings":      s.indexer.Enabled(),
	}
	if st := s.indexer.BreakerState(); st != "" {
		body["embedding_breaker"] = st
	}
	writeJSON(w, code, body)
}

func (s *server) handleProcess(w http.ResponseWriter, r *http.Request) {
	id := requestID(r.Context())
	data, name, err := s.readUpload(w, r)
	if err != nil {
		s.writeUploadErr(w, err)
		return
	}
	rng, err := parseRange(r.FormValue("start_page"), r.FormValue("end_page"))
	if err != nil {
		writeErr(w, http.StatusBadRequest, "bad_request", sanitizeError(err))
		return
	}
	async, err := parseBool(r.FormValue("async_process"))
	if err != nil {
		writeErr(w, http.StatusBadRequest, "bad_request", "async_process must be a boolean")
		return
	}

	opts := pipeline.Options{RequestID: id, FileName: name, Range: rng}
	s.log.Info("processing upload",
		zap.String("request_id", id),
		zap.String("file", sanitizeLogString(name)),
		zap.Int("bytes", len(data)),
		zap.Bool("async", async),
	)

	if async {
		if err := s.putJob(types.JobStatus{
			RequestID: id,
			Status:    types.JobQueued,
			Message:   "PDF processing queued",
		}); err != nil {
			writeErr(w, http.StatusServiceUnavailable, "job_store_unavailable", "Job store unavailable")
			return
		}
		s.startJob(data, opts)
		writeJSON(w, http.StatusAccepted, types.AsyncAccepted{
			RequestID:      id,
			Status:         types.JobQueued,
			Message:        "PDF processing has been queued",
			StatusEndpoint: "/status/" + id,
		})
		return
	}

	resp, err := s.proc.Process(r.Context(), data, opts)
	if err != nil {
		s.writeProcessErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *server) handleInfo(w http.ResponseWriter, r *http.Request) {
	data, _, err := s.readUpload(w, r)
	if err != nil {
		s.writeUploadErr(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.InfoTimeout)
	defer cancel()

	info, err := s.proc.Info(ctx, data)
	if err != nil {
		s.writeProcessErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	st, err := s.jobs.Get(r.Context(), id)
	switch {
	case errors.Is(err, jobs.ErrNotFound):
		writeErr(w, http.StatusNotFound, "not_found", "No status found for request ID "+sanitizeLogString(id))
	case err != nil:
		s.log.Error("job lookup failed", zap.String("job", id), zap.Error(err))
		writeErr(w, http.StatusInternalServerError, "internal_error", "Job store unavailable")
	default:
		writeJSON(w, http.StatusOK, st)
	}
}

func (s *server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeErr(w, http.StatusBadRequest, "bad_request", "q is required")
		return
	}
	limit := defaultSearchLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeErr(w, http.StatusBadRequest, "bad_request", "limit must be a positive integer")
			return
		}
		limit = min(n, maxSearchLimit)
	}
	if !s.indexer.Searchable() {
		writeErr(w, http.StatusServiceUnavailable, "embeddings_disabled", "Semantic search is not configured")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.SearchTimeout)
	defer cancel()

	hits, err := s.indexer.Search(ctx, q, limit)
	if err != nil {
		if errors.Is(err, embed.ErrUnavailable) {
			writeErr(w, http.StatusServiceUnavailable, "embeddings_unavailable", "Embedding service unavailable")
			return
		}
		writeErr(w, http.StatusInternalServerError, "internal_error", sanitizeError(err))
		return
	}
	if hits == nil {
		hits = []types.SearchHit{}
	}
	writeJSON(w, http.StatusOK, types.SearchResponse{Query: q, Count: len(hits), Results: hits})
}

// ---------- Async jobs ----------

func (s *server) startJob(data []byte, opts pipeline.Options) {
	s.jobsWG.Add(1)
	go func() {
		defer s.jobsWG.Done()
		s.runJob(data, opts)
	}()
}

func (s *server) runJob(data []byte, opts pipeline.Options) {
	id := opts.RequestID
	log := s.log.With(zap.String("request_id", id))

	if err := s.requestSem.Acquire(s.baseCtx, 1); err != nil {
		s.finishJob(log, types.JobStatus{RequestID: id, Status: types.JobError, Message: "server shutting down"})
		return
	}
	defer s.requestSem.Release(1)

	s.putJobLogged(log, types.JobStatus{RequestID: id, Status: types.JobProcessing, Progress: 0.1, Message: "Processing PDF"})

	var mu sync.Mutex
	last := 0
	opts.Budget = s.cfg.AsyncTimeout
	opts.Progress = func(done, total int) {
		mu.Lock()
		defer mu.Unlock()
		if done <= last {
			return
		}
		last = done
		s.putJobLogged(log, types.JobStatus{
			RequestID: id,
			Status:    types.JobProcessing,
			Progress:  0.1 + 0.8*float64(done)/float64(total),
			Message:   fmt.Sprintf("Processed page %d of %d", done, total),
		})
	}

	resp, err := s.proc.Process(s.baseCtx, data, opts)

	switch {
	case errors.Is(err, pipeline.ErrTimeout):
		s.finishJob(log, types.JobStatus{RequestID: id, Status: types.JobTimeout, Message: "PDF processing timed out"})
	case err != nil:
		log.Warn("async processing failed", zap.Error(err))
		s.finishJob(log, types.JobStatus{RequestID: id, Status: types.JobError, Message: sanitizeError(err)})
	default:
		msg := fmt.Sprintf("Extracted %d questions", resp.TotalQuestions)
		if resp.Message != "" {
			msg += "; " + resp.Message
		}
		s.finishJob(log, types.JobStatus{RequestID: id, Status: types.JobCompleted, Progress: 1, Message: msg, Result: &resp})
	}
}

func (s *server) finishJob(log *zap.Logger, st types.JobStatus) {
	s.putJobLogged(log, st)
	log.Info("async job finished", zap.String("status", st.Status))
}

func (s *server) putJobLogged(log *zap.Logger, st types.JobStatus) {
	if err := s.putJob(st); err != nil {
		log.Warn("job status write failed", zap.String("status", st.Status), zap.Error(err))
	}
}

// putJob stamps and stores st. It does not use the request context so that
// final statuses are written even while shutting down.
func (s *server) putJob(st types.JobStatus) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	st.Timestamp = jobs.Now()
	return s.jobs.Put(ctx, st)
}

// ---------- Uploads ----------

// readUpload parses the multipart form and returns the "file" part.
func (s *server) readUpload(w http.ResponseWriter, r *http.Request) ([]byte, string, error) {
	limit := s.cfg.MaxPDFBytes
	r.Body = http.MaxBytesReader(w, r.Body, limit+multipartSlack)

	mem := s.cfg.MaxFormMemory
	if mem <= 0 {
		mem = 32 << 20
	}
	if err := r.ParseMultipartForm(mem); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return nil, "", errFileTooLarge
		}
		return nil, "", fmt.Errorf("invalid multipart form: %w", err)
	}

	f, hdr, err := r.FormFile("file")
	if err != nil {
		return nil, "", errors.New("file field is required")
	}
	defer f.Close()

	if !strings.HasSuffix(strings.ToLower(hdr.Filename), ".pdf") {
		return nil, "", errors.New("file must be a PDF")
	}
	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return nil, "", fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, "", errFileTooLarge
	}
	return data, hdr.Filename, nil
}

func (s *server) writeUploadErr(w http.ResponseWriter, err error) {
	if errors.Is(err, errFileTooLarge) {
		writeErr(w, http.StatusRequestEntityTooLarge, "file_too_large",
			fmt.Sprintf("PDF exceeds %dMB limit", s.cfg.MaxPDFBytes/(1<<20)))
		return
	}
	writeErr(w, http.StatusBadRequest, "bad_request", sanitizeError(err))
}

func (s *server) writeProcessErr(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, document.ErrInvalidDocument):
		writeErr(w, http.StatusUnprocessableEntity, "invalid_document", sanitizeError(err))
	case errors.Is(err, document.ErrPageRangeOutOfBounds):
		writeErr(w, http.StatusUnprocessableEntity, "page_range_out_of_bounds", sanitizeError(err))
	case errors.Is(err, pipeline.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		writeErr(w, http.StatusGatewayTimeout, "processing_timeout",
			"PDF processing timed out. Try async_process=true or a smaller page range.")
	case errors.Is(err, context.Canceled):
		s.log.Info("client went away", zap.String("request_id", requestID(r.Context())))
	default:
		s.log.Error("processing failed", zap.String("request_id", requestID(r.Context())), zap.Error(err))
		writeErr(w, http.StatusInternalServerError, "extraction_failed", "Processing failed: "+sanitizeError(err))
	}
}

// parseRange reads the optional 0-indexed, inclusive page bounds. A missing
// start means the first page and a missing end the last.
func parseRange(start, end string) (*document.PageRange, error) {
	start, end = strings.TrimSpace(start), strings.TrimSpace(end)
	if start == "" && end == "" {
		return nil, nil
	}
	rng := document.FullRange()
	if start != "" {
		n, err := strconv.Atoi(start)
		if err != nil {
			return nil, fmt.Errorf("start_page must be an integer")
		}
		rng.Start = n
	}
	if end != "" {
		n, err := strconv.Atoi(end)
		if err != nil {
			return nil, fmt.Errorf("end_page must be an integer")
		}
		if n < 0 {
			return nil, fmt.Errorf("end_page must not be negative")
		}
		rng.End = n
	}
	return &rng, nil
}

func parseBool(v string) (bool, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return false, nil
	}
	return strconv.ParseBool(v)
}

// ---------- Helpers ----------

func memoryMB() uint64 {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return m.Sys / (1 << 20)
}

func sanitizeError(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	msg = strings.ReplaceAll(msg, os.TempDir(), "[tmp]")
	if len(msg) > 300 {
		msg = msg[:300] + "..."
	}
	return msg
}

func sanitizeLogString(s string) string {
	s = strings.ReplaceAll(s, "\n", "")
	s = strings.ReplaceAll(s, "\r", "")
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"success": false,
		"error":   message,
		"code":    code,
	})
}
