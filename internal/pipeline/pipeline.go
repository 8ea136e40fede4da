// Package pipeline runs a document through extraction, segmentation,
// assembly and indexing under one wall-clock budget.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/toricodesthings/pdf-quiz-extraction-service/internal/assemble"
	"github.com/toricodesthings/pdf-quiz-extraction-service/internal/config"
	"github.com/toricodesthings/pdf-quiz-extraction-service/internal/document"
	"github.com/toricodesthings/pdf-quiz-extraction-service/internal/embed"
	"github.com/toricodesthings/pdf-quiz-extraction-service/internal/format"
	"github.com/toricodesthings/pdf-quiz-extraction-service/internal/layout"
	"github.com/toricodesthings/pdf-quiz-extraction-service/internal/metrics"
	"github.com/toricodesthings/pdf-quiz-extraction-service/internal/ocr"
	"github.com/toricodesthings/pdf-quiz-extraction-service/internal/segment"
	"github.com/toricodesthings/pdf-quiz-extraction-service/internal/tables"
	"github.com/toricodesthings/pdf-quiz-extraction-service/internal/types"
)

// ErrTimeout means the budget ran out before any page finished.
var ErrTimeout = errors.New("processing timed out")

// Response codes set on successful responses.
const (
	CodeNoQuestions    = "no_questions_found"
	CodePartialTimeout = "partial_timeout"
)

const (
	// pageShare is the part of the remaining budget the page stage may use.
	pageShare = 0.85
	// minEmbedBudget is the least time left for embedding to be attempted.
	minEmbedBudget = time.Second
)

type Options struct {
	RequestID string
	FileName  string
	Range     *document.PageRange // nil processes every page
	Budget    time.Duration       // 0 means cfg.ExtractTimeout
	// Progress, if set, is called from page workers as pages finish.
	Progress func(done, total int)
}

// WithDefaults fills unset options from cfg.
func WithDefaults(o Options, cfg config.Config) Options {
	if o.Budget <= 0 {
		o.Budget = cfg.ExtractTimeout
	}
	if o.Budget <= 0 {
		o.Budget = 170 * time.Second
	}
	if o.FileName == "" {
		o.FileName = "document.pdf"
	}
	return o
}

// Processor is safe for concurrent use; per-request state lives on the stack.
type Processor struct {
	cfg       config.Config
	ocr       *ocr.Fallback
	indexer   *embed.Indexer
	tables    *tables.Detector
	assembler *assemble.Assembler
	layout    layout.Config
	log       *zap.Logger
}

// New wires a processor. fb and ix may be nil, which disables OCR and
// embeddings respectively.
func New(cfg config.Config, fb *ocr.Fallback, ix *embed.Indexer, log *zap.Logger) *Processor {
	if log == nil {
		log = zap.NewNop()
	}
	det := tables.NewDetector(tables.DefaultConfig())
	det.OnReject = func(page int, reason string) {
		if reason == tables.RejectAmbiguous {
			metrics.Anomalies.WithLabelValues(metrics.AnomalyTableAmbiguous).Inc()
		}
		log.Debug("table candidate rejected", zap.Int("page", page), zap.String("reason", reason))
	}
	return &Processor{
		cfg:       cfg,
		ocr:       fb,
		indexer:   ix,
		tables:    det,
		assembler: assemble.New(log),
		layout:    layout.DefaultConfig(),
		log:       log,
	}
}

// Process extracts questions from data. Invalid input and range errors are
// returned as document errors. When the page stage runs out of time the
// longest run of finished pages from the start is still segmented and the
// response is marked partial; if no page finished, ErrTimeout is returned.
func (p *Processor) Process(ctx context.Context, data []byte, opts Options) (types.ProcessResponse, error) {
	start := time.Now()
	opts = WithDefaults(opts, p.cfg)
	log := p.log.With(zap.String("request_id", opts.RequestID))

	ctx, cancel := context.WithTimeout(ctx, opts.Budget)
	defer cancel()

	doc, err := document.Load(data, opts.Range)
	if err != nil {
		return types.ProcessResponse{}, err
	}
	defer func() {
		if err := doc.Close(); err != nil {
			log.Warn("temp cleanup failed", zap.Error(err))
		}
	}()

	deadline, _ := ctx.Deadline()
	pageCtx, cancelPages := context.WithDeadline(ctx,
		time.Now().Add(time.Duration(float64(time.Until(deadline))*pageShare)))
	pages, done := p.extractPages(pageCtx, doc, opts.Progress)
	cancelPages()

	if errors.Is(ctx.Err(), context.Canceled) {
		return types.ProcessResponse{}, ctx.Err()
	}
	prefix := 0
	for prefix < len(done) && done[prefix] {
		prefix++
	}
	partial := prefix < len(pages)
	if partial && prefix == 0 {
		log.Warn("no page finished within budget", zap.Int("pages", len(pages)), zap.Duration("budget", opts.Budget))
		return types.ProcessResponse{}, fmt.Errorf("%w: 0 of %d pages", ErrTimeout, len(pages))
	}

	stats := types.ProcessingStats{TotalPages: doc.TotalPages, ProcessedPages: prefix}
	var blocks []segment.Block
	for _, r := range pages[:prefix] {
		blocks = append(blocks, r.blocks...)
		stats.TablesFound += r.tables
		metrics.Pages.WithLabelValues(r.method).Inc()
		switch r.method {
		case MethodOCR:
			stats.OCRPages++
		case MethodEmpty:
			stats.EmptyPages++
		default:
			stats.TextLayerPages++
		}
		if r.warning != "" {
			stats.Warnings = append(stats.Warnings, fmt.Sprintf("page %d: %s", r.index, r.warning))
		}
	}
	stats.OCRUsed = stats.OCRPages > 0

	res := p.assembler.Assemble(segment.Segment(blocks))
	stats.QuestionsFound = len(res.Questions)
	stats.MathFound = res.MathFound

	if p.indexer.Enabled() && len(res.Questions) > 0 {
		if time.Until(deadline) < minEmbedBudget {
			log.Info("skipping embeddings, budget exhausted", zap.Duration("left", time.Until(deadline)))
			stats.Warnings = append(stats.Warnings, "embeddings skipped: time budget exhausted")
		} else {
			f := embed.File{
				Hash:       doc.ID,
				Name:       opts.FileName,
				TotalPages: doc.TotalPages,
				Metadata:   map[string]any{"start_page": doc.Range.Start, "end_page": doc.Range.End},
			}
			n, err := p.indexer.Index(ctx, f, res.Questions)
			if err != nil {
				stats.Warnings = append(stats.Warnings, "embeddings unavailable")
			}
			stats.Embedded = n
		}
	}

	questions := res.Questions
	if questions == nil {
		questions = []types.Question{}
	}
	stats.ElapsedMS = time.Since(start).Milliseconds()
	resp := types.ProcessResponse{
		RequestID:      opts.RequestID,
		Questions:      questions,
		Sections:       res.Sections,
		TotalQuestions: len(questions),
		TotalPages:     doc.TotalPages,
		Stats:          stats,
		Partial:        partial,
	}
	switch {
	case partial:
		resp.Code = CodePartialTimeout
		resp.Message = fmt.Sprintf("timed out after %d of %d pages", prefix, len(pages))
	case len(questions) == 0:
		resp.Code = CodeNoQuestions
		resp.Message = "no questions found in document"
	}

	metrics.Questions.Add(float64(len(questions)))
	metrics.Tables.Add(float64(stats.TablesFound))
	log.Info("document processed",
		zap.String("doc", doc.ID[:12]),
		zap.Int("pages", prefix),
		zap.Int("ocr_pages", stats.OCRPages),
		zap.Int("questions", len(questions)),
		zap.Int("dropped", res.Dropped),
		zap.Int("cleared", res.Cleared),
		zap.Bool("partial", partial),
		zap.Int64("elapsed_ms", stats.ElapsedMS),
	)
	return resp, nil
}

// extractPages runs page workers over the selected range. done[i] is set for
// every page that finished before ctx ended.
func (p *Processor) extractPages(ctx context.Context, doc *document.Document, progress func(int, int)) ([]pageResult, []bool) {
	indexes := doc.Indexes()
	results := make([]pageResult, len(indexes))
	done := make([]bool, len(indexes))
	var finished atomic.Int32

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers())
	for i, index := range indexes {
		i, index := i, index
		g.Go(func() error {
			r, err := p.extractPage(gctx, doc, index)
			if err != nil {
				return err
			}
			results[i] = r
			done[i] = true
			if progress != nil {
				progress(int(finished.Add(1)), len(indexes))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		p.log.Debug("page stage stopped early", zap.Error(err))
	}
	return results, done
}

func (p *Processor) workers() int {
	n := p.cfg.MaxPageWorkers
	if n <= 0 {
		n = 1
	}
	return min(n, runtime.NumCPU())
}

// Info probes metadata and estimates the question count from the first
// pages, scaled to the whole document.
func (p *Processor) Info(ctx context.Context, data []byte) (types.InfoResponse, error) {
	if err := ctx.Err(); err != nil {
		return types.InfoResponse{}, err
	}
	info, err := document.Probe(data, document.DefaultSamplePages)
	if err != nil {
		return types.InfoResponse{}, err
	}
	count := segment.CountQuestionMarkers(format.Combine(format.Pages(info.Sample), "\n", false))
	estimate := count
	if info.SampledPages > 0 && info.SampledPages < info.TotalPages {
		estimate = int(math.Round(float64(count) * float64(info.TotalPages) / float64(info.SampledPages)))
	}
	return types.InfoResponse{
		TotalPages:         info.TotalPages,
		FileSizeMB:         info.SizeMB,
		Metadata:           info.Metadata,
		HasTOC:             info.HasTOC,
		EstimatedQuestions: estimate,
	}, ctx.Err()
}
