package pipeline

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/toricodesthings/pdf-quiz-extraction-service/internal/document"
	"github.com/toricodesthings/pdf-quiz-extraction-service/internal/layout"
	"github.com/toricodesthings/pdf-quiz-extraction-service/internal/metrics"
	"github.com/toricodesthings/pdf-quiz-extraction-service/internal/ocr"
	"github.com/toricodesthings/pdf-quiz-extraction-service/internal/quality"
	"github.com/toricodesthings/pdf-quiz-extraction-service/internal/segment"
)

// Page methods as reported in stats and metrics.
const (
	MethodTextLayer = "text-layer"
	MethodOCR       = "ocr"
	MethodEmpty     = "empty"
)

// US Letter in points, for pages whose MediaBox cannot be read.
const letterWidth, letterHeight = 612.0, 792.0

type pageResult struct {
	index   int
	method  string
	blocks  []segment.Block
	tables  int
	text    string
	warning string
}

// extractPage reads one page: native layout, OCR when the layer is unusable,
// then table detection. Only cancellation is returned as an error; every
// other failure degrades the page.
func (p *Processor) extractPage(ctx context.Context, doc *document.Document, index int) (pageResult, error) {
	if err := ctx.Err(); err != nil {
		return pageResult{}, err
	}
	res := pageResult{index: index, method: MethodTextLayer}

	dp, err := doc.Page(index)
	if err != nil {
		metrics.Anomalies.WithLabelValues(metrics.AnomalyPageExtractFailed).Inc()
		p.log.Warn("native text extraction failed", zap.Int("page", index), zap.Error(err))
		res.warning = "page text layer unreadable"
		dp.Index = index
	}
	if dp.Width <= 0 || dp.Height <= 0 {
		dp.Width, dp.Height = letterWidth, letterHeight
	}
	page := layout.Build(index, dp.Runs, dp.Width, dp.Height, layout.Native, p.layout)

	a := quality.Assess(page, p.cfg.MinTextDensity, p.cfg.MinWordsThreshold)
	if a.NeedsOCR && p.ocr.Enabled() {
		recognized, err := p.recognize(ctx, doc, dp)
		switch {
		case err != nil && !ocr.IsSoft(err):
			return pageResult{}, err
		case err != nil:
			metrics.Anomalies.WithLabelValues(metrics.AnomalyOCRFailure).Inc()
			p.log.Info("ocr fell short, keeping native text",
				zap.Int("page", index),
				zap.Strings("reasons", a.Decision.Reasons),
				zap.Error(err),
			)
			if !errors.Is(err, ocr.ErrLowYield) {
				res.warning = "ocr failed on page"
			}
		case recognized.Chars > page.Chars:
			page = recognized
			res.method = MethodOCR
		}
	}
	if page.Chars == 0 {
		res.method = MethodEmpty
	}

	regions, consumed := p.tables.Detect(index, page.Lines)
	res.tables = len(regions)
	next := 0
	for i, ln := range page.Lines {
		if consumed[i] {
			if next < len(regions) && regions[next].First == i {
				r := regions[next]
				res.blocks = append(res.blocks, segment.Block{Page: index, Table: &r})
				next++
			}
			continue
		}
		res.blocks = append(res.blocks, segment.Block{Page: index, Text: ln.Text, Heading: ln.Heading})
	}
	res.text = page.Text()
	return res, nil
}

func (p *Processor) recognize(ctx context.Context, doc *document.Document, dp document.Page) (layout.Page, error) {
	path, err := doc.Path()
	if err != nil {
		return layout.Page{}, err
	}
	return p.ocr.RecognizePage(ctx, ocr.PageRequest{
		PDFPath: path,
		Index:   dp.Index,
		Width:   dp.Width,
		Height:  dp.Height,
	})
}
