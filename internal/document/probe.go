package document

import (
	"bytes"
	"math"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/toricodesthings/pdf-quiz-extraction-service/internal/layout"
	"github.com/toricodesthings/pdf-quiz-extraction-service/internal/types"
)

// DefaultSamplePages is how many leading pages Probe reads text from.
const DefaultSamplePages = 10

// Info is the cheap metadata probe result.
type Info struct {
	TotalPages   int
	SizeMB       float64
	Metadata     types.PDFMetadata
	HasTOC       bool
	Sample       []string // native text of the first SampledPages pages
	SampledPages int
}

// Probe reads page count, document info and outline presence without running
// extraction. Metadata is best effort: a file pdfcpu rejects still probes.
func Probe(data []byte, samplePages int) (Info, error) {
	if err := checkMagic(data); err != nil {
		return Info{}, err
	}
	reader, err := openReader(data)
	if err != nil {
		return Info{}, err
	}
	total, err := pageCount(reader)
	if err != nil {
		return Info{}, err
	}
	if total <= 0 {
		return Info{}, ErrInvalidDocument
	}

	info := Info{
		TotalPages: total,
		SizeMB:     math.Round(float64(len(data))/(1<<20)*100) / 100,
		Metadata:   readMetadata(data),
		HasTOC:     hasOutline(reader),
	}

	if samplePages <= 0 {
		samplePages = DefaultSamplePages
	}
	n := min(samplePages, total)
	cfg := layout.DefaultConfig()
	for i := 1; i <= n; i++ {
		w, h, runs, err := readPage(reader, i)
		if err != nil {
			continue
		}
		info.Sample = append(info.Sample, layout.Build(i-1, runs, w, h, layout.Native, cfg).Text())
	}
	info.SampledPages = n
	return info, nil
}

func readMetadata(data []byte) (md types.PDFMetadata) {
	defer func() {
		if recover() != nil {
			md = types.PDFMetadata{}
		}
	}()

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	ctx, err := api.ReadContext(bytes.NewReader(data), conf)
	if err != nil {
		return md
	}
	// Info dict fields are populated during validation.
	if err := api.ValidateContext(ctx); err != nil {
		return md
	}
	return types.PDFMetadata{
		Title:    strings.TrimSpace(ctx.XRefTable.Title),
		Author:   strings.TrimSpace(ctx.XRefTable.Author),
		Subject:  strings.TrimSpace(ctx.XRefTable.Subject),
		Creator:  strings.TrimSpace(ctx.XRefTable.Creator),
		Producer: strings.TrimSpace(ctx.XRefTable.Producer),
	}
}

func hasOutline(r *pdf.Reader) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	return len(r.Outline().Child) > 0
}
