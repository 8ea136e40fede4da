package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"
)

const defaultMistralURL = "https://api.mistral.ai/v1/ocr"

type mistralPage struct {
	Index    int    `json:"index"`
	Markdown string `json:"markdown"`
}

type mistralResponse struct {
	Pages []mistralPage `json:"pages"`
}

// Mistral sends the page image to the Mistral OCR API. The API returns
// markdown without positions or confidences, so Recognize lays the returned
// lines out top-down over the image and reports confidence 0. Markdown table
// rows become separate cells so the table detector can still see them.
type Mistral struct {
	APIKey   string
	Model    string
	Endpoint string
	Client   *http.Client
}

func NewMistral(apiKey, model string) *Mistral {
	if model == "" {
		model = "mistral-ocr-latest"
	}
	return &Mistral{
		APIKey:   apiKey,
		Model:    model,
		Endpoint: defaultMistralURL,
		Client:   &http.Client{Timeout: 90 * time.Second},
	}
}

func (m *Mistral) Name() string { return "mistral" }

func (m *Mistral) Recognize(ctx context.Context, img []byte) ([]Word, error) {
	if m.APIKey == "" {
		return nil, fmt.Errorf("missing MISTRAL_API_KEY")
	}
	cfg, err := png.DecodeConfig(bytes.NewReader(img))
	if err != nil {
		return nil, fmt.Errorf("mistral: decode image: %w", err)
	}

	body := map[string]any{
		"model": m.Model,
		"document": map[string]any{
			"type":      "image_url",
			"image_url": "data:image/png;base64," + base64.StdEncoding.EncodeToString(img),
		},
	}
	b, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.Endpoint, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+m.APIKey)
	req.Header.Set("Content-Type", "application/json")

	client := m.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("mistral ocr: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		slurp, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return nil, fmt.Errorf("mistral ocr error %d: %s", resp.StatusCode, strings.TrimSpace(string(slurp)))
	}

	var parsed mistralResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("mistral ocr: decode: %w", err)
	}

	var lines []string
	for _, p := range parsed.Pages {
		for _, ln := range strings.Split(CleanText(p.Markdown), "\n") {
			if ln = stripMarkdown(ln); ln != "" {
				lines = append(lines, ln)
			}
		}
	}
	return layoutLines(lines, cfg.Width, cfg.Height), nil
}

// stripMarkdown removes heading hashes, emphasis and table separator rows.
func stripMarkdown(ln string) string {
	ln = strings.TrimSpace(ln)
	ln = strings.TrimLeft(ln, "#")
	ln = strings.ReplaceAll(ln, "**", "")
	ln = strings.ReplaceAll(ln, "__", "")
	ln = strings.TrimSpace(ln)
	if strings.HasPrefix(ln, "|") && strings.Trim(ln, "|-: ") == "" {
		return ""
	}
	return ln
}

// layoutLines places lines on an evenly spaced grid covering the image.
// Table rows ("| a | b |") are split into cells at a fixed column pitch.
func layoutLines(lines []string, width, height int) []Word {
	if len(lines) == 0 || width <= 0 || height <= 0 {
		return nil
	}
	margin := width / 12
	pitch := height / (len(lines) + 2)
	pitch = max(1, min(pitch, height/40))
	charW := max(1, (width-2*margin)/100)

	var words []Word
	for i, ln := range lines {
		top := margin + i*pitch
		box := func(x0 int, s string) image.Rectangle {
			x1 := min(width, x0+charW*utf8.RuneCountInString(s))
			return image.Rect(x0, top, x1, top+pitch*3/4)
		}

		if strings.HasPrefix(ln, "|") {
			cells := strings.Split(strings.Trim(ln, "|"), "|")
			col := (width - 2*margin) / max(1, len(cells))
			for c, cell := range cells {
				cell = strings.TrimSpace(cell)
				if cell == "" {
					continue
				}
				words = append(words, Word{Text: cell, Box: box(margin+c*col, cell)})
			}
			continue
		}
		words = append(words, Word{Text: ln, Box: box(margin, ln)})
	}
	return words
}
