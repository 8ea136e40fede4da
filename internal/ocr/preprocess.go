package ocr

import (
	"bytes"
	"fmt"
	"image"
	"image/png"

	"golang.org/x/image/draw"
)

// Prepare converts a rendered page to 8-bit grayscale and caps its longest
// edge at maxEdge pixels (0 disables the cap). It returns the encoded PNG and
// the factor that maps prepared pixels back to source pixels.
func Prepare(src []byte, maxEdge int) ([]byte, float64, error) {
	img, err := png.Decode(bytes.NewReader(src))
	if err != nil {
		return nil, 0, fmt.Errorf("decode raster: %w", err)
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return nil, 0, fmt.Errorf("empty raster")
	}

	scale := 1.0
	dw, dh := w, h
	if longest := max(w, h); maxEdge > 0 && longest > maxEdge {
		scale = float64(longest) / float64(maxEdge)
		dw = max(1, int(float64(w)/scale+0.5))
		dh = max(1, int(float64(h)/scale+0.5))
		scale = float64(w) / float64(dw)
	}

	gray := image.NewGray(image.Rect(0, 0, dw, dh))
	if dw == w && dh == h {
		draw.Draw(gray, gray.Bounds(), img, b.Min, draw.Src)
	} else {
		draw.CatmullRom.Scale(gray, gray.Bounds(), img, b, draw.Src, nil)
	}

	var out bytes.Buffer
	if err := png.Encode(&out, gray); err != nil {
		return nil, 0, fmt.Errorf("encode raster: %w", err)
	}
	return out.Bytes(), scale, nil
}
