// Package thumbnail derives fixed-size previews from original images.
package thumbnail

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const (
	// Size is the side of the square thumbnail in pixels.
	Size = 412
	// Quality is the JPEG quality of every thumbnail.
	Quality = 85
	// MimeType is the content type of generated thumbnails.
	MimeType = "image/jpeg"
	// DefaultMaxPixels caps the decoded frame at 16383x16383.
	DefaultMaxPixels = 0x3FFF * 0x3FFF
)

var (
	// ErrSkip means the kind has no server-side thumbnail.
	ErrSkip = errors.New("thumbnail skipped")
	// ErrGenerate wraps decode, resize and encode failures.
	ErrGenerate = errors.New("thumbnail generation failed")
)

// Kind mirrors the media kinds the generator understands.
type Kind string

const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
)

// Generator produces 412x412 center-cropped JPEG thumbnails.
type Generator struct {
	maxPixels int64
	log       zerolog.Logger
}

// NewGenerator builds a generator that refuses images whose header declares
// more than maxPixels pixels. A non-positive maxPixels means DefaultMaxPixels.
func NewGenerator(maxPixels int, log zerolog.Logger) *Generator {
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}
	return &Generator{
		maxPixels: int64(maxPixels),
		log:       log.With().Str("component", "thumbnail").Logger(),
	}
}

// Generate returns thumbnail bytes for data. Videos yield ErrSkip. The same
// input always encodes to the same output.
func (g *Generator) Generate(ctx context.Context, data []byte, kind Kind) ([]byte, error) {
	if kind != KindImage {
		return nil, ErrSkip
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGenerate, err)
	}

	type result struct {
		data []byte
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		out, err := g.render(data)
		ch <- result{out, err}
	}()

	select {
	case <-ctx.Done():
		g.log.Warn().Err(ctx.Err()).Int("bytes", len(data)).Msg("thumbnail generation timed out")
		return nil, fmt.Errorf("%w: %w", ErrGenerate, ctx.Err())
	case r := <-ch:
		if r.err != nil {
			return nil, r.err
		}
		return r.data, nil
	}
}

func (g *Generator) render(data []byte) ([]byte, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: decode header: %w", ErrGenerate, err)
	}
	if pixels := int64(cfg.Width) * int64(cfg.Height); pixels > g.maxPixels {
		return nil, fmt.Errorf("%w: %s image is %dx%d, above the %d pixel limit",
			ErrGenerate, format, cfg.Width, cfg.Height, g.maxPixels)
	}

	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: decode: %w", ErrGenerate, err)
	}
	if b := src.Bounds(); b.Dx() == 0 || b.Dy() == 0 {
		return nil, fmt.Errorf("%w: empty %s image", ErrGenerate, format)
	}

	thumb := imaging.Fill(src, Size, Size, imaging.Center, imaging.Lanczos)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, thumb, &jpeg.Options{Quality: Quality}); err != nil {
		return nil, fmt.Errorf("%w: encode: %w", ErrGenerate, err)
	}
	return buf.Bytes(), nil
}
