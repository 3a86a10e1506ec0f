package thumbnail

import (
	"bytes"
	"context"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestGenerate_SquareCover(t *testing.T) {
	g := NewGenerator(0, zerolog.Nop())

	for _, dims := range [][2]int{{1200, 800}, {300, 900}, {100, 100}} {
		out, err := g.Generate(context.Background(), testPNG(t, dims[0], dims[1]), KindImage)
		require.NoError(t, err)

		img, err := jpeg.Decode(bytes.NewReader(out))
		require.NoError(t, err)
		assert.Equal(t, Size, img.Bounds().Dx(), "source %v", dims)
		assert.Equal(t, Size, img.Bounds().Dy(), "source %v", dims)
	}
}

func TestGenerate_Deterministic(t *testing.T) {
	g := NewGenerator(0, zerolog.Nop())
	src := testPNG(t, 640, 480)

	a, err := g.Generate(context.Background(), src, KindImage)
	require.NoError(t, err)
	b, err := g.Generate(context.Background(), src, KindImage)
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestGenerate_VideoSkips(t *testing.T) {
	g := NewGenerator(0, zerolog.Nop())
	_, err := g.Generate(context.Background(), []byte("not decoded"), KindVideo)
	assert.ErrorIs(t, err, ErrSkip)
}

func TestGenerate_CorruptImage(t *testing.T) {
	g := NewGenerator(0, zerolog.Nop())
	_, err := g.Generate(context.Background(), []byte("definitely not a jpeg"), KindImage)
	assert.ErrorIs(t, err, ErrGenerate)
}

func TestGenerate_ExpiredContext(t *testing.T) {
	g := NewGenerator(0, zerolog.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	time.Sleep(time.Millisecond)

	_, err := g.Generate(ctx, testPNG(t, 50, 50), KindImage)
	assert.ErrorIs(t, err, ErrGenerate)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

// pngHeader returns a PNG signature and IHDR chunk declaring w x h RGB pixels
// with no image data behind it.
func pngHeader(w, h uint32) []byte {
	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:4], w)
	binary.BigEndian.PutUint32(ihdr[4:8], h)
	ihdr[8] = 8
	ihdr[9] = 2
	chunk := append([]byte("IHDR"), ihdr...)

	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")
	_ = binary.Write(&buf, binary.BigEndian, uint32(len(ihdr)))
	buf.Write(chunk)
	_ = binary.Write(&buf, binary.BigEndian, crc32.ChecksumIEEE(chunk))
	return buf.Bytes()
}

func TestGenerate_RejectsOversizedHeader(t *testing.T) {
	g := NewGenerator(0, zerolog.Nop())
	_, err := g.Generate(context.Background(), pngHeader(30000, 30000), KindImage)
	require.ErrorIs(t, err, ErrGenerate)
	assert.Contains(t, err.Error(), "pixel limit")
}

func TestGenerate_ConfiguredPixelLimit(t *testing.T) {
	g := NewGenerator(100*100, zerolog.Nop())

	_, err := g.Generate(context.Background(), testPNG(t, 200, 200), KindImage)
	require.ErrorIs(t, err, ErrGenerate)
	assert.Contains(t, err.Error(), "pixel limit")

	out, err := g.Generate(context.Background(), testPNG(t, 100, 100), KindImage)
	require.NoError(t, err)
	assert.NotEmpty(t, out)
}
