package imaging

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 64, A: 255})
		}
	}
	return img
}

func TestCoverCrop(t *testing.T) {
	t.Run("Wide source into vertical frame", func(t *testing.T) {
		out := CoverCrop(testImage(1920, 1080), VerticalWidth, VerticalHeight)
		assert.Equal(t, VerticalWidth, out.Bounds().Dx())
		assert.Equal(t, VerticalHeight, out.Bounds().Dy())
	})

	t.Run("Tall source into horizontal frame", func(t *testing.T) {
		out := CoverCrop(testImage(1080, 1920), HorizontalWidth, HorizontalHeight)
		assert.Equal(t, HorizontalWidth, out.Bounds().Dx())
		assert.Equal(t, HorizontalHeight, out.Bounds().Dy())
	})

	t.Run("Exact size passes through unchanged dimensions", func(t *testing.T) {
		out := CoverCrop(testImage(1080, 1920), VerticalWidth, VerticalHeight)
		assert.Equal(t, VerticalWidth, out.Bounds().Dx())
		assert.Equal(t, VerticalHeight, out.Bounds().Dy())
	})

	t.Run("Small source is stretched to cover", func(t *testing.T) {
		out := CoverCrop(testImage(100, 100), 400, 200)
		assert.Equal(t, 400, out.Bounds().Dx())
		assert.Equal(t, 200, out.Bounds().Dy())
	})
}

func TestScaleToFit(t *testing.T) {
	t.Run("Downscales preserving aspect ratio", func(t *testing.T) {
		out := ScaleToFit(testImage(1080, 1920), PreviewBoxWidth, PreviewBoxHeight)
		assert.LessOrEqual(t, out.Bounds().Dx(), PreviewBoxWidth)
		assert.LessOrEqual(t, out.Bounds().Dy(), PreviewBoxHeight)
		// Пропорции исходника 9:16 сохраняются
		ratio := float64(out.Bounds().Dx()) / float64(out.Bounds().Dy())
		assert.InDelta(t, 1080.0/1920.0, ratio, 0.01)
	})

	t.Run("Never upscales smaller images", func(t *testing.T) {
		src := testImage(200, 300)
		out := ScaleToFit(src, PreviewBoxWidth, PreviewBoxHeight)
		assert.Equal(t, 200, out.Bounds().Dx())
		assert.Equal(t, 300, out.Bounds().Dy())
	})

	t.Run("Decor bound caps the longest side", func(t *testing.T) {
		out := ScaleToFit(testImage(4096, 2048), DecorMaxDimension, DecorMaxDimension)
		assert.Equal(t, DecorMaxDimension, out.Bounds().Dx())
		assert.Equal(t, DecorMaxDimension/2, out.Bounds().Dy())
	})
}

func TestFrameSize(t *testing.T) {
	w, h := FrameSize(true)
	assert.Equal(t, VerticalWidth, w)
	assert.Equal(t, VerticalHeight, h)

	w, h = FrameSize(false)
	assert.Equal(t, HorizontalWidth, w)
	assert.Equal(t, HorizontalHeight, h)
}

func TestPreviewBox(t *testing.T) {
	w, h := PreviewBox(true)
	assert.Equal(t, PreviewBoxWidth, w)
	assert.Equal(t, PreviewBoxHeight, h)

	// Горизонтальный формат меняет стороны рамки местами
	w, h = PreviewBox(false)
	assert.Equal(t, PreviewBoxHeight, w)
	assert.Equal(t, PreviewBoxWidth, h)
}

func TestEncodeDecodeJPEG(t *testing.T) {
	data, err := EncodeJPEG(testImage(64, 48))
	require.NoError(t, err)
	require.NotEmpty(t, data)

	img, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, 64, img.Bounds().Dx())
	assert.Equal(t, 48, img.Bounds().Dy())
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode([]byte("definitely not an image"))
	assert.Error(t, err)
}
