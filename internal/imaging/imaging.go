package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"

	"github.com/kolesa-team/go-webp/decoder"
	"github.com/kolesa-team/go-webp/encoder"
	"github.com/kolesa-team/go-webp/webp"
	"golang.org/x/image/draw"
)

// Целевые размеры кадров и превью.
const (
	VerticalWidth    = 1080
	VerticalHeight   = 1920
	HorizontalWidth  = 1920
	HorizontalHeight = 1080

	PreviewBoxWidth  = 468
	PreviewBoxHeight = 850

	DecorMaxDimension = 2048
	DecorWebpQuality  = 92

	jpegQuality = 90
)

// Decode распознает JPEG, PNG и WEBP.
func Decode(data []byte) (image.Image, error) {
	if isWEBP(data) {
		img, err := webp.Decode(bytes.NewReader(data), &decoder.Options{})
		if err != nil {
			return nil, fmt.Errorf("failed to decode webp: %w", err)
		}
		return img, nil
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

func isWEBP(data []byte) bool {
	if len(data) < 12 {
		return false
	}
	return string(data[0:4]) == "RIFF" && string(data[8:12]) == "WEBP"
}

// CoverCrop масштабирует изображение с заполнением целевого прямоугольника
// и обрезает выступающие края по центру. Выход всегда ровно width x height.
func CoverCrop(src image.Image, width, height int) *image.RGBA {
	b := src.Bounds()
	srcW, srcH := b.Dx(), b.Dy()

	// Масштаб с покрытием: берем больший из коэффициентов
	scaleX := float64(width) / float64(srcW)
	scaleY := float64(height) / float64(srcH)
	scale := scaleX
	if scaleY > scale {
		scale = scaleY
	}

	scaledW := int(float64(srcW)*scale + 0.5)
	scaledH := int(float64(srcH)*scale + 0.5)

	scaled := image.NewRGBA(image.Rect(0, 0, scaledW, scaledH))
	draw.CatmullRom.Scale(scaled, scaled.Bounds(), src, b, draw.Over, nil)

	offsetX := (scaledW - width) / 2
	offsetY := (scaledH - height) / 2

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(dst, dst.Bounds(), scaled, image.Pt(offsetX, offsetY), draw.Src)
	return dst
}

// ScaleToFit вписывает изображение в рамку maxW x maxH с сохранением
// пропорций. Изображения меньше рамки не растягиваются.
func ScaleToFit(src image.Image, maxW, maxH int) image.Image {
	b := src.Bounds()
	srcW, srcH := b.Dx(), b.Dy()
	if srcW <= maxW && srcH <= maxH {
		return src
	}

	scaleX := float64(maxW) / float64(srcW)
	scaleY := float64(maxH) / float64(srcH)
	scale := scaleX
	if scaleY < scale {
		scale = scaleY
	}

	dstW := int(float64(srcW)*scale + 0.5)
	dstH := int(float64(srcH)*scale + 0.5)
	if dstW < 1 {
		dstW = 1
	}
	if dstH < 1 {
		dstH = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, dstW, dstH))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	return dst
}

// EncodeJPEG кодирует изображение в JPEG.
func EncodeJPEG(img image.Image) ([]byte, error) {
	var out bytes.Buffer
	if err := jpeg.Encode(&out, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode jpeg: %w", err)
	}
	return out.Bytes(), nil
}

// EncodeWEBP кодирует изображение в lossy webp с заданным качеством.
func EncodeWEBP(img image.Image, quality int) ([]byte, error) {
	opts, err := encoder.NewLossyEncoderOptions(encoder.PresetDefault, float32(quality))
	if err != nil {
		return nil, fmt.Errorf("failed to create webp encoder options: %w", err)
	}
	var out bytes.Buffer
	if err := webp.Encode(&out, img, opts); err != nil {
		return nil, fmt.Errorf("failed to encode webp: %w", err)
	}
	return out.Bytes(), nil
}

// FrameSize возвращает целевые размеры кадра для формата истории.
func FrameSize(vertical bool) (int, int) {
	if vertical {
		return VerticalWidth, VerticalHeight
	}
	return HorizontalWidth, HorizontalHeight
}

// PreviewBox возвращает рамку превью; для горизонтального формата
// стороны меняются местами.
func PreviewBox(vertical bool) (int, int) {
	if vertical {
		return PreviewBoxWidth, PreviewBoxHeight
	}
	return PreviewBoxHeight, PreviewBoxWidth
}
