package transform

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"testing"

	"aboba/core/media/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodedPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for x := range w {
		for y := range h {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func decodeJPEG(t *testing.T, data []byte) image.Image {
	t.Helper()
	img, err := jpeg.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	return img
}

func TestTransform_RendersEveryVariantAsJPEG(t *testing.T) {
	tr := NewImagingTransformer()

	out, err := tr.Transform(context.Background(), bytes.NewReader(encodedPNG(t, 2000, 1000)), domain.MimePNG)
	require.NoError(t, err)
	require.Len(t, out.Variants, len(domain.Variants))

	thumb := decodeJPEG(t, out.Variants[domain.VariantThumb])
	assert.Equal(t, image.Pt(320, 320), thumb.Bounds().Size())

	card := decodeJPEG(t, out.Variants[domain.VariantCard])
	assert.Equal(t, image.Pt(1080, 540), card.Bounds().Size())

	watermarked := decodeJPEG(t, out.Variants[domain.VariantWatermarked])
	assert.Equal(t, card.Bounds().Size(), watermarked.Bounds().Size())
	assert.NotEqual(t, out.Variants[domain.VariantCard], out.Variants[domain.VariantWatermarked])

	assert.True(t, out.VirusScanned)
	assert.True(t, out.ExifStripped)
	assert.True(t, out.WatermarkApplied)
}

func TestTransform_JPEGQualityTradesSize(t *testing.T) {
	src := encodedPNG(t, 1200, 1200)

	low, err := NewImagingTransformer(WithJPEGQuality(30)).Transform(context.Background(), bytes.NewReader(src), domain.MimePNG)
	require.NoError(t, err)
	high, err := NewImagingTransformer(WithJPEGQuality(95)).Transform(context.Background(), bytes.NewReader(src), domain.MimePNG)
	require.NoError(t, err)

	assert.Less(t, len(low.Variants[domain.VariantCard]), len(high.Variants[domain.VariantCard]))

	// out of range keeps the default
	def, err := NewImagingTransformer(WithJPEGQuality(0)).Transform(context.Background(), bytes.NewReader(src), domain.MimePNG)
	require.NoError(t, err)
	std, err := NewImagingTransformer().Transform(context.Background(), bytes.NewReader(src), domain.MimePNG)
	require.NoError(t, err)
	assert.Equal(t, std.Variants[domain.VariantCard], def.Variants[domain.VariantCard])
}

func TestTransform_SmallImagesAreNotUpscaledForCard(t *testing.T) {
	out, err := NewImagingTransformer().Transform(context.Background(), bytes.NewReader(encodedPNG(t, 200, 100)), domain.MimePNG)
	require.NoError(t, err)
	assert.Equal(t, image.Pt(200, 100), decodeJPEG(t, out.Variants[domain.VariantCard]).Bounds().Size())
}

func TestTransform_RejectsContent(t *testing.T) {
	var gifBuf bytes.Buffer
	require.NoError(t, gif.Encode(&gifBuf, image.NewPaletted(image.Rect(0, 0, 4, 4), []color.Color{color.Black, color.White}), nil))

	tests := []struct {
		name string
		tr   *ImagingTransformer
		data []byte
	}{
		{"not an image", NewImagingTransformer(), []byte("definitely not a picture")},
		{"gif", NewImagingTransformer(), gifBuf.Bytes()},
		{"over the limit", NewImagingTransformer(WithMaxBytes(64)), encodedPNG(t, 64, 64)},
		{"truncated png", NewImagingTransformer(), encodedPNG(t, 64, 64)[:80]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.tr.Transform(context.Background(), bytes.NewReader(tt.data), domain.MimeJPEG)
			assert.ErrorIs(t, err, domain.ErrRejectedContent)
		})
	}
}

func TestTransform_HonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewImagingTransformer().Transform(ctx, bytes.NewReader(encodedPNG(t, 16, 16)), domain.MimePNG)
	assert.ErrorIs(t, err, context.Canceled)
}
