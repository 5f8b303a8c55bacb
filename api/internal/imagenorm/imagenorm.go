// Package imagenorm turns arbitrary uploaded image bytes into the bounded
// RGB JPEG the inference tiers expect.
package imagenorm

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"math"

	"github.com/corona10/goimagehash"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	MaxInputBytes = 10 << 20
	MaxSide       = 1024
	Quality       = 92
	maxPixels     = 50_000_000
)

var (
	ErrDecode   = errors.New("imagenorm: cannot decode image")
	ErrTooLarge = errors.New("imagenorm: image too large")
	ErrEmpty    = errors.New("imagenorm: empty image")
)

// DecodeError carries the decoder's message and matches ErrDecode.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string        { return fmt.Sprintf("imagenorm: decode: %v", e.Err) }
func (e *DecodeError) Unwrap() error        { return e.Err }
func (e *DecodeError) Is(target error) bool { return target == ErrDecode }

type Options struct {
	MaxInputBytes int
	MaxSide       int
	Quality       int
}

type Normalizer struct {
	opts Options
}

func New(opts Options) *Normalizer {
	if opts.MaxInputBytes <= 0 {
		opts.MaxInputBytes = MaxInputBytes
	}
	if opts.MaxSide <= 0 {
		opts.MaxSide = MaxSide
	}
	if opts.Quality <= 0 || opts.Quality > 100 {
		opts.Quality = Quality
	}
	return &Normalizer{opts: opts}
}

// Normalize decodes raw (JPEG, PNG, GIF or WebP), flattens it onto white,
// shrinks it so neither side exceeds MaxSide and re-encodes it as JPEG.
func (n *Normalizer) Normalize(raw []byte) ([]byte, error) {
	img, err := n.decode(raw)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, n.flatten(img), &jpeg.Options{Quality: n.opts.Quality}); err != nil {
		return nil, fmt.Errorf("imagenorm: encode: %w", err)
	}
	return buf.Bytes(), nil
}

func (n *Normalizer) decode(raw []byte) (image.Image, error) {
	if len(raw) == 0 {
		return nil, ErrEmpty
	}
	if len(raw) > n.opts.MaxInputBytes {
		return nil, fmt.Errorf("%w: %d bytes, max %d", ErrTooLarge, len(raw), n.opts.MaxInputBytes)
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return nil, &DecodeError{Err: err}
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, &DecodeError{Err: fmt.Errorf("bad dimensions %dx%d", cfg.Width, cfg.Height)}
	}
	if cfg.Width*cfg.Height > maxPixels {
		return nil, fmt.Errorf("%w: %dx%d pixels", ErrTooLarge, cfg.Width, cfg.Height)
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, &DecodeError{Err: err}
	}
	return img, nil
}

func (n *Normalizer) flatten(src image.Image) *image.RGBA {
	b := src.Bounds()
	w, h := FitWithin(b.Dx(), b.Dy(), n.opts.MaxSide)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	if w == b.Dx() && h == b.Dy() {
		draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Over)
		return dst
	}
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	return dst
}

// FitWithin scales (w, h) down, keeping the aspect ratio, so that neither
// side exceeds side. Images already small enough are left alone.
func FitWithin(w, h, side int) (int, int) {
	if w <= side && h <= side {
		return w, h
	}
	scale := math.Min(float64(side)/float64(w), float64(side)/float64(h))
	nw := max(1, int(math.Round(float64(w)*scale)))
	nh := max(1, int(math.Round(float64(h)*scale)))
	return nw, nh
}

// Fingerprint returns the perceptual difference hash of raw, e.g. "d:8f0f...".
func Fingerprint(raw []byte) (string, error) {
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return "", &DecodeError{Err: err}
	}
	h, err := goimagehash.DifferenceHash(img)
	if err != nil {
		return "", fmt.Errorf("imagenorm: hash: %w", err)
	}
	return h.ToString(), nil
}
