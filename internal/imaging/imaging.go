package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"

	_ "golang.org/x/image/webp"

	"github.com/manash/pixshop/pkg/models"
)

var (
	ErrEmptySelection   = errors.New("crop selection is empty")
	ErrUnsupportedAngle = errors.New("rotation must be a non-zero multiple of 90 degrees")
	ErrDecode           = errors.New("failed to decode image")
)

// Rect is a selection in the image's native pixels.
type Rect struct {
	X, Y, Width, Height int
}

// clip returns the part of r that lies inside a w x h image without
// overflowing on huge sizes.
func (r Rect) clip(w, h int) image.Rectangle {
	x0, x1 := span(r.X, r.Width, w)
	y0, y1 := span(r.Y, r.Height, h)
	if x0 >= x1 || y0 >= y1 {
		return image.Rectangle{}
	}
	return image.Rect(x0, y0, x1, y1)
}

// span clips [off, off+length) to [0, size). length must be positive.
func span(off, length, size int) (int, int) {
	if off >= size {
		return 0, 0
	}
	if off < 0 {
		// length + off cannot overflow with length > 0 and off < 0.
		end := length + off
		return 0, min(max(end, 0), size)
	}
	if length >= size-off {
		return off, size
	}
	return off, off + length
}

func decode(a *models.Artifact) (image.Image, error) {
	if a == nil || a.Size() == 0 {
		return nil, models.ErrNoImageData
	}
	img, _, err := image.Decode(bytes.NewReader(a.Bytes()))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return img, nil
}

func encode(op models.Operation, img image.Image) (*models.Artifact, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode png: %w", err)
	}
	return models.NewOperationArtifact(op, models.MimePNG, buf.Bytes())
}

// Dimensions reports the artifact's natural width and height.
func Dimensions(a *models.Artifact) (int, int, error) {
	if a == nil || a.Size() == 0 {
		return 0, 0, models.ErrNoImageData
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(a.Bytes()))
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return cfg.Width, cfg.Height, nil
}

// Crop cuts r out of a. Parts of r outside the image are clipped away.
func Crop(a *models.Artifact, r Rect) (*models.Artifact, error) {
	if r.Width <= 0 || r.Height <= 0 {
		return nil, ErrEmptySelection
	}

	src, err := decode(a)
	if err != nil {
		return nil, err
	}

	b := src.Bounds()
	area := r.clip(b.Dx(), b.Dy()).Add(b.Min)
	if area.Empty() {
		return nil, fmt.Errorf("%w: selection lies outside the image", ErrEmptySelection)
	}

	dst := image.NewNRGBA(image.Rect(0, 0, area.Dx(), area.Dy()))
	draw.Draw(dst, dst.Bounds(), src, area.Min, draw.Src)
	return encode(models.OpCrop, dst)
}

// Rotate turns a clockwise by degrees. Negative values rotate
// counter-clockwise. Whole turns, 0 included, are rejected.
func Rotate(a *models.Artifact, degrees int) (*models.Artifact, error) {
	turns := ((degrees/90)%4 + 4) % 4
	if degrees%90 != 0 || turns == 0 {
		return nil, fmt.Errorf("%w: got %d", ErrUnsupportedAngle, degrees)
	}

	src, err := decode(a)
	if err != nil {
		return nil, err
	}

	b := src.Bounds()
	w, h := b.Dx(), b.Dy()

	var dst *image.NRGBA
	switch turns {
	case 1:
		dst = image.NewNRGBA(image.Rect(0, 0, h, w))
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				dst.Set(h-1-y, x, src.At(b.Min.X+x, b.Min.Y+y))
			}
		}
	case 2:
		dst = image.NewNRGBA(image.Rect(0, 0, w, h))
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				dst.Set(w-1-x, h-1-y, src.At(b.Min.X+x, b.Min.Y+y))
			}
		}
	case 3:
		dst = image.NewNRGBA(image.Rect(0, 0, h, w))
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				dst.Set(y, w-1-x, src.At(b.Min.X+x, b.Min.Y+y))
			}
		}
	}
	return encode(models.OpRotate, dst)
}

// ScaleHotspot maps a point on a displayed (possibly resized) image to the
// image's native pixel grid, rounding down.
func ScaleHotspot(displayX, displayY, displayW, displayH, naturalW, naturalH int) (models.Hotspot, error) {
	if displayW <= 0 || displayH <= 0 || naturalW <= 0 || naturalH <= 0 {
		return models.Hotspot{}, fmt.Errorf("%w: invalid dimensions", models.ErrInvalidHotspot)
	}
	if displayX < 0 || displayY < 0 || displayX >= displayW || displayY >= displayH {
		return models.Hotspot{}, fmt.Errorf("%w: (%d, %d) outside %dx%d", models.ErrInvalidHotspot, displayX, displayY, displayW, displayH)
	}
	return models.Hotspot{
		X: displayX * naturalW / displayW,
		Y: displayY * naturalH / displayH,
	}, nil
}

// CheckHotspot reports whether spot lies inside a's native bounds.
func CheckHotspot(a *models.Artifact, spot models.Hotspot) error {
	w, h, err := Dimensions(a)
	if err != nil {
		return err
	}
	if spot.X < 0 || spot.Y < 0 || spot.X >= w || spot.Y >= h {
		return fmt.Errorf("%w: (%d, %d) outside %dx%d", models.ErrInvalidHotspot, spot.X, spot.Y, w, h)
	}
	return nil
}

// ToPNG returns a's bytes as PNG, re-encoding other formats.
func ToPNG(a *models.Artifact) ([]byte, error) {
	if a != nil && a.MimeType() == models.MimePNG {
		return a.Bytes(), nil
	}
	img, err := decode(a)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode png: %w", err)
	}
	return buf.Bytes(), nil
}
