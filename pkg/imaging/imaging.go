// Package imaging measures and conforms binary icon assets. Dimensions and
// opacity are always derived from the actual pixel data, never trusted from
// configuration, so a mismatched asset is detected and regenerated rather
// than silently passed through.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"

	xdraw "golang.org/x/image/draw"
)

// Info holds the measured properties of an image asset.
type Info struct {
	Width    int  `json:"width"`
	Height   int  `json:"height"`
	HasAlpha bool `json:"has_alpha"`
}

// Measure decodes the PNG and reports its actual dimensions and whether any
// pixel is less than fully opaque.
func Measure(data []byte) (Info, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return Info{}, fmt.Errorf("failed to decode PNG: %w", err)
	}
	b := img.Bounds()
	return Info{
		Width:    b.Dx(),
		Height:   b.Dy(),
		HasAlpha: hasTranslucentPixel(img),
	}, nil
}

func hasTranslucentPixel(img image.Image) bool {
	if o, ok := img.(interface{ Opaque() bool }); ok {
		return !o.Opaque()
	}
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if _, _, _, a := img.At(x, y).RGBA(); a != 0xffff {
				return true
			}
		}
	}
	return false
}

// Conform rescales the PNG to width x height and, when opaque is required,
// flattens any transparency onto a white background. When the input already
// satisfies every requirement the original bytes are returned unchanged, so
// repeated runs never rewrite a conforming asset.
func Conform(data []byte, width, height int, opaque bool) ([]byte, bool, error) {
	if width <= 0 || height <= 0 {
		return nil, false, fmt.Errorf("invalid target dimensions %dx%d", width, height)
	}

	info, err := Measure(data)
	if err != nil {
		return nil, false, err
	}
	if info.Width == width && info.Height == height && (!opaque || !info.HasAlpha) {
		return data, false, nil
	}

	src, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, false, fmt.Errorf("failed to decode PNG: %w", err)
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	if opaque {
		draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
		xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Over, nil)
	} else {
		xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Src, nil)
	}

	var buf bytes.Buffer
	// The stdlib encoder writes truecolor without an alpha channel when the
	// image is fully opaque, which is exactly the asset-catalog requirement.
	if err := png.Encode(&buf, dst); err != nil {
		return nil, false, fmt.Errorf("failed to encode PNG: %w", err)
	}
	return buf.Bytes(), true, nil
}
