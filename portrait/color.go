package portrait

import (
	"image"
	"image/color"

	"golang.org/x/image/draw"
)

// ColorMode is the coarse color layout of a raster.
type ColorMode int

const (
	ModeRGB ColorMode = iota + 1
	ModeRGBA
	ModeGray
)

func (m ColorMode) String() string {
	switch m {
	case ModeRGB:
		return "RGB"
	case ModeRGBA:
		return "RGBA"
	case ModeGray:
		return "L"
	default:
		return "unknown"
	}
}

// ModeOf classifies img by its color model. Alpha-only models carry no
// color and are rejected, as are models this package does not know.
func ModeOf(img image.Image) (ColorMode, error) {
	if img == nil {
		return 0, ErrUnsupportedColorMode
	}
	m := img.ColorModel()
	if p, ok := m.(color.Palette); ok {
		for _, c := range p {
			if _, _, _, a := c.RGBA(); a != 0xffff {
				return ModeRGBA, nil
			}
		}
		return ModeRGB, nil
	}
	switch m {
	case color.RGBAModel, color.RGBA64Model, color.NRGBAModel, color.NRGBA64Model, color.NYCbCrAModel:
		return ModeRGBA, nil
	case color.YCbCrModel, color.CMYKModel:
		return ModeRGB, nil
	case color.GrayModel, color.Gray16Model:
		return ModeGray, nil
	}
	return 0, ErrUnsupportedColorMode
}

// flattenOnWhite composites img over an opaque white canvas, using its
// alpha as the blend weight. The result is anchored at the origin.
func flattenOnWhite(img image.Image) *image.RGBA {
	b := img.Bounds()
	dst := whiteCanvas(b.Size())
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Over)
	return dst
}

func whiteCanvas(size image.Point) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, size.X, size.Y))
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)
	return dst
}
