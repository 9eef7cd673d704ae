package portrait

import (
	"image"

	"github.com/disintegration/imaging"
	"github.com/nfnt/resize"
	"golang.org/x/image/draw"
)

// Round crops a square around the face, resizes it to opts.OutputSize and
// pastes it through an inscribed circle onto a white canvas.
//
// The square is hard-clamped to the image. Near an edge the clamped crop is
// no longer square and the resize stretches it to OutputSize; this keeps
// the output size uniform at the cost of aspect ratio.
//
// The result is fully opaque, exactly OutputSize, white outside the circle.
func Round(src image.Image, face image.Rectangle, opts RoundOptions) (*image.RGBA, error) {
	if _, err := ModeOf(src); err != nil {
		return nil, &Error{Policy: PolicyRound, Op: "convert", Err: err}
	}
	bounds := src.Bounds()
	if !validFace(bounds, face) {
		return nil, geometryError(PolicyRound, "face", face)
	}
	size := opts.OutputSize
	if size.X <= 0 || size.Y <= 0 {
		return nil, geometryError(PolicyRound, "output", image.Rectangle{Max: size})
	}

	region := CenteredSquare(bounds, face, opts.VerticalBias, opts.RadiusScale)
	region.Clamp = ClampHard
	p, err := region.Resolve()
	if err != nil {
		return nil, geometryError(PolicyRound, "crop", region.Rect())
	}

	var square image.Image = imaging.Crop(src, p.Src)
	if p.Size != size {
		square = resize.Resize(uint(size.X), uint(size.Y), square, resize.Lanczos3)
	}
	rgb := flattenOnWhite(square)

	dst := whiteCanvas(size)
	draw.DrawMask(dst, dst.Bounds(), rgb, image.Point{}, EllipseMask(size), image.Point{}, draw.Over)
	return dst, nil
}
