package portrait

import (
	"image"
	"math"

	"github.com/disintegration/imaging"
)

// Composed is the legacy wide portrait: a square of half extent
// radius + margin around the biased face center, hard-clamped to the image
// and kept at whatever shape clamping left. The alpha channel is replaced by
// an ellipse inscribed in that crop, so near an edge the outline is an
// ellipse rather than a circle.
func Composed(src image.Image, face image.Rectangle, opts ComposedOptions) (*image.NRGBA, error) {
	if _, err := ModeOf(src); err != nil {
		return nil, &Error{Policy: PolicyComposed, Op: "convert", Err: err}
	}
	bounds := src.Bounds()
	if !validFace(bounds, face) {
		return nil, geometryError(PolicyComposed, "face", face)
	}

	radius := scaledRadius(face, opts.RadiusScale)
	margin := int(math.Round(float64(radius) * opts.ExtraMarginRatio))
	region := Region{
		Bounds: bounds,
		Center: biasedCenter(face, opts.VerticalBias),
		Radius: radius + margin,
		Clamp:  ClampHard,
	}
	p, err := region.Resolve()
	if err != nil {
		return nil, geometryError(PolicyComposed, "crop", region.Rect())
	}

	out := imaging.Crop(src, p.Src)
	putAlpha(out, EllipseMask(p.Size))
	return out, nil
}
