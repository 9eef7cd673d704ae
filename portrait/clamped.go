package portrait

import (
	"image"

	"github.com/disintegration/imaging"
)

// Clamped cuts a circle of radius round(max(w, h) * RadiusScale) around the
// geometric face center at native resolution. The radius shrinks until the
// circle fits in the image; it is never padded out and nothing is
// resampled, so the output side is 2*radius and varies with the input.
//
// A face whose center sits on the image edge leaves no room for a circle
// and yields ErrInvalidGeometry.
func Clamped(src image.Image, face image.Rectangle, opts ClampedOptions) (*image.NRGBA, error) {
	if _, err := ModeOf(src); err != nil {
		return nil, &Error{Policy: PolicyClamped, Op: "convert", Err: err}
	}
	bounds := src.Bounds()
	if !validFace(bounds, face) {
		return nil, geometryError(PolicyClamped, "face", face)
	}

	region := Region{
		Bounds: bounds,
		Center: biasedCenter(face, 0.5),
		Radius: scaledRadius(face, opts.RadiusScale),
		Clamp:  ClampShrink,
	}
	p, err := region.Resolve()
	if err != nil {
		return nil, geometryError(PolicyClamped, "shrink", region.Rect())
	}

	crop := imaging.Crop(src, p.Src)
	out := crop
	if p.Size != crop.Bounds().Size() {
		out = imaging.Paste(imaging.New(p.Size.X, p.Size.Y, image.Transparent), crop, p.Offset)
	}
	applyMask(out, EllipseMask(p.Size))
	return out, nil
}
