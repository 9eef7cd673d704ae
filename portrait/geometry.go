package portrait

import (
	"image"
	"math"
)

// Clamp tells Region.Resolve how to treat a region that leaves the image.
type Clamp int

const (
	// ClampHard truncates the rectangle to the image bounds, giving up
	// squareness near the edges.
	ClampHard Clamp = iota
	// ClampShrink reduces the radius until the whole circle fits, then pads
	// any rounding slack back to a square.
	ClampShrink
	// ClampPad keeps the requested square and fills the part outside the
	// image with transparency.
	ClampPad
)

func (c Clamp) String() string {
	switch c {
	case ClampHard:
		return "hard"
	case ClampShrink:
		return "shrink"
	case ClampPad:
		return "pad"
	default:
		return "unknown"
	}
}

// Region is a square of half extent Radius around Center, not yet clamped
// to Bounds.
type Region struct {
	Bounds image.Rectangle
	Center image.Point
	Radius int
	Clamp  Clamp
}

// Rect returns the unclamped square.
func (r Region) Rect() image.Rectangle {
	return image.Rect(
		r.Center.X-r.Radius, r.Center.Y-r.Radius,
		r.Center.X+r.Radius, r.Center.Y+r.Radius,
	)
}

// Placement describes how to build the output canvas: copy Src from the
// source image to Offset on a canvas of Size.
type Placement struct {
	Src    image.Rectangle
	Size   image.Point
	Offset image.Point
	// Radius is the half extent after shrinking; equal to Region.Radius for
	// the other clamp modes.
	Radius int
}

// CenteredSquare computes the square region of interest for a face:
// the center sits at face.w/2 horizontally and face.h*verticalBias
// vertically, the half extent is round(max(w, h) * radiusScale / 2).
// The result is not clamped.
func CenteredSquare(bounds, face image.Rectangle, verticalBias, radiusScale float64) Region {
	return Region{
		Bounds: bounds,
		Center: biasedCenter(face, verticalBias),
		Radius: scaledRadius(face, radiusScale*0.5),
		Clamp:  ClampHard,
	}
}

// Resolve applies the region's clamp mode. It fails with ErrInvalidGeometry
// when the radius is not positive or nothing of the image would be left.
func (r Region) Resolve() (Placement, error) {
	if r.Radius <= 0 {
		return Placement{}, ErrInvalidGeometry
	}
	switch r.Clamp {
	case ClampShrink:
		return r.resolveShrink()
	case ClampPad:
		return r.resolvePad()
	default:
		return r.resolveHard()
	}
}

func (r Region) resolveHard() (Placement, error) {
	src := r.Rect().Intersect(r.Bounds)
	if src.Empty() {
		return Placement{}, ErrInvalidGeometry
	}
	return Placement{Src: src, Size: src.Size(), Radius: r.Radius}, nil
}

func (r Region) resolveShrink() (Placement, error) {
	b := r.Bounds
	radius := min(
		r.Radius,
		r.Center.X-b.Min.X, b.Max.X-r.Center.X,
		r.Center.Y-b.Min.Y, b.Max.Y-r.Center.Y,
	)
	if radius <= 0 {
		return Placement{}, ErrInvalidGeometry
	}

	shrunk := r
	shrunk.Radius = radius
	square := shrunk.Rect()
	src := square.Intersect(b)
	if src.Empty() {
		return Placement{}, ErrInvalidGeometry
	}

	side := max(src.Dx(), src.Dy())
	return Placement{
		Src:    src,
		Size:   image.Pt(side, side),
		Offset: image.Pt((side-src.Dx())/2, (side-src.Dy())/2),
		Radius: radius,
	}, nil
}

func (r Region) resolvePad() (Placement, error) {
	square := r.Rect()
	src := square.Intersect(r.Bounds)
	if src.Empty() {
		return Placement{}, ErrInvalidGeometry
	}
	return Placement{
		Src:    src,
		Size:   square.Size(),
		Offset: src.Min.Sub(square.Min),
		Radius: r.Radius,
	}, nil
}

// validFace checks the face box against the image: positive size,
// non-negative origin and some overlap with the image.
func validFace(bounds, face image.Rectangle) bool {
	if face.Dx() <= 0 || face.Dy() <= 0 {
		return false
	}
	if face.Min.X < bounds.Min.X || face.Min.Y < bounds.Min.Y {
		return false
	}
	return face.Overlaps(bounds)
}

func biasedCenter(face image.Rectangle, verticalBias float64) image.Point {
	return image.Pt(
		face.Min.X+face.Dx()/2,
		face.Min.Y+int(float64(face.Dy())*verticalBias),
	)
}

func scaledRadius(face image.Rectangle, scale float64) int {
	return int(math.Round(float64(max(face.Dx(), face.Dy())) * scale))
}
