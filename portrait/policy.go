package portrait

import (
	"fmt"
	"image"
	"strings"
)

// Policy selects how a face box is turned into a circular portrait.
type Policy int

const (
	// PolicyRound crops a square around the face, resizes it to a fixed
	// output size and pastes it through a circle onto white.
	PolicyRound Policy = iota + 1
	// PolicyClamped keeps native resolution and shrinks the circle until it
	// fits inside the image.
	PolicyClamped
	// PolicyComposed is the legacy wide framing with an extra margin and an
	// ellipse inscribed in the (possibly rectangular) crop.
	PolicyComposed
)

func (p Policy) String() string {
	switch p {
	case PolicyRound:
		return "round"
	case PolicyClamped:
		return "clamped"
	case PolicyComposed:
		return "composed"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// ParsePolicy maps a policy name back to its value.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "round", "a":
		return PolicyRound, nil
	case "clamped", "b":
		return PolicyClamped, nil
	case "composed", "c":
		return PolicyComposed, nil
	}
	return 0, fmt.Errorf("unknown policy %q", s)
}

// RoundOptions parameterizes PolicyRound.
type RoundOptions struct {
	// RadiusScale multiplies max(face.w, face.h) to get the crop side.
	RadiusScale float64
	// VerticalBias is the fraction of the face height where the crop is
	// centered; 0.5 is the geometric center.
	VerticalBias float64
	// OutputSize is the exact size of the result.
	OutputSize image.Point
}

// DefaultRoundOptions returns radius scale 1.5, vertical bias 0.35 and a
// 512x512 output.
func DefaultRoundOptions() RoundOptions {
	return RoundOptions{
		RadiusScale:  1.5,
		VerticalBias: 0.35,
		OutputSize:   image.Pt(512, 512),
	}
}

// ClampedOptions parameterizes PolicyClamped.
type ClampedOptions struct {
	// RadiusScale multiplies max(face.w, face.h) to get the circle radius.
	RadiusScale float64
}

func DefaultClampedOptions() ClampedOptions {
	return ClampedOptions{RadiusScale: 1.0}
}

// ComposedOptions parameterizes PolicyComposed.
type ComposedOptions struct {
	RadiusScale      float64
	VerticalBias     float64
	ExtraMarginRatio float64
}

func DefaultComposedOptions() ComposedOptions {
	return ComposedOptions{
		RadiusScale:      1.8,
		VerticalBias:     0.25,
		ExtraMarginRatio: 0.30,
	}
}
