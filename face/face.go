package face

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"
)

var (
	ErrNoFace          = errors.New("no face detected")
	ErrUnknownDetector = errors.New("unknown face detector")
)

// Detector finds face boxes in pixel coordinates of img.
type Detector interface {
	Detect(ctx context.Context, img image.Image) ([]image.Rectangle, error)
}

const (
	DetectorRekognition = "rekognition"
	DetectorOpenCV      = "opencv"
	DetectorNone        = "none"
)

// Config selects and configures a detector.
type Config struct {
	Detector    string
	CascadePath string
	AWSRegion   string
}

// New builds the detector named by cfg.Detector.
func New(ctx context.Context, cfg Config) (Detector, error) {
	switch strings.ToLower(cfg.Detector) {
	case DetectorRekognition:
		d, err := NewRekognitionDetector(ctx, cfg.AWSRegion)
		if err != nil {
			return nil, err
		}
		return d, nil
	case DetectorOpenCV:
		d, err := NewCascadeDetector(cfg.CascadePath)
		if err != nil {
			return nil, err
		}
		return d, nil
	case DetectorNone, "":
		return None{}, nil
	}
	return nil, fmt.Errorf("%w %q", ErrUnknownDetector, cfg.Detector)
}

// None never finds a face.
type None struct{}

func (None) Detect(context.Context, image.Image) ([]image.Rectangle, error) {
	return nil, nil
}

// Largest returns the box with the biggest area, ErrNoFace when empty.
func Largest(boxes []image.Rectangle) (image.Rectangle, error) {
	if len(boxes) == 0 {
		return image.Rectangle{}, ErrNoFace
	}
	best := boxes[0]
	for _, b := range boxes[1:] {
		if area(b) > area(best) {
			best = b
		}
	}
	return best, nil
}

// Fallback is a centered square of side min(w,h)/3.
func Fallback(bounds image.Rectangle) image.Rectangle {
	w, h := bounds.Dx(), bounds.Dy()
	side := min(w, h) / 3
	x := bounds.Min.X + (w-side)/2
	y := bounds.Min.Y + (h-side)/2
	return image.Rect(x, y, x+side, y+side)
}

// Locate detects faces and picks the largest; with fallback set a miss
// yields Fallback(bounds) instead of ErrNoFace.
func Locate(ctx context.Context, d Detector, img image.Image, fallback bool) (image.Rectangle, error) {
	boxes, err := d.Detect(ctx, img)
	if err != nil {
		return image.Rectangle{}, err
	}
	box, err := Largest(boxes)
	if errors.Is(err, ErrNoFace) && fallback {
		return Fallback(img.Bounds()), nil
	}
	return box, err
}

func area(r image.Rectangle) int {
	return r.Dx() * r.Dy()
}
