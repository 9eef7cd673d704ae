//go:build !gocv

package face

import (
	"context"
	"errors"
	"image"
)

var errNoOpenCV = errors.New("opencv detector needs a build with -tags gocv")

type CascadeDetector struct{}

func NewCascadeDetector(string) (*CascadeDetector, error) {
	return nil, errNoOpenCV
}

func (*CascadeDetector) Detect(context.Context, image.Image) ([]image.Rectangle, error) {
	return nil, errNoOpenCV
}

func (*CascadeDetector) Close() error { return nil }
